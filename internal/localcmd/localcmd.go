// Package localcmd implements LocalCommands (C6): init, add, commit,
// status, checkout, reset, log, and diff, each a small state transition
// over the ObjectStore, Index, CommitGraph, and WorkdirAnalyzer layers.
package localcmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cantrip-vcs/minigit/internal/commitgraph"
	"github.com/cantrip-vcs/minigit/internal/index"
	"github.com/cantrip-vcs/minigit/internal/objstore"
	"github.com/cantrip-vcs/minigit/internal/vcserr"
	"github.com/cantrip-vcs/minigit/internal/workdir"
)

// HiddenDir is the repository metadata directory at the working tree root.
const HiddenDir = ".minigit"

// Repo is an opened working-tree repository: the hidden directory's
// object store, index, and HEAD pointer.
type Repo struct {
	Root   string
	Store  *objstore.Store
	Index  *index.Index
	meta   string
}

func metaDir(root string) string { return filepath.Join(root, HiddenDir) }

// Init creates a fresh repository at root: hidden dir, empty HEAD,
// empty index, empty config. Fails if root already has a hidden dir.
func Init(root string) (*Repo, error) {
	meta := metaDir(root)
	if _, err := os.Stat(meta); err == nil {
		return nil, vcserr.New(vcserr.KindUsage, "repository already initialized")
	}
	if err := os.MkdirAll(meta, 0o755); err != nil {
		return nil, vcserr.Wrap(vcserr.KindStorage, "failed to create repository directory", err)
	}
	if _, err := objstore.Open(filepath.Join(meta, "objects")); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(meta, "HEAD"), nil, 0o644); err != nil {
		return nil, vcserr.Wrap(vcserr.KindStorage, "failed to write HEAD", err)
	}
	ix := index.New()
	if err := ix.Save(filepath.Join(meta, "index")); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(meta, "config"), nil, 0o644); err != nil {
		return nil, vcserr.Wrap(vcserr.KindStorage, "failed to write config", err)
	}
	return Open(root)
}

// Open loads an existing repository at root.
func Open(root string) (*Repo, error) {
	meta := metaDir(root)
	if _, err := os.Stat(meta); err != nil {
		return nil, vcserr.New(vcserr.KindUsage, "not a repository: "+root)
	}
	store, err := objstore.Open(filepath.Join(meta, "objects"))
	if err != nil {
		return nil, err
	}
	ix, err := index.Load(filepath.Join(meta, "index"))
	if err != nil {
		return nil, err
	}
	return &Repo{Root: root, Store: store, Index: ix, meta: meta}, nil
}

// Head returns the current HEAD commit id, "" if no commit exists.
func (r *Repo) Head() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.meta, "HEAD"))
	if err != nil {
		return "", vcserr.Wrap(vcserr.KindStorage, "failed to read HEAD", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SetHead atomically overwrites HEAD.
func (r *Repo) SetHead(id string) error {
	tmp, err := os.CreateTemp(r.meta, "HEAD-*")
	if err != nil {
		return vcserr.Wrap(vcserr.KindStorage, "failed to stage HEAD update", err)
	}
	if _, err := tmp.WriteString(id); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return vcserr.Wrap(vcserr.KindStorage, "failed to write HEAD", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return vcserr.Wrap(vcserr.KindStorage, "failed to close HEAD", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(r.meta, "HEAD"))
}

// HeadTree returns the tree of the commit at HEAD, nil if there is none.
func (r *Repo) HeadTree() (map[string]string, error) {
	head, err := r.Head()
	if err != nil {
		return nil, err
	}
	if head == "" {
		return nil, nil
	}
	c, err := commitgraph.LoadCommit(r.Store, head)
	if err != nil {
		return nil, err
	}
	return c.Tree, nil
}

// saveIndex persists the in-memory index back to disk.
func (r *Repo) saveIndex() error {
	return r.Index.Save(filepath.Join(r.meta, "index"))
}

// AddResult reports what Add changed.
type AddResult struct {
	Staged  []string
	Removed []string
}

// Add stages every requested path (file or directory) whose
// WorkdirAnalyzer status is M, ??, D, or R, per spec.md §4.6.
func (r *Repo) Add(paths []string) (AddResult, error) {
	headTree, err := r.HeadTree()
	if err != nil {
		return AddResult{}, err
	}
	entries, err := workdir.Analyze(r.Root, headTree, r.Index)
	if err != nil {
		return AddResult{}, err
	}

	wanted := make(map[string]bool)
	for _, p := range paths {
		wanted[filepath.ToSlash(p)] = true
	}
	matches := func(rel string) bool {
		if len(wanted) == 0 {
			return true
		}
		for w := range wanted {
			if rel == w || strings.HasPrefix(rel, strings.TrimSuffix(w, "/")+"/") {
				return true
			}
		}
		return false
	}

	var result AddResult
	for _, e := range entries {
		switch e.Status {
		case workdir.StatusModified, workdir.StatusUntracked, workdir.StatusAdded,
			workdir.StatusAddedModified, workdir.StatusModifiedModified:
			if !matches(e.Path) {
				continue
			}
			if _, err := index.StagePath(r.Root, e.Path, r.Store, r.Index); err != nil {
				return AddResult{}, err
			}
			result.Staged = append(result.Staged, e.Path)
		case workdir.StatusDeleted, workdir.StatusModifiedDeleted, workdir.StatusAddedThenDeleted:
			if !matches(e.Path) {
				continue
			}
			r.Index.Remove(e.Path)
			result.Removed = append(result.Removed, e.Path)
		case workdir.StatusRenamed:
			if !matches(e.Path) && !matches(e.OldPath) {
				continue
			}
			r.Index.Remove(e.OldPath)
			if _, err := index.StagePath(r.Root, e.Path, r.Store, r.Index); err != nil {
				return AddResult{}, err
			}
			result.Removed = append(result.Removed, e.OldPath)
			result.Staged = append(result.Staged, e.Path)
		}
	}
	if err := r.saveIndex(); err != nil {
		return AddResult{}, err
	}
	return result, nil
}

// Commit constructs and stores a new commit whose tree is a snapshot of
// the current index, advances HEAD, and — per spec.md §9 — leaves the
// index untouched (it already equals the new commit's tree).
func (r *Repo) Commit(message string, now time.Time) (commitgraph.Commit, error) {
	if r.Index.Len() == 0 {
		return commitgraph.Commit{}, vcserr.New(vcserr.KindUsage, "nothing to commit: index is empty")
	}
	parent, err := r.Head()
	if err != nil {
		return commitgraph.Commit{}, err
	}
	c, err := commitgraph.StoreCommit(r.Store, parent, message, now, r.Index.Map())
	if err != nil {
		return commitgraph.Commit{}, err
	}
	if err := r.SetHead(c.ID); err != nil {
		return commitgraph.Commit{}, err
	}
	return c, nil
}

// Status returns the short HEAD id and the WorkdirAnalyzer table.
func (r *Repo) Status() (string, []workdir.Entry, error) {
	head, err := r.Head()
	if err != nil {
		return "", nil, err
	}
	headTree, err := r.HeadTree()
	if err != nil {
		return "", nil, err
	}
	entries, err := workdir.Analyze(r.Root, headTree, r.Index)
	if err != nil {
		return "", nil, err
	}
	short := head
	if len(short) > 12 {
		short = short[:12]
	}
	return short, entries, nil
}

// Checkout writes every entry of the HEAD tree into the working tree,
// creating parent directories and overwriting existing files.
func (r *Repo) Checkout() error {
	tree, err := r.HeadTree()
	if err != nil {
		return err
	}
	return writeTree(r, tree)
}

func writeTree(r *Repo, tree map[string]string) error {
	for path, id := range tree {
		data, err := r.Store.Get(id)
		if err != nil {
			return err
		}
		full := filepath.Join(r.Root, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return vcserr.Wrap(vcserr.KindStorage, "failed to create parent directory", err)
		}
		if err := os.WriteFile(full, data, 0o644); err != nil {
			return vcserr.Wrap(vcserr.KindStorage, "failed to write working tree file", err)
		}
	}
	return nil
}

// ResetMode selects how much of the repository state reset rewrites.
type ResetMode int

const (
	ResetSoft ResetMode = iota
	ResetMixed
	ResetHard
)

// Reset resolves target (HEAD if empty), overwrites HEAD, and for
// mixed/hard replaces the index with target's tree. For hard, it also
// deletes tracked-but-absent files and writes every target entry into
// the working tree. "Tracked" = pre-reset index ∪ pre-reset HEAD tree.
func (r *Repo) Reset(mode ResetMode, target string) error {
	preHeadTree, err := r.HeadTree()
	if err != nil {
		return err
	}
	preIndex := r.Index.Map()

	if target == "" {
		target, err = r.Head()
		if err != nil {
			return err
		}
	}

	var targetTree map[string]string
	if target != "" {
		c, err := commitgraph.LoadCommit(r.Store, target)
		if err != nil {
			return err
		}
		targetTree = c.Tree
	}

	if err := r.SetHead(target); err != nil {
		return err
	}

	if mode == ResetSoft {
		return nil
	}

	r.Index = index.New()
	for path, id := range targetTree {
		r.Index.Set(path, id)
	}
	if err := r.saveIndex(); err != nil {
		return err
	}

	if mode == ResetMixed {
		return nil
	}

	tracked := make(map[string]bool)
	for p := range preIndex {
		tracked[p] = true
	}
	for p := range preHeadTree {
		tracked[p] = true
	}
	for p := range tracked {
		if _, present := targetTree[p]; !present {
			_ = os.Remove(filepath.Join(r.Root, p))
		}
	}
	return writeTree(r, targetTree)
}

// LogEntry is one formatted history entry.
type LogEntry struct {
	Commit  commitgraph.Commit
	Changed []string // paths added/modified/deleted relative to the parent
}

// Log walks history from HEAD, limited to max entries (0 = unlimited),
// and computes the per-commit changed-path list relative to its parent.
func (r *Repo) Log(max int) ([]LogEntry, error) {
	head, err := r.Head()
	if err != nil {
		return nil, err
	}
	if head == "" {
		return nil, nil
	}
	commits, err := commitgraph.Walk(r.Store, head, "")
	if err != nil {
		return nil, err
	}
	if max > 0 && len(commits) > max {
		commits = commits[:max]
	}
	out := make([]LogEntry, len(commits))
	for i, c := range commits {
		var parentTree map[string]string
		if c.Parent != "" {
			p, err := commitgraph.LoadCommit(r.Store, c.Parent)
			if err != nil {
				return nil, err
			}
			parentTree = p.Tree
		}
		out[i] = LogEntry{Commit: c, Changed: changedPaths(parentTree, c.Tree)}
	}
	return out, nil
}

func changedPaths(before, after map[string]string) []string {
	var changed []string
	for p, id := range after {
		if bID, ok := before[p]; !ok || bID != id {
			changed = append(changed, p)
		}
	}
	for p := range before {
		if _, ok := after[p]; !ok {
			changed = append(changed, p)
		}
	}
	return changed
}

// FormatLogLine renders a one-line log entry.
func FormatLogLine(e LogEntry) string {
	id := e.Commit.ID
	if len(id) > 12 {
		id = id[:12]
	}
	return fmt.Sprintf("%s %s", id, e.Commit.Message)
}
