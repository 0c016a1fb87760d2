// Package workdir implements WorkdirAnalyzer (C5): the per-path status
// table comparing the HEAD tree, the index, and the working tree, plus
// exact-content rename detection.
package workdir

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cantrip-vcs/minigit/internal/hashid"
	"github.com/cantrip-vcs/minigit/internal/index"
)

// Status is one of the codes from the (H, I, W) status table.
type Status string

const (
	StatusUntracked        Status = "??"
	StatusDeleted          Status = "D"
	StatusModifiedDeleted  Status = "MD"
	StatusAddedThenDeleted Status = "AD"
	StatusAdded            Status = "A"
	StatusAddedModified    Status = "AM"
	StatusModified         Status = "M"
	StatusModifiedModified Status = "MM"
	StatusRenamed          Status = "R"
)

// Entry is one row of WorkdirAnalyzer's output.
type Entry struct {
	Path    string
	OldPath string // set only when Status == StatusRenamed
	Status  Status
}

// Analyze computes the status table for repoRoot given headTree (the
// path -> blob id mapping of the commit at HEAD; nil/empty for no
// commits yet) and the current index.
func Analyze(repoRoot string, headTree map[string]string, ix *index.Index) ([]Entry, error) {
	w, err := scanWorkingTree(repoRoot)
	if err != nil {
		return nil, err
	}
	i := ix.Map()

	paths := make(map[string]bool)
	for p := range headTree {
		paths[p] = true
	}
	for p := range i {
		paths[p] = true
	}
	for p := range w {
		paths[p] = true
	}

	var entries []Entry
	for p := range paths {
		hID, hOK := headTree[p]
		iID, iOK := i[p]
		wID, wOK := w[p]

		switch {
		case !hOK && !iOK && wOK:
			entries = append(entries, Entry{Path: p, Status: StatusUntracked})

		case hOK && !iOK && !wOK:
			entries = append(entries, Entry{Path: p, Status: StatusDeleted})

		case hOK && iOK && !wOK:
			if hID == iID {
				entries = append(entries, Entry{Path: p, Status: StatusDeleted})
			} else {
				entries = append(entries, Entry{Path: p, Status: StatusModifiedDeleted})
			}

		case !hOK && iOK && !wOK:
			entries = append(entries, Entry{Path: p, Status: StatusAddedThenDeleted})

		case !hOK && iOK && wOK:
			if iID == wID {
				entries = append(entries, Entry{Path: p, Status: StatusAdded})
			} else {
				entries = append(entries, Entry{Path: p, Status: StatusAddedModified})
			}

		case hOK && !iOK && wOK:
			if hID != wID {
				entries = append(entries, Entry{Path: p, Status: StatusModified})
			}
			// H == W: no staged entry, working tree matches HEAD -> omit.

		case hOK && iOK && wOK:
			switch {
			case hID == iID && iID == wID:
				// all equal -> omit
			case hID != iID && iID == wID:
				entries = append(entries, Entry{Path: p, Status: StatusModified})
			case hID == iID && iID != wID:
				entries = append(entries, Entry{Path: p, Status: StatusModified})
			default:
				entries = append(entries, Entry{Path: p, Status: StatusModifiedModified})
			}
		}
	}

	entries = detectRenames(entries, headTree, i, w)

	sort.Slice(entries, func(a, b int) bool { return entries[a].Path < entries[b].Path })
	return entries, nil
}

// detectRenames pairs deleted entries with untracked entries of identical
// content and collapses each pair into a single StatusRenamed entry, per
// spec.md §4.5: "Only exact-content renames are detected."
func detectRenames(entries []Entry, headTree, i, w map[string]string) []Entry {
	var deleted, untracked, rest []Entry
	for _, e := range entries {
		switch e.Status {
		case StatusDeleted:
			deleted = append(deleted, e)
		case StatusUntracked:
			untracked = append(untracked, e)
		default:
			rest = append(rest, e)
		}
	}

	usedUntracked := make(map[int]bool)
	for _, d := range deleted {
		deletedID := headTree[d.Path]
		matched := -1
		for idx, u := range untracked {
			if usedUntracked[idx] {
				continue
			}
			if w[u.Path] == deletedID {
				matched = idx
				break
			}
		}
		if matched >= 0 {
			usedUntracked[matched] = true
			rest = append(rest, Entry{
				Path:    untracked[matched].Path,
				OldPath: d.Path,
				Status:  StatusRenamed,
			})
		} else {
			rest = append(rest, d)
		}
	}
	for idx, u := range untracked {
		if !usedUntracked[idx] {
			rest = append(rest, u)
		}
	}
	return rest
}

// scanWorkingTree walks repoRoot (skipping .minigit and ignored paths)
// and hashes every regular file's contents.
func scanWorkingTree(repoRoot string) (map[string]string, error) {
	out := make(map[string]string)
	matcher := index.LoadMatcher(repoRoot)

	err := filepath.WalkDir(repoRoot, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := filepath.Rel(repoRoot, p)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if strings.HasPrefix(rel, ".minigit/") || rel == ".minigit" {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if matcher.IsIgnored(rel, true) {
				return filepath.SkipDir
			}
			matcher.LoadDir(repoRoot, rel+"/")
			return nil
		}
		if matcher.IsIgnored(rel, false) {
			return nil
		}
		data, err := os.ReadFile(p) //nolint:gosec
		if err != nil {
			return err
		}
		out[rel] = hashid.SumBytes(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
