// Package repomanager implements RepoManager (C10): lifecycle
// operations for server-hosted repository directories, rooted at a
// single configured directory and name-sanitized against path
// traversal.
package repomanager

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cantrip-vcs/minigit/internal/commitgraph"
	"github.com/cantrip-vcs/minigit/internal/index"
	"github.com/cantrip-vcs/minigit/internal/objstore"
	"github.com/cantrip-vcs/minigit/internal/vcserr"
)

// hiddenDir is the per-repository metadata directory, the marker that
// distinguishes a repository directory from an ordinary one.
const hiddenDir = ".minigit"

// Manager roots every operation at a single server-configured directory.
type Manager struct {
	root string
}

// New returns a Manager rooted at root. The directory is created if
// absent.
func New(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, vcserr.Wrap(vcserr.KindStorage, "failed to create repository root", err)
	}
	return &Manager{root: root}, nil
}

// safeName rejects empty names and any name carrying a path traversal
// or separator component; path traversal MUST fail closed per
// spec.md §4.10.
func safeName(name string) error {
	if name == "" {
		return vcserr.New(vcserr.KindUsage, "repository name must not be empty")
	}
	if strings.ContainsAny(name, "/\\") {
		return vcserr.New(vcserr.KindUsage, "repository name must not contain a path separator")
	}
	if name == "." || name == ".." || strings.Contains(name, "..") {
		return vcserr.New(vcserr.KindUsage, "repository name must not contain '..'")
	}
	return nil
}

// Path returns the absolute directory for name without checking that
// it exists.
func (m *Manager) Path(name string) (string, error) {
	if err := safeName(name); err != nil {
		return "", err
	}
	return filepath.Join(m.root, name), nil
}

// Exists reports whether name is a repository directory (i.e. carries
// the hidden metadata directory).
func (m *Manager) Exists(name string) bool {
	p, err := m.Path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(p, hiddenDir))
	return err == nil && info.IsDir()
}

// List returns the names of every repository directory under root.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, vcserr.Wrap(vcserr.KindStorage, "failed to list repository root", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if m.Exists(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Create builds a new repository skeleton: hidden dir, objects
// subdirectory, empty HEAD, empty index, default config.
func (m *Manager) Create(name string) error {
	if err := safeName(name); err != nil {
		return err
	}
	if m.Exists(name) {
		return vcserr.New(vcserr.KindUsage, "repository already exists: "+name)
	}
	p := filepath.Join(m.root, name)
	metaDir := filepath.Join(p, hiddenDir)
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return vcserr.Wrap(vcserr.KindStorage, "failed to create repository directory", err)
	}
	if _, err := objstore.Open(filepath.Join(metaDir, "objects")); err != nil {
		return vcserr.Wrap(vcserr.KindStorage, "failed to create object store", err)
	}
	if err := os.WriteFile(filepath.Join(metaDir, "HEAD"), nil, 0o644); err != nil {
		return vcserr.Wrap(vcserr.KindStorage, "failed to write HEAD", err)
	}
	if err := index.New().Save(filepath.Join(metaDir, "index")); err != nil {
		return vcserr.Wrap(vcserr.KindStorage, "failed to write index", err)
	}
	if err := os.WriteFile(filepath.Join(metaDir, "config"), []byte("# minigit repository config\n"), 0o644); err != nil {
		return vcserr.Wrap(vcserr.KindStorage, "failed to write config", err)
	}
	return nil
}

// Remove deletes a repository directory recursively.
func (m *Manager) Remove(name string) error {
	if err := safeName(name); err != nil {
		return err
	}
	if !m.Exists(name) {
		return vcserr.New(vcserr.KindUsage, "not a repository: "+name)
	}
	p := filepath.Join(m.root, name)
	if err := os.RemoveAll(p); err != nil {
		return vcserr.Wrap(vcserr.KindStorage, "failed to remove repository", err)
	}
	return nil
}

// Head reads the current HEAD commit id of a repository, "" if none.
func (m *Manager) Head(name string) (string, error) {
	p, err := m.Path(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(p, hiddenDir, "HEAD"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", vcserr.Wrap(vcserr.KindStorage, "failed to read HEAD", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SetHead atomically overwrites a repository's HEAD.
func (m *Manager) SetHead(name, commitID string) error {
	p, err := m.Path(name)
	if err != nil {
		return err
	}
	metaDir := filepath.Join(p, hiddenDir)
	tmp, err := os.CreateTemp(metaDir, "HEAD-*")
	if err != nil {
		return vcserr.Wrap(vcserr.KindStorage, "failed to stage HEAD update", err)
	}
	if _, err := tmp.WriteString(commitID); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return vcserr.Wrap(vcserr.KindStorage, "failed to write HEAD", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return vcserr.Wrap(vcserr.KindStorage, "failed to close HEAD", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(metaDir, "HEAD")); err != nil {
		os.Remove(tmp.Name())
		return vcserr.Wrap(vcserr.KindStorage, "failed to commit HEAD update", err)
	}
	return nil
}

// ObjectStore opens the object store belonging to a repository.
func (m *Manager) ObjectStore(name string) (*objstore.Store, error) {
	p, err := m.Path(name)
	if err != nil {
		return nil, err
	}
	return objstore.Open(filepath.Join(p, hiddenDir, "objects"))
}

// CommitCount walks the repository's linear history from HEAD and
// counts commits, for LIST_REPOS_RESPONSE's metadata.
func (m *Manager) CommitCount(name string) (int, error) {
	head, err := m.Head(name)
	if err != nil {
		return 0, err
	}
	if head == "" {
		return 0, nil
	}
	store, err := m.ObjectStore(name)
	if err != nil {
		return 0, err
	}
	commits, err := commitgraph.Walk(store, head, "")
	if err != nil {
		return 0, err
	}
	return len(commits), nil
}

// LastModified returns the mtime of the repository directory.
func (m *Manager) LastModified(name string) (int64, error) {
	p, err := m.Path(name)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return 0, vcserr.Wrap(vcserr.KindStorage, "failed to stat repository", err)
	}
	return info.ModTime().Unix(), nil
}

// Description reads the optional "description=" line from a repository's
// config file, returning "" if absent. The config file is otherwise an
// opaque key=value scratchpad per spec.md §6.4.
func (m *Manager) Description(name string) (string, error) {
	p, err := m.Path(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(p, hiddenDir, "config"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", vcserr.Wrap(vcserr.KindStorage, "failed to read config", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "description="); ok {
			return after, nil
		}
	}
	return "", nil
}
