// Package index implements the staging area (C3): an ordered mapping from
// repository-relative path to blob id, persisted as one "path\tid" line
// per entry, plus StagePath, which recursively stores files under a path
// into an ObjectStore while honoring ignore rules.
package index

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cantrip-vcs/minigit/internal/objstore"
)

// Index is the ordered path -> blob id mapping that will become the next
// commit's tree.
type Index struct {
	order  []string
	byPath map[string]string
}

// New returns an empty index.
func New() *Index {
	return &Index{byPath: make(map[string]string)}
}

// Load reads an index file. A missing file is treated as an empty index,
// matching "created empty at init".
func Load(path string) (*Index, error) {
	ix := New()
	f, err := os.Open(path) //nolint:gosec // path is the caller's own repository metadata file
	if err != nil {
		if os.IsNotExist(err) {
			return ix, nil
		}
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			return nil, fmt.Errorf("index: malformed line %q", line)
		}
		ix.Set(line[:tab], line[tab+1:])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("index: read %s: %w", path, err)
	}
	return ix, nil
}

// Save overwrites the index file at path with the current contents.
func (ix *Index) Save(path string) error {
	var sb strings.Builder
	for _, p := range ix.order {
		sb.WriteString(p)
		sb.WriteByte('\t')
		sb.WriteString(ix.byPath[p])
		sb.WriteByte('\n')
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("index: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("index: replace %s: %w", path, err)
	}
	return nil
}

// Get returns the blob id staged for path, if any.
func (ix *Index) Get(path string) (string, bool) {
	id, ok := ix.byPath[path]
	return id, ok
}

// Set stages path at id, preserving the verbatim path string. Re-setting
// an existing path updates its id without moving its position.
func (ix *Index) Set(path, id string) {
	if _, exists := ix.byPath[path]; !exists {
		ix.order = append(ix.order, path)
	}
	ix.byPath[path] = id
}

// Remove unstages path, if present.
func (ix *Index) Remove(path string) {
	if _, ok := ix.byPath[path]; !ok {
		return
	}
	delete(ix.byPath, path)
	for i, p := range ix.order {
		if p == path {
			ix.order = append(ix.order[:i], ix.order[i+1:]...)
			break
		}
	}
}

// Paths returns every staged path in insertion order.
func (ix *Index) Paths() []string {
	out := make([]string, len(ix.order))
	copy(out, ix.order)
	return out
}

// Map returns a snapshot of the path -> id mapping.
func (ix *Index) Map() map[string]string {
	out := make(map[string]string, len(ix.byPath))
	for p, id := range ix.byPath {
		out[p] = id
	}
	return out
}

// Len reports the number of staged entries.
func (ix *Index) Len() int { return len(ix.order) }

// stageFile reads relPath from disk, stores it, and (if ix is non-nil)
// records the resulting id into ix under relPath.
func stageFile(repoRoot, relPath string, store *objstore.Store, ix *Index) error {
	data, err := os.ReadFile(filepath.Join(repoRoot, relPath)) //nolint:gosec
	if err != nil {
		return fmt.Errorf("index: read %s: %w", relPath, err)
	}
	id, err := store.Put(data)
	if err != nil {
		return fmt.Errorf("index: store %s: %w", relPath, err)
	}
	if ix != nil {
		ix.Set(relPath, id)
	}
	return nil
}

// StagePath stores every regular file under path (relative to repoRoot)
// into store, honoring .minigitignore rules, and records each one into ix
// under its repository-relative path. path may name a single file or a
// directory; directories are enumerated recursively. Returns the
// repository-relative paths that were staged, in deterministic (sorted)
// order.
func StagePath(repoRoot, path string, store *objstore.Store, ix *Index) ([]string, error) {
	abs := filepath.Join(repoRoot, path)
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("index: stat %s: %w", path, err)
	}

	matcher := loadIgnoreMatcher(repoRoot)

	if !info.IsDir() {
		rel := filepath.ToSlash(path)
		if matcher.isIgnored(rel, false) {
			return nil, nil
		}
		if err := stageFile(repoRoot, rel, store, ix); err != nil {
			return nil, err
		}
		return []string{rel}, nil
	}

	var staged []string
	err = filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
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
			if matcher.isIgnored(rel, true) {
				return filepath.SkipDir
			}
			matcher.loadDir(repoRoot, rel+"/")
			return nil
		}
		if matcher.isIgnored(rel, false) {
			return nil
		}
		staged = append(staged, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index: walk %s: %w", path, err)
	}

	sort.Strings(staged)
	for _, rel := range staged {
		if err := stageFile(repoRoot, rel, store, ix); err != nil {
			return nil, err
		}
	}
	return staged, nil
}
