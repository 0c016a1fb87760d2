package localcmd

import (
	"os"
	"path/filepath"

	"github.com/cantrip-vcs/minigit/internal/textdiff"
	"github.com/cantrip-vcs/minigit/internal/workdir"
)

// DiffCached renders textdiff.FileDiff for every staged (index vs HEAD)
// entry, per spec.md §4.6: "--cached lists index entries."
func (r *Repo) DiffCached() ([]textdiff.FileDiff, error) {
	headTree, err := r.HeadTree()
	if err != nil {
		return nil, err
	}
	idx := r.Index.Map()

	paths := make(map[string]bool)
	for p := range headTree {
		paths[p] = true
	}
	for p := range idx {
		paths[p] = true
	}

	var diffs []textdiff.FileDiff
	for p := range paths {
		oldID, oldOK := headTree[p]
		newID, newOK := idx[p]
		if oldID == newID {
			continue
		}
		var oldContent, newContent []byte
		if oldOK {
			oldContent, err = r.Store.Get(oldID)
			if err != nil {
				return nil, err
			}
		}
		if newOK {
			newContent, err = r.Store.Get(newID)
			if err != nil {
				return nil, err
			}
		}
		diffs = append(diffs, textdiff.Compute(p, oldContent, newContent, textdiff.DefaultContextLines))
	}
	return diffs, nil
}

// Diff renders textdiff.FileDiff for every working-tree change reported
// by WorkdirAnalyzer, per spec.md §4.6: "default lists working-tree
// changes from the table above."
func (r *Repo) Diff() ([]textdiff.FileDiff, error) {
	headTree, err := r.HeadTree()
	if err != nil {
		return nil, err
	}
	entries, err := workdir.Analyze(r.Root, headTree, r.Index)
	if err != nil {
		return nil, err
	}

	var diffs []textdiff.FileDiff
	for _, e := range entries {
		var oldContent, newContent []byte
		if id, ok := headTree[e.Path]; ok {
			oldContent, err = r.Store.Get(id)
			if err != nil {
				return nil, err
			}
		}
		if e.Status != workdir.StatusDeleted && e.Status != workdir.StatusModifiedDeleted && e.Status != workdir.StatusAddedThenDeleted {
			newContent, err = os.ReadFile(filepath.Join(r.Root, e.Path)) //nolint:gosec
			if err != nil {
				return nil, err
			}
		}
		diffs = append(diffs, textdiff.Compute(e.Path, oldContent, newContent, textdiff.DefaultContextLines))
	}
	return diffs, nil
}
