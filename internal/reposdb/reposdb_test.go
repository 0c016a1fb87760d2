package reposdb

import (
	"path/filepath"
	"testing"

	"github.com/cantrip-vcs/minigit/internal/repomanager"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.sqlite3"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGetDelete(t *testing.T) {
	c := newTestCache(t)

	if _, ok := c.Get("proj"); ok {
		t.Fatal("expected miss on empty cache")
	}

	if err := c.Put(Entry{Name: "proj", LastModified: 100, CommitCount: 3}); err != nil {
		t.Fatal(err)
	}
	e, ok := c.Get("proj")
	if !ok || e.CommitCount != 3 || e.LastModified != 100 {
		t.Fatalf("got %+v, ok=%v", e, ok)
	}

	// Put again replaces rather than duplicates.
	if err := c.Put(Entry{Name: "proj", LastModified: 200, CommitCount: 5}); err != nil {
		t.Fatal(err)
	}
	e, ok = c.Get("proj")
	if !ok || e.CommitCount != 5 || e.LastModified != 200 {
		t.Fatalf("after update, got %+v, ok=%v", e, ok)
	}

	if err := c.Delete("proj"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("proj"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestListOrdersByName(t *testing.T) {
	c := newTestCache(t)
	c.Put(Entry{Name: "zeta", LastModified: 1, CommitCount: 1})
	c.Put(Entry{Name: "alpha", LastModified: 1, CommitCount: 1})

	entries, err := c.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Name != "alpha" || entries[1].Name != "zeta" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestRefreshAllDropsStaleEntries(t *testing.T) {
	root := t.TempDir()
	rm, err := repomanager.New(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := rm.Create("proj"); err != nil {
		t.Fatal(err)
	}

	c := newTestCache(t)
	// A stale entry for a repo that no longer exists.
	c.Put(Entry{Name: "ghost", LastModified: 1, CommitCount: 1})

	entries, err := RefreshAll(c, rm)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "proj" {
		t.Fatalf("entries = %+v", entries)
	}
	if _, ok := c.Get("ghost"); ok {
		t.Fatal("expected stale ghost entry to be dropped")
	}
}
