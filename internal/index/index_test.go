package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cantrip-vcs/minigit/internal/objstore"
)

func TestSetGetRemoveOrder(t *testing.T) {
	ix := New()
	ix.Set("b.txt", "id-b")
	ix.Set("a.txt", "id-a")
	if got := ix.Paths(); got[0] != "b.txt" || got[1] != "a.txt" {
		t.Fatalf("Paths = %v, want insertion order", got)
	}
	ix.Remove("b.txt")
	if _, ok := ix.Get("b.txt"); ok {
		t.Fatal("b.txt still present after Remove")
	}
	if got := ix.Paths(); len(got) != 1 || got[0] != "a.txt" {
		t.Fatalf("Paths after remove = %v", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index")

	ix := New()
	ix.Set("a.txt", "aaa")
	ix.Set("dir/b.txt", "bbb")
	if err := ix.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if id, ok := loaded.Get("a.txt"); !ok || id != "aaa" {
		t.Fatalf("a.txt = %q, %v", id, ok)
	}
	if id, ok := loaded.Get("dir/b.txt"); !ok || id != "bbb" {
		t.Fatalf("dir/b.txt = %q, %v", id, ok)
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	ix, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 0 {
		t.Fatalf("Len = %d, want 0", ix.Len())
	}
}

func TestStagePathHonorsIgnore(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".minigitignore"), []byte("*.log\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "debug.log"), []byte("noisy"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := objstore.Open(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatal(err)
	}
	ix := New()
	staged, err := StagePath(dir, ".", store, ix)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range staged {
		if p == "debug.log" {
			t.Fatal("StagePath staged an ignored file")
		}
	}
	if _, ok := ix.Get("a.txt"); !ok {
		t.Fatal("StagePath did not stage a.txt")
	}
	if _, ok := ix.Get("debug.log"); ok {
		t.Fatal("index contains ignored debug.log")
	}
}
