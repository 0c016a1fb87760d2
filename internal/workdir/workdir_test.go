package workdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cantrip-vcs/minigit/internal/hashid"
	"github.com/cantrip-vcs/minigit/internal/index"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAnalyzeUntracked(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hi")
	entries, err := Analyze(dir, nil, index.New())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != StatusUntracked || entries[0].Path != "a.txt" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestAnalyzeCleanAfterCommit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hi")
	id := sumHelper(t, "hi")
	ix := index.New()
	ix.Set("a.txt", id)
	head := map[string]string{"a.txt": id}

	entries, err := Analyze(dir, head, ix)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %+v, want none", entries)
	}
}

func TestAnalyzeModified(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "changed")
	id := sumHelper(t, "hi")
	ix := index.New()
	ix.Set("a.txt", id)
	head := map[string]string{"a.txt": id}

	entries, err := Analyze(dir, head, ix)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != StatusModified {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestAnalyzeRenameDetection(t *testing.T) {
	dir := t.TempDir()
	id := sumHelper(t, "hi")
	writeFile(t, dir, "b.txt", "hi")
	head := map[string]string{"a.txt": id}
	ix := index.New()
	ix.Set("a.txt", id)

	entries, err := Analyze(dir, head, ix)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v, want one rename", entries)
	}
	if entries[0].Status != StatusRenamed || entries[0].Path != "b.txt" || entries[0].OldPath != "a.txt" {
		t.Fatalf("entries[0] = %+v", entries[0])
	}
}

func sumHelper(t *testing.T, s string) string {
	t.Helper()
	return hashid.Sum(s)
}
