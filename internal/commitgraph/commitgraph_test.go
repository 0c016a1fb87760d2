package commitgraph

import (
	"testing"
	"time"

	"github.com/cantrip-vcs/minigit/internal/objstore"
)

func TestStoreLoadRoundTrip(t *testing.T) {
	store, err := objstore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c, err := StoreCommit(store, "", "initial commit", ts, map[string]string{"a.txt": "id-a"})
	if err != nil {
		t.Fatal(err)
	}
	if c.ID == "" {
		t.Fatal("StoreCommit did not assign an id")
	}

	loaded, err := LoadCommit(store, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Message != "initial commit" {
		t.Fatalf("Message = %q", loaded.Message)
	}
	if loaded.Tree["a.txt"] != "id-a" {
		t.Fatalf("Tree[a.txt] = %q", loaded.Tree["a.txt"])
	}
	if !loaded.Timestamp.Equal(ts) {
		t.Fatalf("Timestamp = %v, want %v", loaded.Timestamp, ts)
	}
}

func TestStoreIsContentIdempotent(t *testing.T) {
	store, err := objstore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Unix(1000, 0).UTC()
	c1, err := StoreCommit(store, "", "m", ts, map[string]string{"a": "1"})
	if err != nil {
		t.Fatal(err)
	}
	c2, err := StoreCommit(store, "", "m", ts, map[string]string{"a": "1"})
	if err != nil {
		t.Fatal(err)
	}
	if c1.ID != c2.ID {
		t.Fatalf("identical commits produced different ids: %q != %q", c1.ID, c2.ID)
	}
}

func TestWalkLinearHistory(t *testing.T) {
	store, err := objstore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Unix(1000, 0).UTC()
	c1, err := StoreCommit(store, "", "m1", ts, map[string]string{"a": "1"})
	if err != nil {
		t.Fatal(err)
	}
	c2, err := StoreCommit(store, c1.ID, "m2", ts.Add(time.Second), map[string]string{"a": "1", "b": "2"})
	if err != nil {
		t.Fatal(err)
	}

	history, err := Walk(store, c2.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].ID != c2.ID || history[1].ID != c1.ID {
		t.Fatalf("Walk = %+v", history)
	}

	stopped, err := Walk(store, c2.ID, c1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stopped) != 1 || stopped[0].ID != c2.ID {
		t.Fatalf("Walk with stopAt = %+v", stopped)
	}
}

func TestWalkStopAtNotFoundReturnsFullHistory(t *testing.T) {
	store, err := objstore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Unix(1000, 0).UTC()
	c1, err := StoreCommit(store, "", "m1", ts, map[string]string{"a": "1"})
	if err != nil {
		t.Fatal(err)
	}
	c2, err := StoreCommit(store, c1.ID, "m2", ts, map[string]string{"a": "1"})
	if err != nil {
		t.Fatal(err)
	}
	history, err := Walk(store, c2.ID, "deadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("Walk with unmatched stopAt = %d entries, want 2", len(history))
	}
}
