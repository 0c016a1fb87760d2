package objstore

import (
	"errors"
	"testing"

	"github.com/cantrip-vcs/minigit/internal/hashid"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.Put([]byte("hello\n"))
	if err != nil {
		t.Fatal(err)
	}
	if id != hashid.Sum("hello\n") {
		t.Fatalf("Put returned %q, want content hash", id)
	}
	if !s.Has(id) {
		t.Fatal("Has false after Put")
	}
	got, err := s.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello\n" {
		t.Fatalf("Get = %q, want %q", got, "hello\n")
	}
}

func TestPutIdempotent(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id1, err := s.Put([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := s.Put([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Fatalf("Put not idempotent: %q != %q", id1, id2)
	}
}

func TestGetMissing(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Get("0000000000000000000000000000000000000a")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing id = %v, want ErrNotFound", err)
	}
}
