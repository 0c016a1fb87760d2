package textdiff

import "testing"

func TestComputeNoChange(t *testing.T) {
	d := Compute("a.txt", []byte("one\ntwo\n"), []byte("one\ntwo\n"), DefaultContextLines)
	if len(d.Hunks) != 0 {
		t.Fatalf("identical content produced %d hunks, want 0", len(d.Hunks))
	}
}

func TestComputeSingleLineChange(t *testing.T) {
	d := Compute("a.txt", []byte("one\ntwo\nthree\n"), []byte("one\nTWO\nthree\n"), DefaultContextLines)
	if len(d.Hunks) != 1 {
		t.Fatalf("got %d hunks, want 1", len(d.Hunks))
	}
	var adds, dels int
	for _, l := range d.Hunks[0].Lines {
		switch l.Type {
		case LineAddition:
			adds++
		case LineDeletion:
			dels++
		}
	}
	if adds != 1 || dels != 1 {
		t.Fatalf("adds=%d dels=%d, want 1,1", adds, dels)
	}
}

func TestComputeAddedFile(t *testing.T) {
	d := Compute("new.txt", nil, []byte("hello\n"), DefaultContextLines)
	if len(d.Hunks) != 1 {
		t.Fatalf("got %d hunks, want 1", len(d.Hunks))
	}
	if d.Hunks[0].Lines[0].Type != LineAddition {
		t.Fatalf("first line type = %v, want addition", d.Hunks[0].Lines[0].Type)
	}
}

func TestComputeBinaryDetected(t *testing.T) {
	d := Compute("bin", []byte{0, 1, 2}, []byte{0, 1, 2, 3}, DefaultContextLines)
	if !d.IsBinary {
		t.Fatal("null-byte content not detected as binary")
	}
}

func TestComputeTruncatesLargeBlobs(t *testing.T) {
	big := make([]byte, maxBlobSize+1)
	d := Compute("big", nil, big, DefaultContextLines)
	if !d.Truncated {
		t.Fatal("oversized blob not marked truncated")
	}
}
