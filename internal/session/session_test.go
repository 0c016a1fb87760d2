package session

import (
	"net"
	"testing"
	"time"

	"github.com/cantrip-vcs/minigit/internal/config"
)

func fakeConnPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestCreateTouchGetRemove(t *testing.T) {
	clock := config.NewFakeClock(time.Unix(1000, 0))
	reg := New(clock)
	conn, _ := fakeConnPair(t)

	rec := reg.Create(conn)
	if rec.ID == "" {
		t.Fatal("expected a non-empty session id")
	}
	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", reg.Len())
	}

	clock.Advance(5 * time.Second)
	reg.Touch(rec.ID)
	got, ok := reg.Get(rec.ID)
	if !ok {
		t.Fatal("expected session to be found")
	}
	if !got.LastActivity.Equal(clock.Now()) {
		t.Fatalf("LastActivity = %v, want %v", got.LastActivity, clock.Now())
	}

	reg.Remove(rec.ID)
	if reg.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after Remove", reg.Len())
	}
}

func TestSweepIdleEvictsStaleSessions(t *testing.T) {
	clock := config.NewFakeClock(time.Unix(1000, 0))
	reg := New(clock)
	conn, _ := fakeConnPair(t)
	rec := reg.Create(conn)

	clock.Advance(IdleTimeout - time.Second)
	evicted := reg.SweepIdle(clock.Now())
	if len(evicted) != 0 {
		t.Fatalf("expected no eviction before timeout, got %v", evicted)
	}

	clock.Advance(2 * time.Second)
	evicted = reg.SweepIdle(clock.Now())
	if len(evicted) != 1 || evicted[0] != rec.ID {
		t.Fatalf("evicted = %v, want [%s]", evicted, rec.ID)
	}
	if reg.Len() != 0 {
		t.Fatal("expected registry to be empty after sweep")
	}
}

func TestSessionIDsDifferAcrossConnections(t *testing.T) {
	clock := config.NewFakeClock(time.Unix(1000, 0))
	reg := New(clock)
	connA, _ := fakeConnPair(t)
	connB, _ := fakeConnPair(t)

	recA := reg.Create(connA)
	clock.Advance(time.Nanosecond)
	recB := reg.Create(connB)
	if recA.ID == recB.ID {
		t.Fatal("expected distinct session ids for distinct connections/timestamps")
	}
}
