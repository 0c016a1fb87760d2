// Package session implements SessionRegistry (C11): the per-connection
// record table guarded by a single mutex, with an idle-sweep goroutine
// that evicts and disconnects stale sessions.
package session

import (
	"net"
	"sync"
	"time"

	"github.com/cantrip-vcs/minigit/internal/config"
	"github.com/cantrip-vcs/minigit/internal/hashid"
)

// IdleTimeout is the duration of inactivity after which a session is
// evicted and its socket closed, per spec.md §4.11.
const IdleTimeout = 300 * time.Second

// Record is one connection's session state.
type Record struct {
	ID            string
	Authenticated bool
	CurrentRepo   string
	LastActivity  time.Time
	Conn          net.Conn
}

// Registry holds every live session, guarded by a single mutex: the
// set is expected to stay small (one record per connected client).
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Record
	clock    config.Clock
}

// New returns an empty registry using clock for activity timestamps.
func New(clock config.Clock) *Registry {
	if clock == nil {
		clock = config.Real
	}
	return &Registry{sessions: make(map[string]*Record), clock: clock}
}

// deriveSessionID hashes a monotonic timestamp and the connection's
// remote address into a stable session identifier, per spec.md §4.11:
// "session_id is a deterministic hash of a monotonic timestamp + socket
// identifier."
func deriveSessionID(clock config.Clock, conn net.Conn) string {
	seed := clock.Monotonic().String() + "|" + conn.RemoteAddr().String()
	return hashid.Sum(seed)
}

// Create registers a new, unauthenticated session for conn and returns
// its record.
func (r *Registry) Create(conn net.Conn) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := &Record{
		ID:           deriveSessionID(r.clock, conn),
		LastActivity: r.clock.Now(),
		Conn:         conn,
	}
	r.sessions[rec.ID] = rec
	return rec
}

// Touch updates a session's last-activity timestamp.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.sessions[id]; ok {
		rec.LastActivity = r.clock.Now()
	}
}

// Get returns the session record for id, if any.
func (r *Registry) Get(id string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	return rec, ok
}

// Remove drops a session from the registry without touching its socket.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// SweepIdle closes and removes every session whose last activity is
// older than IdleTimeout, as of now. Returns the evicted session ids.
func (r *Registry) SweepIdle(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []string
	for id, rec := range r.sessions {
		if now.Sub(rec.LastActivity) >= IdleTimeout {
			_ = rec.Conn.Close()
			delete(r.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// RunSweeper runs SweepIdle every interval until stop is closed.
func (r *Registry) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.SweepIdle(r.clock.Now())
		}
	}
}
