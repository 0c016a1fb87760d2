// Package monitor implements a read-only operator dashboard: an HTTP +
// WebSocket endpoint that streams session/push/pull activity published by
// the server engine, and serves repository descriptions rendered from
// Markdown. It cannot push, pull, or mutate a repository.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cantrip-vcs/minigit/internal/repomanager"
	"github.com/cantrip-vcs/minigit/internal/reposdb"
)

const (
	broadcastChannelSize = 256
	writeWait            = 10 * time.Second
	pingPeriod           = 30 * time.Second
)

// Kind classifies an Activity event for dashboard filtering.
type Kind string

const (
	KindAuth   Kind = "auth"
	KindPush   Kind = "push"
	KindPull   Kind = "pull"
	KindClone  Kind = "clone"
	KindCreate Kind = "create_repo"
	KindRemove Kind = "remove_repo"
)

// Activity is one line of the live feed, broadcast to every connected
// dashboard client as JSON.
type Activity struct {
	Kind      Kind      `json:"kind"`
	Repo      string    `json:"repo,omitempty"`
	Session   string    `json:"session,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans Activity events out to every connected WebSocket client.
// Publish is safe to call from any goroutine; the server engine's
// handlers hold a reference and call it inline after each operation.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex

	feed chan Activity

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub constructs a Hub. Call Start to begin fanning out events.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		logger:  logger,
		clients: make(map[*websocket.Conn]*sync.Mutex),
		feed:    make(chan Activity, broadcastChannelSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the fan-out goroutine.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.run()
}

// Stop halts the fan-out goroutine and closes every client connection.
func (h *Hub) Stop() {
	h.cancel()
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.Close()
	}
	h.clients = make(map[*websocket.Conn]*sync.Mutex)
}

// Publish queues an event for broadcast. Non-blocking: drops the event
// if the feed is full, since this is an observational channel, never a
// source of truth.
func (h *Hub) Publish(a Activity) {
	select {
	case h.feed <- a:
	default:
		h.logger.Warn("monitor: activity feed full, dropping event", "kind", a.Kind)
	}
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case a := <-h.feed:
			h.broadcast(a)
		}
	}
}

func (h *Hub) broadcast(a Activity) {
	h.mu.RLock()
	snapshot := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, mu := range h.clients {
		snapshot[conn] = mu
	}
	h.mu.RUnlock()

	var dead []*websocket.Conn
	for conn, mu := range snapshot {
		mu.Lock()
		err := conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err == nil {
			err = conn.WriteJSON(a)
		}
		mu.Unlock()
		if err != nil {
			dead = append(dead, conn)
		}
	}
	if len(dead) == 0 {
		return
	}
	h.mu.Lock()
	for _, conn := range dead {
		delete(h.clients, conn)
		_ = conn.Close()
	}
	h.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("monitor: websocket upgrade failed", "err", err)
		return
	}

	writeMu := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = writeMu
	h.mu.Unlock()

	done := make(chan struct{})
	go h.clientReadPump(conn, done)
	go h.clientWritePump(conn, done, writeMu)
}

func (h *Hub) clientReadPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		// The dashboard is receive-only; any inbound message (including
		// the close frame) just signals the connection is gone.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) clientWritePump(conn *websocket.Conn, done chan struct{}, writeMu *sync.Mutex) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			err := conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err == nil {
				err = conn.WriteMessage(websocket.PingMessage, nil)
			}
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// repoSummary is the JSON shape served at /api/repos: cache metadata plus
// the repository's Markdown-rendered description.
type repoSummary struct {
	Name            string `json:"name"`
	LastModified    int64  `json:"last_modified"`
	CommitCount     int    `json:"commit_count"`
	DescriptionHTML string `json:"description_html,omitempty"`
}

// Server is the monitor's HTTP+WebSocket listener.
type Server struct {
	hub    *Hub
	repos  *repomanager.Manager
	cache  *reposdb.Cache
	logger *slog.Logger
	http   *http.Server
}

// NewServer builds a monitor Server reading repos/cache for dashboard
// snapshots and broadcasting hub's activity feed over /ws.
func NewServer(addr string, hub *Hub, repos *repomanager.Manager, cache *reposdb.Cache, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{hub: hub, repos: repos, cache: cache, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/repos", s.handleRepos)
	mux.HandleFunc("/ws", hub.handleWS)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving the dashboard until Shutdown is called.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRepos(w http.ResponseWriter, _ *http.Request) {
	names, err := s.repos.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	summaries := make([]repoSummary, 0, len(names))
	for _, name := range names {
		entry, ok := s.cache.Get(name)
		if !ok {
			entry, err = reposdb.Refresh(s.cache, s.repos, name)
			if err != nil {
				continue
			}
		}
		desc, _ := s.repos.Description(name)
		summaries = append(summaries, repoSummary{
			Name:            entry.Name,
			LastModified:    entry.LastModified,
			CommitCount:     entry.CommitCount,
			DescriptionHTML: renderDescription(desc),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summaries)
}
