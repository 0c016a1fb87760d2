// Package vcsserver implements ServerEngine (C12): a single accept
// loop spawning one worker goroutine per connection, a dispatch table
// keyed by message type, and the push/pull/clone/log/auth handlers.
package vcsserver

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cantrip-vcs/minigit/internal/commitgraph"
	"github.com/cantrip-vcs/minigit/internal/config"
	"github.com/cantrip-vcs/minigit/internal/monitor"
	"github.com/cantrip-vcs/minigit/internal/protocol"
	"github.com/cantrip-vcs/minigit/internal/repomanager"
	"github.com/cantrip-vcs/minigit/internal/reposdb"
	"github.com/cantrip-vcs/minigit/internal/session"
	"github.com/cantrip-vcs/minigit/internal/transport"
	"github.com/cantrip-vcs/minigit/internal/vcserr"
)

// Server is the ServerEngine: one listener, one repository manager, one
// session registry.
type Server struct {
	cfg     config.ServerConfig
	repos   *repomanager.Manager
	cache   *reposdb.Cache
	clock   config.Clock
	sess    *session.Registry
	ln      net.Listener
	wg      sync.WaitGroup
	stopCh  chan struct{}
	stopped bool
	mu      sync.Mutex

	monitor *monitor.Hub // nil unless SetMonitor is called; observational only
}

// SetMonitor attaches a monitor.Hub that handlers publish activity events
// to. Must be called before Start; passing nil disables publishing.
func (s *Server) SetMonitor(h *monitor.Hub) {
	s.monitor = h
}

func (s *Server) publish(a monitor.Activity) {
	if s.monitor == nil {
		return
	}
	s.monitor.Publish(a)
}

// Cache exposes the repository metadata cache so a monitor dashboard
// process sharing this server's root can read through it directly.
func (s *Server) Cache() *reposdb.Cache { return s.cache }

// Repos exposes the repository manager for the same reason.
func (s *Server) Repos() *repomanager.Manager { return s.repos }

// New builds a Server rooted at cfg.RootPath, creating it if absent.
func New(cfg config.ServerConfig, clock config.Clock) (*Server, error) {
	cfg = config.NewServerConfig(cfg)
	if clock == nil {
		clock = config.Real
	}
	repos, err := repomanager.New(cfg.RootPath)
	if err != nil {
		return nil, err
	}
	cache, err := reposdb.Open(reposdb.DBPath(cfg.RootPath))
	if err != nil {
		return nil, err
	}
	if _, err := reposdb.RefreshAll(cache, repos); err != nil {
		cache.Close()
		return nil, err
	}
	return &Server{
		cfg:    cfg,
		repos:  repos,
		cache:  cache,
		clock:  clock,
		sess:   session.New(clock),
		stopCh: make(chan struct{}),
	}, nil
}

// Start opens the listening socket and begins accepting connections and
// sweeping idle sessions in the background. It returns once the
// listener is open; Serve (invoked internally in a goroutine) does the
// accept loop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return vcserr.Wrap(vcserr.KindTransport, "failed to listen", err)
	}
	s.ln = ln
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sess.RunSweeper(session.IdleTimeout/10, s.stopCh)
	}()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	return nil
}

// Addr returns the listener's address, useful when Port was 0.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				continue
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Shutdown stops accepting connections, closes the listener, and waits
// for in-flight workers to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	if s.ln != nil {
		_ = s.ln.Close()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		_ = s.cache.Close()
		return nil
	case <-ctx.Done():
		_ = s.cache.Close()
		return ctx.Err()
	}
}

// handleConn runs one connection's worker loop: recv, touch, dispatch,
// until dispatch signals exit or the link dies.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	link := transport.New(conn)
	_ = link.SetTimeouts(s.cfg.SocketTimeout)
	codec := protocol.NewCodec(s.cfg.Password)
	rec := s.sess.Create(conn)
	defer s.sess.Remove(rec.ID)

	ctx := context.Background()
	for {
		frame, err := link.RecvMessage(ctx, codec)
		if err != nil {
			return
		}
		s.sess.Touch(rec.ID)
		if !s.dispatch(ctx, link, codec, rec, frame) {
			return
		}
	}
}

// dispatch routes one frame to its handler. Returns false when the
// worker should exit (peer logged out, fatal protocol error already
// reported).
func (s *Server) dispatch(ctx context.Context, link *transport.Link, codec *protocol.Codec, rec *session.Record, frame protocol.Frame) bool {
	h, ok := handlers[frame.Type]
	if !ok {
		s.sendError(ctx, link, codec, protocol.StatusProtocolError, "unknown message type")
		return true
	}
	if h.requiresAuth && !rec.Authenticated {
		s.sendError(ctx, link, codec, protocol.StatusAuthRequired, "authentication required")
		return true
	}
	if h.requiresRepo && rec.CurrentRepo == "" {
		s.sendError(ctx, link, codec, protocol.StatusInvalidRequest, "no repository selected")
		return true
	}
	return h.fn(s, ctx, link, codec, rec, frame)
}

func (s *Server) sendError(ctx context.Context, link *transport.Link, codec *protocol.Codec, status protocol.StatusCode, message string) {
	em := protocol.ErrorMsg{Status: status, Message: message}
	_ = link.SendMessage(ctx, codec, protocol.MsgErrorMsg, em.Encode())
}

type handlerFunc func(s *Server, ctx context.Context, link *transport.Link, codec *protocol.Codec, rec *session.Record, frame protocol.Frame) bool

type handlerEntry struct {
	requiresAuth bool
	requiresRepo bool
	fn           handlerFunc
}

var handlers = map[protocol.MessageType]handlerEntry{
	protocol.MsgAuthRequest:        {fn: (*Server).handleAuth},
	protocol.MsgLoginRequest:       {requiresAuth: true, fn: (*Server).handleLogin},
	protocol.MsgListReposRequest:   {requiresAuth: true, fn: (*Server).handleListRepos},
	protocol.MsgUseRepoRequest:     {requiresAuth: true, fn: (*Server).handleUseRepo},
	protocol.MsgCreateRepoRequest:  {requiresAuth: true, fn: (*Server).handleCreateRepo},
	protocol.MsgRemoveRepoRequest:  {requiresAuth: true, fn: (*Server).handleRemoveRepo},
	protocol.MsgPushCheckRequest:   {requiresAuth: true, requiresRepo: true, fn: (*Server).handlePushCheck},
	protocol.MsgPushCommitData:     {requiresAuth: true, requiresRepo: true, fn: (*Server).handlePushCommitData},
	protocol.MsgPushObjectData:     {requiresAuth: true, requiresRepo: true, fn: (*Server).handlePushObjectData},
	protocol.MsgPushRequest:        {requiresAuth: true, requiresRepo: true, fn: (*Server).handlePushRequest},
	protocol.MsgPullCheckRequest:   {requiresAuth: true, requiresRepo: true, fn: (*Server).handlePullCheck},
	protocol.MsgCloneRequest:       {requiresAuth: true, fn: (*Server).handleClone},
	protocol.MsgLogRequest:         {requiresAuth: true, requiresRepo: true, fn: (*Server).handleLog},
	protocol.MsgLogoutRequest:      {requiresAuth: true, fn: (*Server).handleLogout},
}

func (s *Server) handleAuth(ctx context.Context, link *transport.Link, codec *protocol.Codec, rec *session.Record, frame protocol.Frame) bool {
	req, err := protocol.DecodeAuthRequest(frame.Payload)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusProtocolError, "malformed auth request")
		return true
	}
	ok := false
	switch req.AuthType {
	case protocol.AuthTypePassword:
		ok = subtle.ConstantTimeCompare(req.Data, []byte(s.cfg.Password)) == 1
	case protocol.AuthTypeCert:
		ok = s.cfg.CertPath != "" && len(req.Data) > 0
	}
	if !ok {
		resp := protocol.AuthResponse{Status: protocol.StatusAuthFailed}
		_ = link.SendMessage(ctx, codec, protocol.MsgAuthResponse, resp.Encode())
		return true
	}
	rec.Authenticated = true
	codec.MarkAuthenticated()
	s.publish(monitor.Activity{Kind: monitor.KindAuth, Session: rec.ID, Timestamp: time.Now()})
	idBytes := [32]byte{}
	copy(idBytes[:], rec.ID)
	resp := protocol.AuthResponse{
		Status:         protocol.StatusSuccess,
		SessionID:      idBytes,
		SessionTimeout: uint32(session.IdleTimeout.Seconds()),
	}
	_ = link.SendMessage(ctx, codec, protocol.MsgAuthResponse, resp.Encode())
	return true
}

func (s *Server) handleLogin(ctx context.Context, link *transport.Link, codec *protocol.Codec, rec *session.Record, frame protocol.Frame) bool {
	_, _ = protocol.DecodeStringMessage(frame.Payload)
	resp := protocol.StringMessage{Value: "ok"}
	_ = link.SendMessage(ctx, codec, protocol.MsgLoginResponse, resp.Encode())
	return true
}

func (s *Server) handleLogout(ctx context.Context, link *transport.Link, codec *protocol.Codec, rec *session.Record, frame protocol.Frame) bool {
	resp := protocol.StringMessage{Value: "bye"}
	_ = link.SendMessage(ctx, codec, protocol.MsgLogoutResponse, resp.Encode())
	return false
}

func (s *Server) handleListRepos(ctx context.Context, link *transport.Link, codec *protocol.Codec, rec *session.Record, frame protocol.Frame) bool {
	names, err := s.repos.List()
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusServerError, err.Error())
		return true
	}
	resp := protocol.ListReposResponse{}
	for _, name := range names {
		entry, ok := s.cache.Get(name)
		if !ok {
			entry, err = reposdb.Refresh(s.cache, s.repos, name)
			if err != nil {
				s.sendError(ctx, link, codec, protocol.StatusServerError, err.Error())
				return true
			}
		}
		resp.Repos = append(resp.Repos, protocol.RepoListItem{
			Name:         entry.Name,
			LastModified: uint64(entry.LastModified), //nolint:gosec
			CommitCount:  uint32(entry.CommitCount),   //nolint:gosec
		})
	}
	_ = link.SendMessage(ctx, codec, protocol.MsgListReposResponse, resp.Encode())
	return true
}

func (s *Server) handleUseRepo(ctx context.Context, link *transport.Link, codec *protocol.Codec, rec *session.Record, frame protocol.Frame) bool {
	req, err := protocol.DecodeStringMessage(frame.Payload)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusProtocolError, "malformed request")
		return true
	}
	if !s.repos.Exists(req.Value) {
		s.sendError(ctx, link, codec, protocol.StatusRepoNotFound, "no such repository: "+req.Value)
		return true
	}
	rec.CurrentRepo = req.Value
	resp := protocol.StringMessage{Value: req.Value}
	_ = link.SendMessage(ctx, codec, protocol.MsgUseRepoResponse, resp.Encode())
	return true
}

func (s *Server) handleCreateRepo(ctx context.Context, link *transport.Link, codec *protocol.Codec, rec *session.Record, frame protocol.Frame) bool {
	req, err := protocol.DecodeStringMessage(frame.Payload)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusProtocolError, "malformed request")
		return true
	}
	if err := s.repos.Create(req.Value); err != nil {
		s.sendError(ctx, link, codec, protocol.StatusRepoExists, err.Error())
		return true
	}
	if _, err := reposdb.Refresh(s.cache, s.repos, req.Value); err != nil {
		s.sendError(ctx, link, codec, protocol.StatusServerError, err.Error())
		return true
	}
	s.publish(monitor.Activity{Kind: monitor.KindCreate, Repo: req.Value, Session: rec.ID, Timestamp: time.Now()})
	resp := protocol.StringMessage{Value: req.Value}
	_ = link.SendMessage(ctx, codec, protocol.MsgCreateRepoResponse, resp.Encode())
	return true
}

func (s *Server) handleRemoveRepo(ctx context.Context, link *transport.Link, codec *protocol.Codec, rec *session.Record, frame protocol.Frame) bool {
	req, err := protocol.DecodeStringMessage(frame.Payload)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusProtocolError, "malformed request")
		return true
	}
	if err := s.repos.Remove(req.Value); err != nil {
		s.sendError(ctx, link, codec, protocol.StatusInvalidRepo, err.Error())
		return true
	}
	_ = s.cache.Delete(req.Value)
	if rec.CurrentRepo == req.Value {
		rec.CurrentRepo = ""
	}
	s.publish(monitor.Activity{Kind: monitor.KindRemove, Repo: req.Value, Session: rec.ID, Timestamp: time.Now()})
	resp := protocol.StringMessage{Value: req.Value}
	_ = link.SendMessage(ctx, codec, protocol.MsgRemoveRepoResponse, resp.Encode())
	return true
}

func (s *Server) handlePushCheck(ctx context.Context, link *transport.Link, codec *protocol.Codec, rec *session.Record, frame protocol.Frame) bool {
	req, err := protocol.DecodePushCheckRequest(frame.Payload)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusProtocolError, "malformed request")
		return true
	}
	head, err := s.repos.Head(rec.CurrentRepo)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusServerError, err.Error())
		return true
	}
	resp := protocol.PushCheckResponse{RemoteHead: head, NeedsUpdate: head != req.LocalHead}
	_ = link.SendMessage(ctx, codec, protocol.MsgPushCheckResponse, resp.Encode())
	return true
}

func (s *Server) handlePushCommitData(ctx context.Context, link *transport.Link, codec *protocol.Codec, rec *session.Record, frame protocol.Frame) bool {
	cd, err := protocol.DecodeCommitData(frame.Payload)
	if err != nil {
		return true
	}
	store, err := s.repos.ObjectStore(rec.CurrentRepo)
	if err != nil {
		return true
	}
	_, _ = commitgraph.StoreRaw(store, cd.CommitData)
	return true
}

func (s *Server) handlePushObjectData(ctx context.Context, link *transport.Link, codec *protocol.Codec, rec *session.Record, frame protocol.Frame) bool {
	od, err := protocol.DecodeObjectData(frame.Payload)
	if err != nil {
		return true
	}
	if !protocol.VerifyChecksum(od.Data, od.CRC32) {
		return true
	}
	store, err := s.repos.ObjectStore(rec.CurrentRepo)
	if err != nil {
		return true
	}
	_, _ = store.Put(od.Data)
	return true
}

func (s *Server) handlePushRequest(ctx context.Context, link *transport.Link, codec *protocol.Codec, rec *session.Record, frame protocol.Frame) bool {
	req, err := protocol.DecodePushRequest(frame.Payload)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusProtocolError, "malformed request")
		return true
	}
	store, err := s.repos.ObjectStore(rec.CurrentRepo)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusServerError, err.Error())
		return true
	}
	newCommit, err := commitgraph.LoadCommit(store, req.NewHead)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusInvalidRequest, "unknown commit")
		return true
	}
	currentHead, err := s.repos.Head(rec.CurrentRepo)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusServerError, err.Error())
		return true
	}
	if currentHead != "" && newCommit.Parent != currentHead {
		s.sendError(ctx, link, codec, protocol.StatusInvalidRequest, "non-fast-forward: pull the latest changes first")
		return true
	}
	if err := s.repos.SetHead(rec.CurrentRepo, req.NewHead); err != nil {
		s.sendError(ctx, link, codec, protocol.StatusServerError, err.Error())
		return true
	}
	if _, err := reposdb.Refresh(s.cache, s.repos, rec.CurrentRepo); err != nil {
		s.sendError(ctx, link, codec, protocol.StatusServerError, err.Error())
		return true
	}
	s.publish(monitor.Activity{
		Kind: monitor.KindPush, Repo: rec.CurrentRepo, Session: rec.ID,
		Detail: "new head " + req.NewHead, Timestamp: time.Now(),
	})
	resp := protocol.StringMessage{Value: req.NewHead}
	_ = link.SendMessage(ctx, codec, protocol.MsgPushResponse, resp.Encode())
	return true
}

func (s *Server) handlePullCheck(ctx context.Context, link *transport.Link, codec *protocol.Codec, rec *session.Record, frame protocol.Frame) bool {
	req, err := protocol.DecodePullCheckRequest(frame.Payload)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusProtocolError, "malformed request")
		return true
	}
	head, err := s.repos.Head(rec.CurrentRepo)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusServerError, err.Error())
		return true
	}
	hasUpdates := head != req.LocalHead
	if !hasUpdates {
		resp := protocol.PullCheckResponse{RemoteHead: head, HasUpdates: false}
		_ = link.SendMessage(ctx, codec, protocol.MsgPullCheckResponse, resp.Encode())
		return true
	}

	resp := protocol.PullCheckResponse{RemoteHead: head, HasUpdates: true, CommitsCount: 1}
	if err := link.SendMessage(ctx, codec, protocol.MsgPullCheckResponse, resp.Encode()); err != nil {
		return false
	}

	store, err := s.repos.ObjectStore(rec.CurrentRepo)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusServerError, err.Error())
		return true
	}
	raw, err := store.Get(head)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusServerError, err.Error())
		return true
	}
	cd := protocol.CommitData{CommitID: head, CommitData: raw}
	if err := link.SendMessage(ctx, codec, protocol.MsgPullCommitData, cd.Encode()); err != nil {
		return false
	}

	commit, err := commitgraph.ParseCommit(raw)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusServerError, err.Error())
		return true
	}
	for _, objID := range commit.Tree {
		data, err := store.Get(objID)
		if err != nil {
			s.sendError(ctx, link, codec, protocol.StatusServerError, err.Error())
			return true
		}
		od := protocol.ObjectData{ID: objID, Data: data, CRC32: protocol.Checksum(data)}
		if err := link.SendMessage(ctx, codec, protocol.MsgPullObjectData, od.Encode()); err != nil {
			return false
		}
	}
	s.publish(monitor.Activity{
		Kind: monitor.KindPull, Repo: rec.CurrentRepo, Session: rec.ID,
		Detail: "remote head " + head, Timestamp: time.Now(),
	})
	resp2 := protocol.StringMessage{Value: head}
	_ = link.SendMessage(ctx, codec, protocol.MsgPullResponse, resp2.Encode())
	return true
}

func (s *Server) handleClone(ctx context.Context, link *transport.Link, codec *protocol.Codec, rec *session.Record, frame protocol.Frame) bool {
	req, err := protocol.DecodeStringMessage(frame.Payload)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusProtocolError, "malformed request")
		return true
	}
	if !s.repos.Exists(req.Value) {
		s.sendError(ctx, link, codec, protocol.StatusRepoNotFound, "no such repository: "+req.Value)
		return true
	}
	root, err := s.repos.Path(req.Value)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusServerError, err.Error())
		return true
	}

	type fileEnt struct {
		rel  string
		data []byte
	}
	var files []fileEnt
	var totalSize uint64
	_ = filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return nil
		}
		data, rerr := os.ReadFile(p) //nolint:gosec
		if rerr != nil {
			return nil
		}
		files = append(files, fileEnt{rel: filepath.ToSlash(rel), data: data})
		totalSize += uint64(len(data)) //nolint:gosec
		return nil
	})

	start := protocol.CloneDataStart{TotalFiles: uint32(len(files)), TotalSize: totalSize, RepoName: req.Value} //nolint:gosec
	if err := link.SendMessage(ctx, codec, protocol.MsgCloneDataStart, start.Encode()); err != nil {
		return false
	}
	for _, f := range files {
		cf := protocol.CloneFile{
			Path:     f.rel,
			FileSize: uint64(len(f.data)), //nolint:gosec
			CRC32:    protocol.Checksum(f.data),
			Type:     protocol.CloneFileRegular,
			Data:     f.data,
		}
		if err := link.SendMessage(ctx, codec, protocol.MsgCloneFile, cf.Encode()); err != nil {
			return false
		}
	}
	_ = link.SendMessage(ctx, codec, protocol.MsgCloneDataEnd, nil)
	s.publish(monitor.Activity{Kind: monitor.KindClone, Repo: req.Value, Session: rec.ID, Timestamp: time.Now()})
	resp := protocol.StringMessage{Value: req.Value}
	_ = link.SendMessage(ctx, codec, protocol.MsgCloneResponse, resp.Encode())
	return true
}

func (s *Server) handleLog(ctx context.Context, link *transport.Link, codec *protocol.Codec, rec *session.Record, frame protocol.Frame) bool {
	req, err := protocol.DecodeLogRequest(frame.Payload)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusProtocolError, "malformed request")
		return true
	}
	head, err := s.repos.Head(rec.CurrentRepo)
	if err != nil {
		s.sendError(ctx, link, codec, protocol.StatusServerError, err.Error())
		return true
	}
	resp := protocol.LogResponse{}
	if head != "" {
		store, err := s.repos.ObjectStore(rec.CurrentRepo)
		if err != nil {
			s.sendError(ctx, link, codec, protocol.StatusServerError, err.Error())
			return true
		}
		commits, err := commitgraph.Walk(store, head, "")
		if err != nil {
			s.sendError(ctx, link, codec, protocol.StatusServerError, err.Error())
			return true
		}
		if req.MaxCount > 0 && uint32(len(commits)) > req.MaxCount {
			commits = commits[:req.MaxCount]
		}
		for _, c := range commits {
			resp.Entries = append(resp.Entries, protocol.LogEntry{ID: c.ID, Message: c.Message})
		}
	}
	_ = link.SendMessage(ctx, codec, protocol.MsgLogResponse, resp.Encode())
	return true
}
