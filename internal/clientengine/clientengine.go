// Package clientengine implements ClientEngine (C9): connection state,
// transparent reconnect-and-reauthenticate, and the push/pull/clone
// wire sequences against a vcsserver peer.
package clientengine

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cantrip-vcs/minigit/internal/commitgraph"
	"github.com/cantrip-vcs/minigit/internal/config"
	"github.com/cantrip-vcs/minigit/internal/localcmd"
	"github.com/cantrip-vcs/minigit/internal/protocol"
	"github.com/cantrip-vcs/minigit/internal/transport"
	"github.com/cantrip-vcs/minigit/internal/vcserr"
	"github.com/sethvargo/go-retry"
)

// Engine holds one client connection's state: socket, authentication,
// and the currently selected repository, per spec.md §4.9.
type Engine struct {
	cfg           config.ClientConfig
	link          *transport.Link
	codec         *protocol.Codec
	connected     bool
	authenticated bool
	currentRepo   string
}

// New returns a disconnected Engine configured per cfg.
func New(cfg config.ClientConfig) *Engine {
	cfg = config.NewClientConfig(cfg)
	return &Engine{cfg: cfg, codec: protocol.NewCodec(cfg.Password)}
}

// Connected reports whether the engine currently holds a live socket.
func (e *Engine) Connected() bool { return e.connected }

// Authenticated reports whether AUTH_RESPONSE succeeded on this connection.
func (e *Engine) Authenticated() bool { return e.authenticated }

// CurrentRepo returns the selected repository name, "" if none.
func (e *Engine) CurrentRepo() string { return e.currentRepo }

// Connect dials the configured host:port and wraps it in a TransportLink.
func (e *Engine) Connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port))
	if err != nil {
		return vcserr.Wrap(vcserr.KindTransport, "connect failed", err)
	}
	e.link = transport.New(conn)
	if err := e.link.SetTimeouts(e.cfg.SocketTimeout); err != nil {
		return vcserr.Wrap(vcserr.KindTransport, "failed to set socket timeouts", err)
	}
	e.connected = true
	e.authenticated = false
	e.codec = protocol.NewCodec(e.cfg.Password)
	return nil
}

// reconnect re-dials and re-authenticates after a transient failure. It
// never replays the logical operation that was in flight, per spec.md
// §4.9: "reconnect then re-authenticate; do NOT replay the interrupted
// logical operation automatically."
func (e *Engine) reconnect(ctx context.Context) error {
	b := retry.NewConstant(e.cfg.RetryDelay)
	b = retry.WithMaxRetries(uint64(e.cfg.MaxRetries), b) //nolint:gosec
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := e.Connect(ctx); err != nil {
			return retry.RetryableError(err)
		}
		if err := e.Authenticate(ctx, e.cfg.Password); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// Authenticate sends AUTH_REQUEST with a password credential and
// upgrades the codec to encrypted mode on success.
func (e *Engine) Authenticate(ctx context.Context, password string) error {
	if !e.connected {
		return vcserr.New(vcserr.KindUsage, "not connected")
	}
	req := protocol.AuthRequest{AuthType: protocol.AuthTypePassword, Data: []byte(password)}
	if err := e.link.SendMessage(ctx, e.codec, protocol.MsgAuthRequest, req.Encode()); err != nil {
		return err
	}
	frame, err := e.link.RecvMessage(ctx, e.codec)
	if err != nil {
		return err
	}
	resp, err := protocol.DecodeAuthResponse(frame.Payload)
	if err != nil {
		return err
	}
	if resp.Status != protocol.StatusSuccess {
		return vcserr.New(vcserr.KindAuth, "authentication failed")
	}
	e.codec.MarkAuthenticated()
	e.authenticated = true
	return nil
}

func (e *Engine) requireReady(repoScoped bool) error {
	if !e.connected {
		return vcserr.New(vcserr.KindUsage, "not connected")
	}
	if !e.authenticated {
		return vcserr.New(vcserr.KindAuth, "not authenticated")
	}
	if repoScoped && e.currentRepo == "" {
		return vcserr.New(vcserr.KindUsage, "no repository selected")
	}
	return nil
}

func (e *Engine) sendString(ctx context.Context, msgType protocol.MessageType, value string) error {
	return e.link.SendMessage(ctx, e.codec, msgType, protocol.StringMessage{Value: value}.Encode())
}

func (e *Engine) recvString(ctx context.Context) (protocol.StringMessage, error) {
	frame, err := e.link.RecvMessage(ctx, e.codec)
	if err != nil {
		return protocol.StringMessage{}, err
	}
	if frame.Type == protocol.MsgErrorMsg {
		em, derr := protocol.DecodeErrorMsg(frame.Payload)
		if derr != nil {
			return protocol.StringMessage{}, derr
		}
		return protocol.StringMessage{}, vcserr.New(vcserr.KindProtocol, em.Message)
	}
	return protocol.DecodeStringMessage(frame.Payload)
}

// Login sends a username as a generic string message.
func (e *Engine) Login(ctx context.Context, username string) error {
	if err := e.requireReady(false); err != nil {
		return err
	}
	if err := e.sendString(ctx, protocol.MsgLoginRequest, username); err != nil {
		return err
	}
	_, err := e.recvString(ctx)
	return err
}

// ListRepositories requests the server's repository catalog.
func (e *Engine) ListRepositories(ctx context.Context) ([]protocol.RepoListItem, error) {
	if err := e.requireReady(false); err != nil {
		return nil, err
	}
	if err := e.link.SendMessage(ctx, e.codec, protocol.MsgListReposRequest, nil); err != nil {
		return nil, err
	}
	frame, err := e.link.RecvMessage(ctx, e.codec)
	if err != nil {
		return nil, err
	}
	resp, err := protocol.DecodeListReposResponse(frame.Payload)
	if err != nil {
		return nil, err
	}
	return resp.Repos, nil
}

// UseRepository selects name as the current repository for subsequent
// repo-scoped operations.
func (e *Engine) UseRepository(ctx context.Context, name string) error {
	if err := e.requireReady(false); err != nil {
		return err
	}
	if err := e.sendString(ctx, protocol.MsgUseRepoRequest, name); err != nil {
		return err
	}
	if _, err := e.recvString(ctx); err != nil {
		return err
	}
	e.currentRepo = name
	return nil
}

// CreateRepository asks the server to create a new repository.
func (e *Engine) CreateRepository(ctx context.Context, name string) error {
	if err := e.requireReady(false); err != nil {
		return err
	}
	if err := e.sendString(ctx, protocol.MsgCreateRepoRequest, name); err != nil {
		return err
	}
	_, err := e.recvString(ctx)
	return err
}

// RemoveRepository asks the server to delete a repository.
func (e *Engine) RemoveRepository(ctx context.Context, name string) error {
	if err := e.requireReady(false); err != nil {
		return err
	}
	if err := e.sendString(ctx, protocol.MsgRemoveRepoRequest, name); err != nil {
		return err
	}
	_, err := e.recvString(ctx)
	return err
}

// Log requests up to max history entries (0 = server default) from the
// current repository.
func (e *Engine) Log(ctx context.Context, max int, oneLine bool) ([]protocol.LogEntry, error) {
	if err := e.requireReady(true); err != nil {
		return nil, err
	}
	req := protocol.LogRequest{MaxCount: uint32(max), Line: oneLine} //nolint:gosec
	if err := e.link.SendMessage(ctx, e.codec, protocol.MsgLogRequest, req.Encode()); err != nil {
		return nil, err
	}
	frame, err := e.link.RecvMessage(ctx, e.codec)
	if err != nil {
		return nil, err
	}
	resp, err := protocol.DecodeLogResponse(frame.Payload)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Push implements spec.md §4.9.1 against the currently selected
// repository.
func (e *Engine) Push(ctx context.Context, repo *localcmd.Repo) (bool, error) {
	if err := e.requireReady(true); err != nil {
		return false, err
	}
	local, err := repo.Head()
	if err != nil {
		return false, err
	}
	var parent string
	if local != "" {
		c, err := commitgraph.LoadCommit(repo.Store, local)
		if err != nil {
			return false, err
		}
		parent = c.Parent
	}

	checkReq := protocol.PushCheckRequest{LocalHead: local, NewCommit: local, Parent: parent}
	if err := e.link.SendMessage(ctx, e.codec, protocol.MsgPushCheckRequest, checkReq.Encode()); err != nil {
		return false, err
	}
	frame, err := e.link.RecvMessage(ctx, e.codec)
	if err != nil {
		return false, err
	}
	checkResp, err := protocol.DecodePushCheckResponse(frame.Payload)
	if err != nil {
		return false, err
	}
	if !checkResp.NeedsUpdate {
		return false, nil
	}

	commits, err := commitgraph.Walk(repo.Store, local, checkResp.RemoteHead)
	if err != nil {
		return false, err
	}
	// Walk returns newest-first; reverse so the oldest uploads first.
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}

	for _, c := range commits {
		raw, err := repo.Store.Get(c.ID)
		if err != nil {
			return false, err
		}
		cd := protocol.CommitData{CommitID: c.ID, CommitData: raw}
		if err := e.link.SendMessage(ctx, e.codec, protocol.MsgPushCommitData, cd.Encode()); err != nil {
			return false, err
		}
		for _, objID := range c.Tree {
			data, err := repo.Store.Get(objID)
			if err != nil {
				return false, err
			}
			od := protocol.ObjectData{ID: objID, Data: data, CRC32: protocol.Checksum(data)}
			if err := e.link.SendMessage(ctx, e.codec, protocol.MsgPushObjectData, od.Encode()); err != nil {
				return false, err
			}
		}
	}

	pushReq := protocol.PushRequest{NewHead: local}
	if err := e.link.SendMessage(ctx, e.codec, protocol.MsgPushRequest, pushReq.Encode()); err != nil {
		return false, err
	}
	resp, err := e.link.RecvMessage(ctx, e.codec)
	if err != nil {
		return false, err
	}
	if resp.Type == protocol.MsgErrorMsg {
		em, derr := protocol.DecodeErrorMsg(resp.Payload)
		if derr != nil {
			return false, derr
		}
		return false, vcserr.New(vcserr.KindConsistency, em.Message)
	}
	return true, nil
}

// Pull implements spec.md §4.9.2 against the currently selected repository.
func (e *Engine) Pull(ctx context.Context, repo *localcmd.Repo) (bool, error) {
	if err := e.requireReady(true); err != nil {
		return false, err
	}
	local, err := repo.Head()
	if err != nil {
		return false, err
	}

	checkReq := protocol.PullCheckRequest{LocalHead: local}
	if err := e.link.SendMessage(ctx, e.codec, protocol.MsgPullCheckRequest, checkReq.Encode()); err != nil {
		return false, err
	}
	frame, err := e.link.RecvMessage(ctx, e.codec)
	if err != nil {
		return false, err
	}
	checkResp, err := protocol.DecodePullCheckResponse(frame.Payload)
	if err != nil {
		return false, err
	}
	if !checkResp.HasUpdates {
		return false, nil
	}

	// recv is a one-frame lookahead buffer: the object-data run for a
	// commit ends on the first non-PULL_OBJECT_DATA frame, which is
	// either the next commit or the terminating PULL_RESPONSE, and that
	// frame must still be dispatched rather than discarded.
	var pending *protocol.Frame
	next := func() (protocol.Frame, error) {
		if pending != nil {
			f := *pending
			pending = nil
			return f, nil
		}
		return e.link.RecvMessage(ctx, e.codec)
	}

	var newHeadTree map[string]string
	for i := uint32(0); i < checkResp.CommitsCount; i++ {
		cFrame, err := next()
		if err != nil {
			return false, err
		}
		cd, err := protocol.DecodeCommitData(cFrame.Payload)
		if err != nil {
			return false, err
		}
		if _, err := commitgraph.StoreRaw(repo.Store, cd.CommitData); err != nil {
			return false, err
		}
		c, err := commitgraph.ParseCommit(cd.CommitData)
		if err != nil {
			return false, err
		}
		newHeadTree = c.Tree

		for {
			oFrame, err := next()
			if err != nil {
				return false, err
			}
			if oFrame.Type != protocol.MsgPullObjectData {
				pending = &oFrame
				break
			}
			od, err := protocol.DecodeObjectData(oFrame.Payload)
			if err != nil {
				return false, err
			}
			if !protocol.VerifyChecksum(od.Data, od.CRC32) {
				return false, vcserr.New(vcserr.KindIntegrity, "object data failed CRC32 verification")
			}
			if _, err := repo.Store.Put(od.Data); err != nil {
				return false, err
			}
		}
	}

	final, err := next()
	if err != nil {
		return false, err
	}
	if final.Type == protocol.MsgErrorMsg {
		em, derr := protocol.DecodeErrorMsg(final.Payload)
		if derr != nil {
			return false, derr
		}
		return false, vcserr.New(vcserr.KindConsistency, em.Message)
	}
	if err := finalizePull(repo, checkResp.RemoteHead, newHeadTree); err != nil {
		return false, err
	}
	return true, nil
}

// finalizePull overwrites local HEAD with the remote head and writes
// every path in its tree into the working tree, per spec.md §4.9.2 step 5.
func finalizePull(repo *localcmd.Repo, remoteHead string, tree map[string]string) error {
	if err := repo.SetHead(remoteHead); err != nil {
		return err
	}
	for path, id := range tree {
		data, err := repo.Store.Get(id)
		if err != nil {
			return err
		}
		full := filepath.Join(repo.Root, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return vcserr.Wrap(vcserr.KindStorage, "failed to create parent directory", err)
		}
		if err := os.WriteFile(full, data, 0o644); err != nil {
			return vcserr.Wrap(vcserr.KindStorage, "failed to write pulled file", err)
		}
	}
	return nil
}

// Clone implements spec.md §4.9.3: request a named repository and
// materialize it at destRoot.
func (e *Engine) Clone(ctx context.Context, name, destRoot string) error {
	if err := e.requireReady(false); err != nil {
		return err
	}
	if err := e.sendString(ctx, protocol.MsgCloneRequest, name); err != nil {
		return err
	}
	startFrame, err := e.link.RecvMessage(ctx, e.codec)
	if err != nil {
		return err
	}
	if startFrame.Type == protocol.MsgErrorMsg {
		em, derr := protocol.DecodeErrorMsg(startFrame.Payload)
		if derr != nil {
			return derr
		}
		return vcserr.New(vcserr.KindConsistency, em.Message)
	}
	start, err := protocol.DecodeCloneDataStart(startFrame.Payload)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return vcserr.Wrap(vcserr.KindStorage, "failed to create clone destination", err)
	}

	for i := uint32(0); i < start.TotalFiles; i++ {
		frame, err := e.link.RecvMessage(ctx, e.codec)
		if err != nil {
			return err
		}
		if frame.Type == protocol.MsgCloneDataEnd || frame.Type == protocol.MsgCloneResponse {
			break
		}
		cf, err := protocol.DecodeCloneFile(frame.Payload)
		if err != nil {
			return err
		}
		if !protocol.VerifyChecksum(cf.Data, cf.CRC32) {
			return vcserr.New(vcserr.KindIntegrity, "clone file failed CRC32 verification")
		}
		full := filepath.Join(destRoot, cf.Path)
		if cf.Type == protocol.CloneFileDirectory {
			if err := os.MkdirAll(full, 0o755); err != nil {
				return vcserr.Wrap(vcserr.KindStorage, "failed to create clone directory", err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return vcserr.Wrap(vcserr.KindStorage, "failed to create clone parent directory", err)
		}
		if err := os.WriteFile(full, cf.Data, 0o644); err != nil {
			return vcserr.Wrap(vcserr.KindStorage, "failed to write cloned file", err)
		}
	}

	configPath := filepath.Join(destRoot, localcmd.HiddenDir, "config")
	remote := fmt.Sprintf("remote=server://%s:%d/%s\n", e.cfg.Host, e.cfg.Port, name)
	existing, _ := os.ReadFile(configPath) //nolint:errcheck
	return os.WriteFile(configPath, append(existing, []byte(remote)...), 0o644)
}

// EnsureConnection reconnects and re-authenticates when the socket has
// gone stale, as detected via the transport's non-destructive liveness
// probe.
func (e *Engine) EnsureConnection(ctx context.Context) error {
	if e.connected && e.link.IsAlive() {
		return nil
	}
	return e.reconnect(ctx)
}

// Close releases the underlying socket.
func (e *Engine) Close() error {
	if e.link == nil {
		return nil
	}
	e.connected = false
	e.authenticated = false
	return e.link.Conn().Close()
}

// Idle is a tiny helper so callers can express "sleep, then retry" in
// their own reconnect loops without importing time directly.
func Idle(d time.Duration) { time.Sleep(d) }
