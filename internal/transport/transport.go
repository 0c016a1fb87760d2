// Package transport implements TransportLink (C8): a reliable,
// length-prefixed byte conduit over a connected stream socket, with
// bounded retries, a chunk-size cap, and a non-destructive liveness
// probe.
package transport

import (
	"bufio"
	"context"
	"net"
	"time"

	"github.com/cantrip-vcs/minigit/internal/vcserr"
	"github.com/sethvargo/go-retry"
)

// ChunkSize is the maximum number of bytes written or read per syscall.
const ChunkSize = 64 * 1024

// MaxAttempts is the number of times sendAll retries a transient
// would-block write before giving up.
const MaxAttempts = 3

// RetryBackoff is the base delay between sendAll retry attempts.
const RetryBackoff = 20 * time.Millisecond

// Link wraps a net.Conn with the retry/chunking/liveness semantics
// TransportLink requires. All reads go through a buffered reader so
// IsAlive's peek never consumes bytes a later RecvExact needs.
type Link struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

// New wraps an already-connected socket.
func New(conn net.Conn) *Link {
	return &Link{conn: conn, r: bufio.NewReader(conn)}
}

// Conn exposes the underlying connection for callers that need it
// (e.g. to close it).
func (l *Link) Conn() net.Conn { return l.conn }

// SetTimeouts records the per-operation deadline window d; SendAll and
// RecvExact each re-arm conn's write/read deadline to now+d at the
// start of every call, so d bounds a single send or receive rather
// than the lifetime of the connection. Idle-but-silent connections are
// left alone here; eviction of those is the session sweeper's job.
func (l *Link) SetTimeouts(d time.Duration) error {
	l.timeout = d
	return nil
}

// SendAll writes every byte of data, chunked to ChunkSize, retrying
// transient short writes up to MaxAttempts times with a short backoff.
func (l *Link) SendAll(ctx context.Context, data []byte) error {
	if l.timeout > 0 {
		if err := l.conn.SetWriteDeadline(time.Now().Add(l.timeout)); err != nil {
			return vcserr.Wrap(vcserr.KindTransport, "sendAll failed", err)
		}
	}
	for len(data) > 0 {
		n := len(data)
		if n > ChunkSize {
			n = ChunkSize
		}
		chunk := data[:n]

		b := retry.NewConstant(RetryBackoff)
		b = retry.WithMaxRetries(MaxAttempts, b)
		written := 0
		err := retry.Do(ctx, b, func(ctx context.Context) error {
			n, werr := l.conn.Write(chunk[written:])
			written += n
			if werr != nil {
				if isTransient(werr) {
					return retry.RetryableError(werr)
				}
				return werr
			}
			if written < len(chunk) {
				return retry.RetryableError(vcserr.New(vcserr.KindTransport, "short write"))
			}
			return nil
		})
		if err != nil {
			return vcserr.Wrap(vcserr.KindTransport, "sendAll failed", err)
		}
		data = data[n:]
	}
	return nil
}

// RecvExact reads exactly n bytes, looping across short reads and
// failing on peer close or a repeated would-block condition.
func (l *Link) RecvExact(ctx context.Context, n int) ([]byte, error) {
	if l.timeout > 0 {
		if err := l.conn.SetReadDeadline(time.Now().Add(l.timeout)); err != nil {
			return nil, vcserr.Wrap(vcserr.KindTransport, "recvExact failed", err)
		}
	}
	buf := make([]byte, n)
	read := 0
	wouldBlocks := 0
	for read < n {
		want := n - read
		if want > ChunkSize {
			want = ChunkSize
		}
		select {
		case <-ctx.Done():
			return nil, vcserr.Wrap(vcserr.KindTransport, "recvExact canceled", ctx.Err())
		default:
		}
		got, err := l.r.Read(buf[read : read+want])
		read += got
		if err != nil {
			if isTransient(err) {
				wouldBlocks++
				if wouldBlocks > MaxAttempts {
					return nil, vcserr.Wrap(vcserr.KindTransport, "recvExact failed: repeated would-block", err)
				}
				continue
			}
			return nil, vcserr.Wrap(vcserr.KindTransport, "recvExact failed: peer closed or unreadable", err)
		}
	}
	return buf, nil
}

// IsAlive performs a non-destructive peek to distinguish a live peer
// from a half-closed socket, per spec.md §4.8. bufio.Reader.Peek reads
// ahead into its internal buffer without advancing the consumer's
// position, so a later RecvExact still sees the peeked bytes. A
// timeout (no data pending but the socket is still open) and a
// successful peek both count as alive; only io.EOF or a hard read
// error mean the peer is gone.
func (l *Link) IsAlive() bool {
	_ = l.conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	_, err := l.r.Peek(1)
	_ = l.conn.SetReadDeadline(time.Time{})
	if err == nil {
		return true
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return true
	}
	return false
}

func isTransient(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
