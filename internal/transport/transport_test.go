package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cantrip-vcs/minigit/internal/protocol"
)

func pipe(t *testing.T) (*Link, *Link) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return New(a), New(b)
}

func TestSendAllRecvExactRoundTrip(t *testing.T) {
	client, server := pipe(t)
	ctx := context.Background()
	msg := []byte("hello over the wire")

	errCh := make(chan error, 1)
	go func() { errCh <- client.SendAll(ctx, msg) }()

	got, err := server.RecvExact(ctx, len(msg))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(msg) {
		t.Fatalf("got %q, want %q", got, msg)
	}
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
}

func TestRecvMessageSkipsHeartbeats(t *testing.T) {
	client, server := pipe(t)
	ctx := context.Background()
	sendCodec := protocol.NewCodec("pw")
	recvCodec := protocol.NewCodec("pw")

	go func() {
		_ = client.SendMessage(ctx, sendCodec, protocol.MsgHeartbeat, nil)
		_ = client.SendMessage(ctx, sendCodec, protocol.MsgHeartbeat, nil)
		_ = client.SendMessage(ctx, sendCodec, protocol.MsgAuthRequest, []byte("payload"))
	}()

	frame, err := server.RecvMessage(ctx, recvCodec)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Type != protocol.MsgAuthRequest || string(frame.Payload) != "payload" {
		t.Fatalf("frame = %+v", frame)
	}
}

func TestIsAliveOnOpenConnection(t *testing.T) {
	client, server := pipe(t)
	ctx := context.Background()
	go func() { _ = client.SendAll(ctx, []byte("x")) }()
	time.Sleep(10 * time.Millisecond)
	if !server.IsAlive() {
		t.Fatal("expected live connection to report alive")
	}
	got, err := server.RecvExact(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "x" {
		t.Fatalf("got %q, want peek to not have consumed the byte", got)
	}
}

func TestIsAliveOnClosedConnection(t *testing.T) {
	client, server := pipe(t)
	client.Conn().Close()
	if server.IsAlive() {
		t.Fatal("expected closed connection to report not alive")
	}
}
