package transport

import (
	"context"

	"github.com/cantrip-vcs/minigit/internal/protocol"
)

// RecvMessage reads one frame, transparently skipping and discarding
// any number of leading heartbeat frames, per spec.md §4.8: "Heartbeat
// frames interleaving the stream MUST be skipped silently by the
// receiver."
func (l *Link) RecvMessage(ctx context.Context, codec *protocol.Codec) (protocol.Frame, error) {
	for {
		headerBuf, err := l.RecvExact(ctx, protocol.HeaderSize)
		if err != nil {
			return protocol.Frame{}, err
		}
		h, err := protocol.DecodeHeader(headerBuf)
		if err != nil {
			return protocol.Frame{}, err
		}
		payloadBuf, err := l.RecvExact(ctx, int(h.PayloadSize))
		if err != nil {
			return protocol.Frame{}, err
		}
		wire := append(append([]byte(nil), headerBuf...), payloadBuf...)
		frame, _, err := codec.DecodeFrame(wire)
		if err != nil {
			return protocol.Frame{}, err
		}
		if frame.Type == protocol.MsgHeartbeat {
			continue
		}
		return frame, nil
	}
}

// SendMessage encodes and sends one frame.
func (l *Link) SendMessage(ctx context.Context, codec *protocol.Codec, msgType protocol.MessageType, payload []byte) error {
	wire, err := codec.EncodeFrame(msgType, payload)
	if err != nil {
		return err
	}
	return l.SendAll(ctx, wire)
}
