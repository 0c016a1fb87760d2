package protocol

import "github.com/cantrip-vcs/minigit/internal/vcserr"

// Codec encodes and decodes frames for one connection, switching from
// plaintext to the AES envelope the moment authentication succeeds.
// The donor implementation decrypted unconditionally, which corrupted
// the plaintext AUTH_REQUEST/AUTH_RESPONSE exchange itself; gating on
// an explicit flag that only ever flips false->true fixes that.
type Codec struct {
	password      string
	authenticated bool
}

// NewCodec returns a Codec that starts unauthenticated (plaintext).
func NewCodec(password string) *Codec {
	return &Codec{password: password}
}

// MarkAuthenticated flips the codec into encrypted mode. It never goes
// back to plaintext for the lifetime of the connection.
func (c *Codec) MarkAuthenticated() { c.authenticated = true }

// Authenticated reports whether this codec currently encrypts frames.
func (c *Codec) Authenticated() bool { return c.authenticated }

// EncodeFrame serializes a header+payload pair to wire bytes, applying
// the encryption envelope only once the codec is authenticated.
func (c *Codec) EncodeFrame(msgType MessageType, payload []byte) ([]byte, error) {
	body := payload
	flags := uint8(0)
	if c.authenticated {
		enc, err := Encrypt(c.password, payload)
		if err != nil {
			return nil, err
		}
		body = enc
		flags = 1
	}
	h := Header{
		Magic:       Magic,
		Version:     Version,
		Type:        msgType,
		Flags:       flags,
		PayloadSize: uint32(len(body)), //nolint:gosec
	}
	out := h.Encode()
	out = append(out, body...)
	return out, nil
}

// DecodeFrame parses a header followed by its payload out of buf,
// decrypting the payload when the header's encrypted flag is set.
// Returns the frame and the number of bytes consumed from buf.
func (c *Codec) DecodeFrame(buf []byte) (Frame, int, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Frame{}, 0, err
	}
	total := HeaderSize + int(h.PayloadSize)
	if len(buf) < total {
		return Frame{}, 0, vcserr.New(vcserr.KindIntegrity, "short frame payload")
	}
	body := buf[HeaderSize:total]
	if h.Flags&1 != 0 {
		if !c.authenticated {
			return Frame{}, 0, vcserr.New(vcserr.KindProtocol, "received encrypted frame before authentication")
		}
		plain, derr := Decrypt(c.password, body)
		if derr != nil {
			return Frame{}, 0, derr
		}
		body = plain
	}
	return Frame{Type: h.Type, Payload: body}, total, nil
}
