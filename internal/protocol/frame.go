// Package protocol implements the Codec (C7): the fixed 16-byte frame
// header, the typed message catalog, CRC32 integrity checks, and the
// AES-CBC encryption envelope gated on per-session authentication.
//
// Constant values (magic, message types, status codes, and payload
// layouts) are taken from the original C++ implementation's protocol.h,
// the authoritative source for this wire format.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/cantrip-vcs/minigit/internal/vcserr"
)

// Magic is the fixed frame magic number, the ASCII bytes "MGIT" read as a
// big-endian u32. Headers encode it little-endian like every other field.
const Magic uint32 = 0x4D474954

// Version is the single supported protocol version.
const Version uint32 = 1

// HeaderSize is the fixed size, in bytes, of a frame header.
const HeaderSize = 16

// MessageType enumerates every frame type in the catalog.
type MessageType uint8

const (
	MsgAuthRequest  MessageType = 0x01
	MsgAuthResponse MessageType = 0x02

	MsgLoginRequest   MessageType = 0x10
	MsgLoginResponse  MessageType = 0x11
	MsgLogoutRequest  MessageType = 0x12
	MsgLogoutResponse MessageType = 0x13

	MsgListReposRequest  MessageType = 0x20
	MsgListReposResponse MessageType = 0x21
	MsgUseRepoRequest    MessageType = 0x22
	MsgUseRepoResponse   MessageType = 0x23
	MsgCreateRepoRequest MessageType = 0x24
	MsgCreateRepoResponse MessageType = 0x25
	MsgRemoveRepoRequest  MessageType = 0x26
	MsgRemoveRepoResponse MessageType = 0x27

	MsgPushCheckRequest  MessageType = 0x2A
	MsgPushCheckResponse MessageType = 0x2B
	MsgPushCommitData    MessageType = 0x2C
	MsgPushObjectData    MessageType = 0x2D
	MsgPushRequest       MessageType = 0x30
	MsgPushResponse      MessageType = 0x31

	MsgPullCheckRequest  MessageType = 0x2E
	MsgPullCheckResponse MessageType = 0x2F
	MsgPullCommitData    MessageType = 0x36
	MsgPullObjectData    MessageType = 0x37
	MsgPullRequest       MessageType = 0x32
	MsgPullResponse      MessageType = 0x33

	MsgCloneRequest   MessageType = 0x34
	MsgCloneResponse  MessageType = 0x35
	MsgFileData       MessageType = 0x40
	MsgObjectData     MessageType = 0x41
	MsgCloneDataStart MessageType = 0x42
	MsgCloneDataEnd   MessageType = 0x43
	MsgCloneFile      MessageType = 0x44

	MsgLogRequest  MessageType = 0x38
	MsgLogResponse MessageType = 0x39

	MsgHeartbeat MessageType = 0x50
	MsgErrorMsg  MessageType = 0xFF
)

// StatusCode enumerates the response status codes shared by every
// response/error body.
type StatusCode uint8

const (
	StatusSuccess         StatusCode = 0x00
	StatusAuthRequired     StatusCode = 0x01
	StatusAuthFailed       StatusCode = 0x02
	StatusInvalidRepo      StatusCode = 0x03
	StatusRepoExists       StatusCode = 0x04
	StatusRepoNotFound     StatusCode = 0x05
	StatusPermissionDenied StatusCode = 0x06
	StatusInvalidRequest   StatusCode = 0x07
	StatusServerError      StatusCode = 0x08
	StatusProtocolError    StatusCode = 0x09
	StatusConnectionLost   StatusCode = 0x0A
)

// Header is the 16-byte frame header preceding every payload.
type Header struct {
	Magic       uint32
	Version     uint32
	Type        MessageType
	Flags       uint8
	Reserved    uint16
	PayloadSize uint32
}

// Encode serializes h into its 16-byte wire form, little-endian.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	buf[8] = byte(h.Type)
	buf[9] = h.Flags
	binary.LittleEndian.PutUint16(buf[10:12], h.Reserved)
	binary.LittleEndian.PutUint32(buf[12:16], h.PayloadSize)
	return buf
}

// DecodeHeader parses a 16-byte header, validating magic and version.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, vcserr.New(vcserr.KindIntegrity, "short frame header")
	}
	h := Header{
		Magic:       binary.LittleEndian.Uint32(buf[0:4]),
		Version:     binary.LittleEndian.Uint32(buf[4:8]),
		Type:        MessageType(buf[8]),
		Flags:       buf[9],
		Reserved:    binary.LittleEndian.Uint16(buf[10:12]),
		PayloadSize: binary.LittleEndian.Uint32(buf[12:16]),
	}
	if h.Magic != Magic {
		return h, vcserr.New(vcserr.KindIntegrity, fmt.Sprintf("bad frame magic 0x%08X", h.Magic))
	}
	if h.Version != Version {
		return h, vcserr.New(vcserr.KindIntegrity, fmt.Sprintf("unsupported protocol version %d", h.Version))
	}
	return h, nil
}

// Frame is a fully decoded message: a header plus its plaintext payload.
type Frame struct {
	Type    MessageType
	Payload []byte
}
