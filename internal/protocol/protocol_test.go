package protocol

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Magic: Magic, Version: Version, Type: MsgAuthRequest, Flags: 0, PayloadSize: 42}
	buf := h.Encode()
	if len(buf) != HeaderSize {
		t.Fatalf("encoded header length = %d, want %d", len(buf), HeaderSize)
	}
	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	h := Header{Magic: 0xDEADBEEF, Version: Version}
	_, err := DecodeHeader(h.Encode())
	if err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, err := DecodeHeader([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestAuthRequestRoundTrip(t *testing.T) {
	m := AuthRequest{AuthType: AuthTypePassword, Data: []byte("hunter2")}
	got, err := DecodeAuthRequest(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got.AuthType != m.AuthType || !bytes.Equal(got.Data, m.Data) {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestStringMessageRoundTrip(t *testing.T) {
	m := StringMessage{Value: "my-repo"}
	got, err := DecodeStringMessage(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestListReposResponseRoundTrip(t *testing.T) {
	m := ListReposResponse{Repos: []RepoListItem{
		{Name: "alpha", LastModified: 100, CommitCount: 3},
		{Name: "beta", LastModified: 200, CommitCount: 0},
	}}
	got, err := DecodeListReposResponse(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Repos) != 2 || got.Repos[0] != m.Repos[0] || got.Repos[1] != m.Repos[1] {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestObjectDataRoundTripAndChecksum(t *testing.T) {
	data := []byte("blob contents")
	m := ObjectData{ID: "abc123", Data: data, CRC32: Checksum(data)}
	got, err := DecodeObjectData(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != m.ID || !bytes.Equal(got.Data, m.Data) || got.CRC32 != m.CRC32 {
		t.Fatalf("got %+v, want %+v", got, m)
	}
	if !VerifyChecksum(got.Data, got.CRC32) {
		t.Fatal("checksum should verify over unmodified data")
	}
	got.Data[0] ^= 0xFF
	if VerifyChecksum(got.Data, got.CRC32) {
		t.Fatal("checksum must fail to verify after corruption")
	}
}

func TestCommitDataRoundTrip(t *testing.T) {
	m := CommitData{CommitID: "deadbeef", CommitData: []byte("parent\nmessage\n")}
	got, err := DecodeCommitData(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got.CommitID != m.CommitID || !bytes.Equal(got.CommitData, m.CommitData) {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestPushCheckRoundTrip(t *testing.T) {
	req := PushCheckRequest{LocalHead: "h1", NewCommit: "c1", Parent: "h1"}
	gotReq, err := DecodePushCheckRequest(req.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if gotReq != req {
		t.Fatalf("got %+v, want %+v", gotReq, req)
	}

	resp := PushCheckResponse{RemoteHead: "h1", NeedsUpdate: true}
	gotResp, err := DecodePushCheckResponse(resp.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if gotResp != resp {
		t.Fatalf("got %+v, want %+v", gotResp, resp)
	}
}

func TestPullCheckRoundTrip(t *testing.T) {
	req := PullCheckRequest{LocalHead: "h1"}
	gotReq, err := DecodePullCheckRequest(req.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if gotReq != req {
		t.Fatalf("got %+v, want %+v", gotReq, req)
	}

	resp := PullCheckResponse{RemoteHead: "h2", HasUpdates: true, CommitsCount: 5}
	gotResp, err := DecodePullCheckResponse(resp.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if gotResp != resp {
		t.Fatalf("got %+v, want %+v", gotResp, resp)
	}
}

func TestCloneDataStartRoundTrip(t *testing.T) {
	m := CloneDataStart{TotalFiles: 3, TotalSize: 1024, RepoName: "proj"}
	got, err := DecodeCloneDataStart(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestCloneFileRoundTrip(t *testing.T) {
	m := CloneFile{Path: "a/b.txt", FileSize: 5, CRC32: Checksum([]byte("hello")), Type: CloneFileRegular, Data: []byte("hello")}
	got, err := DecodeCloneFile(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got.Path != m.Path || got.FileSize != m.FileSize || got.CRC32 != m.CRC32 || got.Type != m.Type || !bytes.Equal(got.Data, m.Data) {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestLogRoundTrip(t *testing.T) {
	req := LogRequest{MaxCount: 10, Line: true}
	gotReq, err := DecodeLogRequest(req.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if gotReq != req {
		t.Fatalf("got %+v, want %+v", gotReq, req)
	}

	resp := LogResponse{Entries: []LogEntry{{ID: "c1", Message: "first"}, {ID: "c2", Message: "second"}}}
	gotResp, err := DecodeLogResponse(resp.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if len(gotResp.Entries) != 2 || gotResp.Entries[0] != resp.Entries[0] || gotResp.Entries[1] != resp.Entries[1] {
		t.Fatalf("got %+v, want %+v", gotResp, resp)
	}
}

func TestErrorMsgRoundTrip(t *testing.T) {
	m := ErrorMsg{Status: StatusAuthFailed, Message: "bad password"}
	got, err := DecodeErrorMsg(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestShortPayloadRejected(t *testing.T) {
	_, err := DecodeAuthRequest([]byte{0, 1, 2})
	if err == nil {
		t.Fatal("expected short-payload error")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := []byte("push commit payload bytes")
	ciphertext, err := Encrypt("s3cret", plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Fatal("ciphertext must not equal plaintext")
	}
	got, err := Decrypt("s3cret", ciphertext)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

func TestEncryptIsDeterministic(t *testing.T) {
	a, err := Encrypt("pw", []byte("same input"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encrypt("pw", []byte("same input"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("encryption with the same password/plaintext must be deterministic")
	}
}

func TestDecryptWrongPasswordFails(t *testing.T) {
	ciphertext, err := Encrypt("correct-horse", []byte("top secret"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = Decrypt("wrong-password", ciphertext)
	if err == nil {
		t.Fatal("expected decryption with the wrong password to fail padding validation")
	}
}

func TestCodecGatesEncryptionOnAuthentication(t *testing.T) {
	sender := NewCodec("pw")
	receiver := NewCodec("pw")

	plainWire, err := sender.EncodeFrame(MsgAuthRequest, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	frame, n, err := receiver.DecodeFrame(plainWire)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(plainWire) || string(frame.Payload) != "hello" {
		t.Fatalf("frame = %+v, n = %d", frame, n)
	}

	sender.MarkAuthenticated()
	receiver.MarkAuthenticated()
	encWire, err := sender.EncodeFrame(MsgPushCommitData, []byte("secret payload"))
	if err != nil {
		t.Fatal(err)
	}
	frame2, _, err := receiver.DecodeFrame(encWire)
	if err != nil {
		t.Fatal(err)
	}
	if string(frame2.Payload) != "secret payload" {
		t.Fatalf("frame2.Payload = %q", frame2.Payload)
	}
}

func TestCodecRejectsEncryptedFrameBeforeAuth(t *testing.T) {
	sender := NewCodec("pw")
	sender.MarkAuthenticated()
	wire, err := sender.EncodeFrame(MsgPushCommitData, []byte("data"))
	if err != nil {
		t.Fatal(err)
	}
	receiver := NewCodec("pw")
	_, _, err = receiver.DecodeFrame(wire)
	if err == nil {
		t.Fatal("expected error decoding an encrypted frame before authentication")
	}
}
