// Package protocol: typed payload bodies, one encode/decode pair per
// message in spec.md §6.2.
package protocol

// AuthType distinguishes the credential kind carried by AUTH_REQUEST.
type AuthType uint8

const (
	AuthTypePassword AuthType = 0
	AuthTypeCert     AuthType = 1
)

// AuthRequest is `auth_type:u8, data_size:u32, data[data_size]`.
type AuthRequest struct {
	AuthType AuthType
	Data     []byte
}

func (m AuthRequest) Encode() []byte {
	w := &writer{}
	w.u8(uint8(m.AuthType))
	w.u32(uint32(len(m.Data))) //nolint:gosec
	w.raw(m.Data)
	return w.bytes()
}

func DecodeAuthRequest(buf []byte) (AuthRequest, error) {
	r := newReader(buf)
	t, err := r.u8()
	if err != nil {
		return AuthRequest{}, err
	}
	n, err := r.u32()
	if err != nil {
		return AuthRequest{}, err
	}
	data, err := r.bytes(int(n))
	if err != nil {
		return AuthRequest{}, err
	}
	return AuthRequest{AuthType: AuthType(t), Data: data}, nil
}

// AuthResponse is `status:u8, session_id:u8[32], session_timeout:u32`.
type AuthResponse struct {
	Status         StatusCode
	SessionID      [32]byte
	SessionTimeout uint32
}

func (m AuthResponse) Encode() []byte {
	w := &writer{}
	w.u8(uint8(m.Status))
	w.raw(m.SessionID[:])
	w.u32(m.SessionTimeout)
	return w.bytes()
}

func DecodeAuthResponse(buf []byte) (AuthResponse, error) {
	r := newReader(buf)
	status, err := r.u8()
	if err != nil {
		return AuthResponse{}, err
	}
	id, err := r.bytes(32)
	if err != nil {
		return AuthResponse{}, err
	}
	timeout, err := r.u32()
	if err != nil {
		return AuthResponse{}, err
	}
	var out AuthResponse
	out.Status = StatusCode(status)
	copy(out.SessionID[:], id)
	out.SessionTimeout = timeout
	return out, nil
}

// StringMessage is the generic `string_length:u32, string[...]` body
// shared by LOGIN_*, USE_REPO_*, CREATE_REPO_*, REMOVE_REPO_*,
// CLONE_REQUEST/RESPONSE, PUSH_RESPONSE, PULL_RESPONSE.
type StringMessage struct {
	Value string
}

func (m StringMessage) Encode() []byte {
	w := &writer{}
	w.str32(m.Value)
	return w.bytes()
}

func DecodeStringMessage(buf []byte) (StringMessage, error) {
	r := newReader(buf)
	s, err := r.str32()
	if err != nil {
		return StringMessage{}, err
	}
	return StringMessage{Value: s}, nil
}

// ErrorMsg is `status:u8, message[...]` (message length = payload - 1).
type ErrorMsg struct {
	Status  StatusCode
	Message string
}

func (m ErrorMsg) Encode() []byte {
	w := &writer{}
	w.u8(uint8(m.Status))
	w.raw([]byte(m.Message))
	return w.bytes()
}

func DecodeErrorMsg(buf []byte) (ErrorMsg, error) {
	r := newReader(buf)
	status, err := r.u8()
	if err != nil {
		return ErrorMsg{}, err
	}
	msg, err := r.bytes(len(buf) - 1)
	if err != nil {
		return ErrorMsg{}, err
	}
	return ErrorMsg{Status: StatusCode(status), Message: string(msg)}, nil
}

// RepoListItem is one entry of LIST_REPOS_RESPONSE.
type RepoListItem struct {
	Name         string
	LastModified uint64
	CommitCount  uint32
}

// ListReposResponse is `repo_count:u32, repeat{name_length:u32,
// last_modified:u64, commit_count:u32, name[name_length]}`.
type ListReposResponse struct {
	Repos []RepoListItem
}

func (m ListReposResponse) Encode() []byte {
	w := &writer{}
	w.u32(uint32(len(m.Repos))) //nolint:gosec
	for _, repo := range m.Repos {
		w.u32(uint32(len(repo.Name))) //nolint:gosec
		w.u64(repo.LastModified)
		w.u32(repo.CommitCount)
		w.raw([]byte(repo.Name))
	}
	return w.bytes()
}

func DecodeListReposResponse(buf []byte) (ListReposResponse, error) {
	r := newReader(buf)
	count, err := r.u32()
	if err != nil {
		return ListReposResponse{}, err
	}
	out := ListReposResponse{Repos: make([]RepoListItem, 0, count)}
	for i := uint32(0); i < count; i++ {
		nameLen, err := r.u32()
		if err != nil {
			return ListReposResponse{}, err
		}
		lastMod, err := r.u64()
		if err != nil {
			return ListReposResponse{}, err
		}
		commitCount, err := r.u32()
		if err != nil {
			return ListReposResponse{}, err
		}
		name, err := r.bytes(int(nameLen))
		if err != nil {
			return ListReposResponse{}, err
		}
		out.Repos = append(out.Repos, RepoListItem{
			Name:         string(name),
			LastModified: lastMod,
			CommitCount:  commitCount,
		})
	}
	return out, nil
}

// PushCheckRequest is `local_head_len:u32, new_commit_len:u32,
// parent_len:u32, local_head[...], new_commit[...], parent[...]`.
type PushCheckRequest struct {
	LocalHead string
	NewCommit string
	Parent    string
}

func (m PushCheckRequest) Encode() []byte {
	w := &writer{}
	w.u32(uint32(len(m.LocalHead))) //nolint:gosec
	w.u32(uint32(len(m.NewCommit))) //nolint:gosec
	w.u32(uint32(len(m.Parent)))    //nolint:gosec
	w.raw([]byte(m.LocalHead))
	w.raw([]byte(m.NewCommit))
	w.raw([]byte(m.Parent))
	return w.bytes()
}

func DecodePushCheckRequest(buf []byte) (PushCheckRequest, error) {
	r := newReader(buf)
	lhLen, err := r.u32()
	if err != nil {
		return PushCheckRequest{}, err
	}
	ncLen, err := r.u32()
	if err != nil {
		return PushCheckRequest{}, err
	}
	pLen, err := r.u32()
	if err != nil {
		return PushCheckRequest{}, err
	}
	lh, err := r.bytes(int(lhLen))
	if err != nil {
		return PushCheckRequest{}, err
	}
	nc, err := r.bytes(int(ncLen))
	if err != nil {
		return PushCheckRequest{}, err
	}
	p, err := r.bytes(int(pLen))
	if err != nil {
		return PushCheckRequest{}, err
	}
	return PushCheckRequest{LocalHead: string(lh), NewCommit: string(nc), Parent: string(p)}, nil
}

// PushCheckResponse is `remote_head_len:u32, needs_update:u8, remote_head[...]`.
type PushCheckResponse struct {
	RemoteHead  string
	NeedsUpdate bool
}

func (m PushCheckResponse) Encode() []byte {
	w := &writer{}
	w.u32(uint32(len(m.RemoteHead))) //nolint:gosec
	w.u8(boolToU8(m.NeedsUpdate))
	w.raw([]byte(m.RemoteHead))
	return w.bytes()
}

func DecodePushCheckResponse(buf []byte) (PushCheckResponse, error) {
	r := newReader(buf)
	rhLen, err := r.u32()
	if err != nil {
		return PushCheckResponse{}, err
	}
	needs, err := r.u8()
	if err != nil {
		return PushCheckResponse{}, err
	}
	rh, err := r.bytes(int(rhLen))
	if err != nil {
		return PushCheckResponse{}, err
	}
	return PushCheckResponse{RemoteHead: string(rh), NeedsUpdate: needs != 0}, nil
}

// CommitData is the shared `commit_id_len:u32, commit_data_len:u32,
// commit_id[...], commit_data[...]` body for PUSH_COMMIT_DATA and
// PULL_COMMIT_DATA.
type CommitData struct {
	CommitID   string
	CommitData []byte
}

func (m CommitData) Encode() []byte {
	w := &writer{}
	w.u32(uint32(len(m.CommitID)))   //nolint:gosec
	w.u32(uint32(len(m.CommitData))) //nolint:gosec
	w.raw([]byte(m.CommitID))
	w.raw(m.CommitData)
	return w.bytes()
}

func DecodeCommitData(buf []byte) (CommitData, error) {
	r := newReader(buf)
	idLen, err := r.u32()
	if err != nil {
		return CommitData{}, err
	}
	dataLen, err := r.u32()
	if err != nil {
		return CommitData{}, err
	}
	id, err := r.bytes(int(idLen))
	if err != nil {
		return CommitData{}, err
	}
	data, err := r.bytes(int(dataLen))
	if err != nil {
		return CommitData{}, err
	}
	return CommitData{CommitID: string(id), CommitData: append([]byte(nil), data...)}, nil
}

// ObjectData is the shared `id_len:u32, data_len:u32, crc32:u32,
// id[...], data[...]` body for PUSH_OBJECT_DATA and PULL_OBJECT_DATA.
type ObjectData struct {
	ID    string
	Data  []byte
	CRC32 uint32
}

func (m ObjectData) Encode() []byte {
	w := &writer{}
	w.u32(uint32(len(m.ID)))   //nolint:gosec
	w.u32(uint32(len(m.Data))) //nolint:gosec
	w.u32(m.CRC32)
	w.raw([]byte(m.ID))
	w.raw(m.Data)
	return w.bytes()
}

func DecodeObjectData(buf []byte) (ObjectData, error) {
	r := newReader(buf)
	idLen, err := r.u32()
	if err != nil {
		return ObjectData{}, err
	}
	dataLen, err := r.u32()
	if err != nil {
		return ObjectData{}, err
	}
	crc, err := r.u32()
	if err != nil {
		return ObjectData{}, err
	}
	id, err := r.bytes(int(idLen))
	if err != nil {
		return ObjectData{}, err
	}
	data, err := r.bytes(int(dataLen))
	if err != nil {
		return ObjectData{}, err
	}
	return ObjectData{ID: string(id), Data: append([]byte(nil), data...), CRC32: crc}, nil
}

// PushRequest is `remote_head_len:u32, remote_head[...]` — the id the
// client wants the server's HEAD to become.
type PushRequest struct {
	NewHead string
}

func (m PushRequest) Encode() []byte {
	w := &writer{}
	w.str32(m.NewHead)
	return w.bytes()
}

func DecodePushRequest(buf []byte) (PushRequest, error) {
	r := newReader(buf)
	s, err := r.str32()
	if err != nil {
		return PushRequest{}, err
	}
	return PushRequest{NewHead: s}, nil
}

// PullCheckRequest is `local_head_len:u32, local_head[...]`.
type PullCheckRequest struct {
	LocalHead string
}

func (m PullCheckRequest) Encode() []byte {
	w := &writer{}
	w.str32(m.LocalHead)
	return w.bytes()
}

func DecodePullCheckRequest(buf []byte) (PullCheckRequest, error) {
	r := newReader(buf)
	s, err := r.str32()
	if err != nil {
		return PullCheckRequest{}, err
	}
	return PullCheckRequest{LocalHead: s}, nil
}

// PullCheckResponse is `remote_head_len:u32, has_updates:u8,
// commits_count:u32, remote_head[...]`.
type PullCheckResponse struct {
	RemoteHead   string
	HasUpdates   bool
	CommitsCount uint32
}

func (m PullCheckResponse) Encode() []byte {
	w := &writer{}
	w.u32(uint32(len(m.RemoteHead))) //nolint:gosec
	w.u8(boolToU8(m.HasUpdates))
	w.u32(m.CommitsCount)
	w.raw([]byte(m.RemoteHead))
	return w.bytes()
}

func DecodePullCheckResponse(buf []byte) (PullCheckResponse, error) {
	r := newReader(buf)
	rhLen, err := r.u32()
	if err != nil {
		return PullCheckResponse{}, err
	}
	has, err := r.u8()
	if err != nil {
		return PullCheckResponse{}, err
	}
	count, err := r.u32()
	if err != nil {
		return PullCheckResponse{}, err
	}
	rh, err := r.bytes(int(rhLen))
	if err != nil {
		return PullCheckResponse{}, err
	}
	return PullCheckResponse{RemoteHead: string(rh), HasUpdates: has != 0, CommitsCount: count}, nil
}

// CloneDataStart is `total_files:u32, total_size:u64, repo_name_len:u32, repo_name[...]`.
type CloneDataStart struct {
	TotalFiles uint32
	TotalSize  uint64
	RepoName   string
}

func (m CloneDataStart) Encode() []byte {
	w := &writer{}
	w.u32(m.TotalFiles)
	w.u64(m.TotalSize)
	w.str32(m.RepoName)
	return w.bytes()
}

func DecodeCloneDataStart(buf []byte) (CloneDataStart, error) {
	r := newReader(buf)
	files, err := r.u32()
	if err != nil {
		return CloneDataStart{}, err
	}
	size, err := r.u64()
	if err != nil {
		return CloneDataStart{}, err
	}
	name, err := r.str32()
	if err != nil {
		return CloneDataStart{}, err
	}
	return CloneDataStart{TotalFiles: files, TotalSize: size, RepoName: name}, nil
}

// CloneFileType distinguishes a regular file from a directory entry in a
// CLONE_FILE frame.
type CloneFileType uint8

const (
	CloneFileRegular   CloneFileType = 0
	CloneFileDirectory CloneFileType = 1
)

// CloneFile is `path_len:u32, file_size:u64, crc32:u32, file_type:u8,
// path[...], file_data[...]`.
type CloneFile struct {
	Path     string
	FileSize uint64
	CRC32    uint32
	Type     CloneFileType
	Data     []byte
}

func (m CloneFile) Encode() []byte {
	w := &writer{}
	w.u32(uint32(len(m.Path))) //nolint:gosec
	w.u64(m.FileSize)
	w.u32(m.CRC32)
	w.u8(uint8(m.Type))
	w.raw([]byte(m.Path))
	w.raw(m.Data)
	return w.bytes()
}

func DecodeCloneFile(buf []byte) (CloneFile, error) {
	r := newReader(buf)
	pathLen, err := r.u32()
	if err != nil {
		return CloneFile{}, err
	}
	size, err := r.u64()
	if err != nil {
		return CloneFile{}, err
	}
	crc, err := r.u32()
	if err != nil {
		return CloneFile{}, err
	}
	t, err := r.u8()
	if err != nil {
		return CloneFile{}, err
	}
	path, err := r.bytes(int(pathLen))
	if err != nil {
		return CloneFile{}, err
	}
	data := buf[r.pos:]
	return CloneFile{
		Path:     string(path),
		FileSize: size,
		CRC32:    crc,
		Type:     CloneFileType(t),
		Data:     append([]byte(nil), data...),
	}, nil
}

// LogRequest is `max_count:u32, line:u8`.
type LogRequest struct {
	MaxCount uint32
	Line     bool
}

func (m LogRequest) Encode() []byte {
	w := &writer{}
	w.u32(m.MaxCount)
	w.u8(boolToU8(m.Line))
	return w.bytes()
}

func DecodeLogRequest(buf []byte) (LogRequest, error) {
	r := newReader(buf)
	max, err := r.u32()
	if err != nil {
		return LogRequest{}, err
	}
	line, err := r.u8()
	if err != nil {
		return LogRequest{}, err
	}
	return LogRequest{MaxCount: max, Line: line != 0}, nil
}

// LogEntry is one (id, message) pair inside a LOG_RESPONSE.
type LogEntry struct {
	ID      string
	Message string
}

// LogResponse is `commits_count:u32, repeat{id_len:u32, id[...],
// msg_len:u32, msg[...]}`.
type LogResponse struct {
	Entries []LogEntry
}

func (m LogResponse) Encode() []byte {
	w := &writer{}
	w.u32(uint32(len(m.Entries))) //nolint:gosec
	for _, e := range m.Entries {
		w.str32(e.ID)
		w.str32(e.Message)
	}
	return w.bytes()
}

func DecodeLogResponse(buf []byte) (LogResponse, error) {
	r := newReader(buf)
	count, err := r.u32()
	if err != nil {
		return LogResponse{}, err
	}
	out := LogResponse{Entries: make([]LogEntry, 0, count)}
	for i := uint32(0); i < count; i++ {
		id, err := r.str32()
		if err != nil {
			return LogResponse{}, err
		}
		msg, err := r.str32()
		if err != nil {
			return LogResponse{}, err
		}
		out.Entries = append(out.Entries, LogEntry{ID: id, Message: msg})
	}
	return out, nil
}

func boolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
