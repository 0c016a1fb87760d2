// Package commitgraph implements the commit data model (C4): canonical
// encode/decode of commit records, storage through an ObjectStore, and a
// cycle-safe linear-history walk.
package commitgraph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cantrip-vcs/minigit/internal/objstore"
	"github.com/cantrip-vcs/minigit/internal/vcserr"
)

// Commit is the record {id, parent, message, timestamp, tree} from the
// data model: exactly one parent (empty for the initial commit), a tree
// mapping repository-relative paths to blob ids.
type Commit struct {
	ID        string
	Parent    string
	Message   string
	Timestamp time.Time
	Tree      map[string]string
}

// canonical renders a commit deterministically: a strict grammar (not the
// donor's ad-hoc escaped git-object text) with fields in a fixed order
// and tree entries sorted by path so that identical content always
// produces identical bytes, and therefore identical ids.
func canonical(parent, message string, ts time.Time, tree map[string]string) []byte {
	var sb strings.Builder
	sb.WriteString("parent ")
	sb.WriteString(parent)
	sb.WriteByte('\n')
	sb.WriteString("timestamp ")
	sb.WriteString(strconv.FormatInt(ts.Unix(), 10))
	sb.WriteByte(' ')
	sb.WriteString(ts.Format("-0700"))
	sb.WriteByte('\n')
	sb.WriteString("message ")
	sb.WriteString(strings.ReplaceAll(message, "\n", "\\n"))
	sb.WriteByte('\n')

	paths := make([]string, 0, len(tree))
	for p := range tree {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		sb.WriteString("tree ")
		sb.WriteString(p)
		sb.WriteByte('\t')
		sb.WriteString(tree[p])
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// StoreCommit canonicalizes c's fields, computes its id, writes it as a
// single object, and returns the populated Commit (with ID set).
func StoreCommit(store *objstore.Store, parent, message string, ts time.Time, tree map[string]string) (Commit, error) {
	treeCopy := make(map[string]string, len(tree))
	for k, v := range tree {
		treeCopy[k] = v
	}
	bytes := canonical(parent, message, ts, treeCopy)
	id, err := store.Put(bytes)
	if err != nil {
		return Commit{}, vcserr.Wrap(vcserr.KindStorage, "store commit", err)
	}
	return Commit{ID: id, Parent: parent, Message: message, Timestamp: ts, Tree: treeCopy}, nil
}

// LoadCommit retrieves and parses the commit stored under id.
func LoadCommit(store *objstore.Store, id string) (Commit, error) {
	data, err := store.Get(id)
	if err != nil {
		return Commit{}, vcserr.Wrap(vcserr.KindIntegrity, fmt.Sprintf("load commit %s", id), err)
	}
	c, err := parse(data)
	if err != nil {
		return Commit{}, vcserr.Wrap(vcserr.KindIntegrity, fmt.Sprintf("parse commit %s", id), err)
	}
	c.ID = id
	return c, nil
}

// ParseCommit decodes a commit's canonical bytes without an id or a
// backing store, for callers (push/pull handlers) that must inspect a
// commit's parent before deciding whether to store it.
func ParseCommit(data []byte) (Commit, error) {
	return parse(data)
}

// StoreRaw stores an already-encoded commit's bytes under store's
// content-addressed naming, returning the resulting id. Used when
// receiving a peer's serialized commit verbatim (push/pull/clone): the
// store recomputes the id from the bytes rather than trusting a
// peer-supplied one.
func StoreRaw(store *objstore.Store, data []byte) (string, error) {
	id, err := store.Put(data)
	if err != nil {
		return "", vcserr.Wrap(vcserr.KindStorage, "store raw commit", err)
	}
	return id, nil
}

func parse(data []byte) (Commit, error) {
	c := Commit{Tree: make(map[string]string)}
	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			return Commit{}, fmt.Errorf("malformed commit line %q", line)
		}
		key, rest := line[:sp], line[sp+1:]
		switch key {
		case "parent":
			c.Parent = rest
		case "timestamp":
			fields := strings.SplitN(rest, " ", 2)
			sec, err := strconv.ParseInt(fields[0], 10, 64)
			if err != nil {
				return Commit{}, fmt.Errorf("malformed timestamp %q: %w", rest, err)
			}
			loc := time.Local
			if len(fields) == 2 {
				if l, err := parseOffset(fields[1]); err == nil {
					loc = l
				}
			}
			c.Timestamp = time.Unix(sec, 0).In(loc)
		case "message":
			c.Message = strings.ReplaceAll(rest, "\\n", "\n")
		case "tree":
			tab := strings.IndexByte(rest, '\t')
			if tab < 0 {
				return Commit{}, fmt.Errorf("malformed tree entry %q", rest)
			}
			c.Tree[rest[:tab]] = rest[tab+1:]
		default:
			return Commit{}, fmt.Errorf("unknown commit field %q", key)
		}
	}
	return c, nil
}

func parseOffset(s string) (*time.Location, error) {
	if len(s) != 5 || (s[0] != '+' && s[0] != '-') {
		return nil, fmt.Errorf("bad offset %q", s)
	}
	hh, err := strconv.Atoi(s[1:3])
	if err != nil {
		return nil, err
	}
	mm, err := strconv.Atoi(s[3:5])
	if err != nil {
		return nil, err
	}
	secs := hh*3600 + mm*60
	if s[0] == '-' {
		secs = -secs
	}
	return time.FixedZone(s, secs), nil
}

// Walk returns the linear history starting at from, following parent
// links until it reaches an empty parent or stopAt (stopAt itself is not
// included). A visited set guards against cycles even though the data
// model forbids them.
func Walk(store *objstore.Store, from, stopAt string) ([]Commit, error) {
	var out []Commit
	seen := make(map[string]bool)
	cur := from
	for cur != "" && cur != stopAt {
		if seen[cur] {
			return out, vcserr.New(vcserr.KindIntegrity, "cycle detected in commit history")
		}
		seen[cur] = true
		c, err := LoadCommit(store, cur)
		if err != nil {
			return out, err
		}
		out = append(out, c)
		cur = c.Parent
	}
	return out, nil
}
