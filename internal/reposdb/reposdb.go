// Package reposdb caches repository metadata (name, last-modified time,
// commit count) in a SQLite table so LIST_REPOS_RESPONSE can be served
// without walking every repository's commit graph on each request.
package reposdb

import (
	"database/sql"
	"embed"
	"errors"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/cantrip-vcs/minigit/internal/repomanager"
	"github.com/cantrip-vcs/minigit/internal/vcserr"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Entry is one cached repository's metadata row.
type Entry struct {
	Name         string
	LastModified int64
	CommitCount  int
}

// Cache is a SQLite-backed metadata cache rooted alongside a RepoManager's
// server directory. It is safe for concurrent use; the underlying
// *sql.DB pools its own connections.
type Cache struct {
	db *sql.DB
}

// Open opens (creating if necessary) the cache database at dbPath and
// migrates it to the latest schema.
func Open(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, vcserr.Wrap(vcserr.KindStorage, "open reposdb", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, vcserr.Wrap(vcserr.KindStorage, "set goose dialect", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, vcserr.Wrap(vcserr.KindStorage, "migrate reposdb", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached entry for name, or (Entry{}, false) on a cache miss.
func (c *Cache) Get(name string) (Entry, bool) {
	row := c.db.QueryRow(`SELECT name, last_modified, commit_count FROM repos WHERE name = ?`, name)
	var e Entry
	if err := row.Scan(&e.Name, &e.LastModified, &e.CommitCount); err != nil {
		return Entry{}, false
	}
	return e, true
}

// Put inserts or replaces the cached entry for a repository.
func (c *Cache) Put(e Entry) error {
	_, err := c.db.Exec(
		`INSERT INTO repos (name, last_modified, commit_count) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET last_modified = excluded.last_modified, commit_count = excluded.commit_count`,
		e.Name, e.LastModified, e.CommitCount,
	)
	if err != nil {
		return vcserr.Wrap(vcserr.KindStorage, "put reposdb entry", err)
	}
	return nil
}

// Delete removes a repository's cached entry, e.g. after it is removed
// from the RepoManager.
func (c *Cache) Delete(name string) error {
	_, err := c.db.Exec(`DELETE FROM repos WHERE name = ?`, name)
	if err != nil {
		return vcserr.Wrap(vcserr.KindStorage, "delete reposdb entry", err)
	}
	return nil
}

// List returns every cached entry, ordered by name.
func (c *Cache) List() ([]Entry, error) {
	rows, err := c.db.Query(`SELECT name, last_modified, commit_count FROM repos ORDER BY name`)
	if err != nil {
		return nil, vcserr.Wrap(vcserr.KindStorage, "list reposdb entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.LastModified, &e.CommitCount); err != nil {
			return nil, vcserr.Wrap(vcserr.KindStorage, "scan reposdb entry", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Refresh recomputes and stores the metadata for a single repository from
// the RepoManager, replacing any prior cached value. Call this from a
// watcher callback or lazily on a cache miss.
func Refresh(c *Cache, rm *repomanager.Manager, name string) (Entry, error) {
	count, err := rm.CommitCount(name)
	if err != nil {
		return Entry{}, err
	}
	mtime, err := rm.LastModified(name)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Name: name, LastModified: mtime, CommitCount: count}
	if err := c.Put(e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// RefreshAll rebuilds the cache from scratch by listing every repository
// known to rm. Entries for repositories no longer present are dropped.
func RefreshAll(c *Cache, rm *repomanager.Manager) ([]Entry, error) {
	names, err := rm.List()
	if err != nil {
		return nil, err
	}

	cached, err := c.List()
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	for _, e := range cached {
		if !known[e.Name] {
			if err := c.Delete(e.Name); err != nil {
				return nil, err
			}
		}
	}

	entries := make([]Entry, 0, len(names))
	for _, n := range names {
		e, err := Refresh(c, rm, n)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DBPath returns the conventional cache database path rooted alongside
// a RepoManager's server directory.
func DBPath(root string) string {
	return filepath.Join(root, ".reposdb.sqlite3")
}

// ErrNotFound is returned by callers that distinguish a cache miss from
// a storage error; Get itself returns a plain bool instead.
var ErrNotFound = errors.New("reposdb: entry not found")
