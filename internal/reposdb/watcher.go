package reposdb

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cantrip-vcs/minigit/internal/repomanager"
)

const debounce = 100 * time.Millisecond

// Watcher keeps a Cache in sync with a RepoManager by watching each
// repository's HEAD file and objects directory for changes. fsnotify does
// not recurse, so each repository's hidden directory is watched directly
// rather than the RepoManager's root.
type Watcher struct {
	cache   *Cache
	repos   *repomanager.Manager
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	watched map[string]bool // repo name -> already added to fsnotify
}

// NewWatcher creates a Watcher over cache and repos. Call Run to begin
// watching, and Close to release the underlying inotify/kqueue handle.
func NewWatcher(cache *Cache, repos *repomanager.Manager, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		cache:   cache,
		repos:   repos,
		logger:  logger,
		watcher: fw,
		watched: make(map[string]bool),
	}, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// AddRepo starts watching name's HEAD file and objects directory. It is
// idempotent; calling it again for an already-watched repo is a no-op.
func (w *Watcher) AddRepo(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watched[name] {
		return nil
	}

	path, err := w.repos.Path(name)
	if err != nil {
		return err
	}
	hidden := filepath.Join(path, ".minigit")
	if err := w.watcher.Add(hidden); err != nil {
		return err
	}
	if err := w.watcher.Add(filepath.Join(hidden, "objects")); err != nil {
		w.logger.Warn("reposdb: failed to watch objects dir", "repo", name, "err", err)
	}
	w.watched[name] = true
	return nil
}

// Run processes fsnotify events until stop is closed, debouncing bursts of
// writes into a single cache refresh per repository.
func (w *Watcher) Run(stop <-chan struct{}) {
	timers := make(map[string]*time.Timer)
	var mu sync.Mutex

	refresh := func(name string) {
		if _, err := Refresh(w.cache, w.repos, name); err != nil {
			w.logger.Warn("reposdb: refresh failed", "repo", name, "err", err)
		}
	}

	for {
		select {
		case <-stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			name := repoNameFromPath(event.Name)
			if name == "" {
				continue
			}

			mu.Lock()
			if t, exists := timers[name]; exists {
				t.Stop()
			}
			timers[name] = time.AfterFunc(debounce, func() { refresh(name) })
			mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("reposdb: watcher error", "err", err)
		}
	}
}

// repoNameFromPath extracts the repository name from an event path for an
// entry inside a watched directory: .../<repo>/.minigit/<entry> or
// .../<repo>/.minigit/objects/<entry>. Any other path yields "".
func repoNameFromPath(path string) string {
	dir := filepath.Dir(path)
	switch filepath.Base(dir) {
	case ".minigit":
		return filepath.Base(filepath.Dir(dir))
	case "objects":
		return filepath.Base(filepath.Dir(filepath.Dir(dir)))
	default:
		return ""
	}
}
