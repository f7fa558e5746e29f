// Package watch debounces filesystem change events into a per-frame set
// of changed paths, driving the pass executor's hot reload (spec §4.6,
// N). Runs on its own thread; the engine drains its output channel once
// per frame, never blocking if nothing changed.
package watch

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// DebounceWindow is the coalescing window for rapid successive writes to
// the same file (spec §4.6: "debounces filesystem change events (100
// ms)").
const DebounceWindow = 100 * time.Millisecond

// Watcher watches a set of directories and emits batches of changed file
// paths, deduplicated and debounced.
type Watcher struct {
	fsw *fsnotify.Watcher
	log *slog.Logger

	mu      sync.Mutex
	pending map[string]time.Time

	Changed chan []string // buffered; a frame drains this without blocking
}

// New starts watching the given directories.
func New(log *slog.Logger, dirs ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}
	for _, d := range dirs {
		if err := fsw.Add(d); err != nil {
			fsw.Close()
			return nil, errors.Wrapf(err, "failed to watch %q", d)
		}
	}

	w := &Watcher{
		fsw:     fsw,
		log:     log,
		pending: make(map[string]time.Time),
		Changed: make(chan []string, 8),
	}
	go w.run()
	return w, nil
}

// Add watches an additional directory at runtime, e.g. when a new effect
// manifest is loaded from a user config directory.
func (w *Watcher) Add(dir string) error {
	return w.fsw.Add(dir)
}

func (w *Watcher) run() {
	ticker := time.NewTicker(DebounceWindow / 2)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending[filepath.Clean(ev.Name)] = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", "err", err)

		case <-ticker.C:
			w.flush()
		}
	}
}

// flush moves paths whose debounce window has elapsed into a batch on
// Changed.
func (w *Watcher) flush() {
	now := time.Now()

	w.mu.Lock()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= DebounceWindow {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	if len(ready) == 0 {
		return
	}

	select {
	case w.Changed <- ready:
	default:
		// Channel full; the engine hasn't drained in a while. Drop the
		// batch rather than block the watcher thread.
		w.log.Warn("watch: dropped a changed-paths batch, consumer not draining")
	}
}

// Close stops watching and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
