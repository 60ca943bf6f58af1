// Package watcher detects removal of the local database file so the running
// process can recreate it from the in-memory library.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce is how long a removal must stand before onDelete runs.
// Tools that replace the file atomically remove and recreate it in quick
// succession.
const DefaultDebounce = 100 * time.Millisecond

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// Watcher calls onDelete when the target file, or its directory, is removed
// or renamed away. fsnotify cannot watch a missing file, so the parent
// directory is watched instead.
type Watcher struct {
	target   string
	parent   string
	onDelete func()
	debounce time.Duration
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a watcher for target.
func New(target string, onDelete func(), opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	target = filepath.Clean(target)
	w := &Watcher{
		target:   target,
		parent:   filepath.Dir(target),
		onDelete: onDelete,
		debounce: DefaultDebounce,
		fsw:      fsw,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := w.watchParent(); err != nil {
		log.Warn().Err(err).Str("path", w.parent).Msg("Failed to watch database directory")
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true
	go w.loop(ctx)
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	err := w.fsw.Close()
	<-done
	return err
}

func (w *Watcher) watchParent() error {
	if _, err := os.Stat(w.parent); err != nil {
		return err
	}
	return w.fsw.Add(w.parent)
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
		}
	}
	defer stopTimer()

	const gone = fsnotify.Remove | fsnotify.Rename

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			path := filepath.Clean(event.Name)

			switch {
			case (path == w.target || path == w.parent) && event.Op&gone != 0:
				log.Info().Str("path", path).Str("op", event.Op.String()).Msg("Database file removed")
				stopTimer()
				timer = time.AfterFunc(w.debounce, func() { w.fire(ctx) })

			case path == w.target && event.Op&fsnotify.Create != 0 && timer != nil:
				log.Info().Str("path", path).Msg("Database file replaced, ignoring removal")
				stopTimer()

			case path == w.parent && event.Op&fsnotify.Create != 0:
				_ = w.watchParent()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

// fire runs onDelete and re-arms the watch on a recreated directory.
func (w *Watcher) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if w.onDelete != nil {
		w.onDelete()
	}
	if err := w.watchParent(); err != nil {
		log.Warn().Err(err).Str("path", w.parent).Msg("Failed to re-arm database watch")
	}
}
