package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"hivemind/internal/logging"
)

// Watcher watches a config file for edits and reports them on a channel
// after a short debounce, so an editor's save storm produces one reload.
// The parent directory is watched rather than the file itself: most editors
// replace the file on save, which would otherwise drop the watch.
type Watcher struct {
	path     string
	debounce time.Duration

	watcher *fsnotify.Watcher
	changes chan string

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:     abs,
		debounce: 500 * time.Millisecond,
		watcher:  fsw,
		changes:  make(chan string, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Changes returns the channel that receives the config path after each
// debounced edit.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// Start begins watching. The watcher runs until Stop is called or ctx ends.
func (w *Watcher) Start(ctx context.Context) {
	logging.Config("watching %s for changes", w.path)
	go w.run(ctx)
}

// Stop halts the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		<-w.doneCh
		w.watcher.Close()
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	dirty := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				dirty = true
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Config("watch error: %v", err)
		case <-ticker.C:
			if !dirty {
				continue
			}
			dirty = false
			logging.Config("config changed: %s", w.path)
			select {
			case w.changes <- w.path:
			default:
			}
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Base(ev.Name) != filepath.Base(w.path) {
		return false
	}
	return ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename)
}
