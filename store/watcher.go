package store

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is how long the watcher waits after the last change
// before reloading.
const DefaultDebounceInterval = 100 * time.Millisecond

// ReloadFunc is called when the watched document changed on disk.
type ReloadFunc func() error

// Watcher reloads the store when its JSON document is edited by someone
// else. It watches the parent directory because every save replaces the
// file through a rename.
type Watcher struct {
	path             string
	name             string
	reload           ReloadFunc
	logger           *slog.Logger
	debounceInterval time.Duration

	watcher   *fsnotify.Watcher
	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	pending  *time.Timer
	inflight sync.WaitGroup
}

// NewWatcher creates a watcher for the document at path. logger may be nil.
func NewWatcher(path string, reload ReloadFunc, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		path:             path,
		name:             filepath.Base(path),
		reload:           reload,
		logger:           logger,
		debounceInterval: DefaultDebounceInterval,
		watcher:          fsWatcher,
		stopChan:         make(chan struct{}),
		doneChan:         make(chan struct{}),
	}, nil
}

// SetDebounce changes the debounce interval. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounceInterval = d
}

// Start begins watching for file changes.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.logger.Info("watching document", "path", w.path)
	go w.processEvents()
	return nil
}

// Close stops the watcher and waits for a running reload to finish. No
// reload starts after Close returns.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		close(w.stopChan)
		if w.pending != nil {
			w.pending.Stop()
			w.pending = nil
		}
		w.mu.Unlock()

		w.watcher.Close()
		<-w.doneChan
		w.inflight.Wait()
	})
}

func (w *Watcher) processEvents() {
	defer close(w.doneChan)

	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != w.name {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	w.scheduleReload()
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.stopChan:
		return
	default:
	}
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounceInterval, w.doReload)
}

func (w *Watcher) doReload() {
	w.mu.Lock()
	select {
	case <-w.stopChan:
		w.mu.Unlock()
		return
	default:
	}
	w.pending = nil
	w.inflight.Add(1)
	w.mu.Unlock()
	defer w.inflight.Done()

	if err := w.reload(); err != nil {
		w.logger.Error("document reload failed; keeping in-memory state", "path", w.path, "error", err)
		return
	}
	w.logger.Debug("document change handled", "path", w.path)
}
