package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"dayai/pkg/logging"
)

const (
	// DefaultDebounceInterval is how long the watcher waits after the last
	// change before calling OnChange.
	DefaultDebounceInterval = 500 * time.Millisecond

	// DefaultPollInterval is used when fsnotify cannot watch the directory.
	DefaultPollInterval = 5 * time.Second
)

// StateWatcherConfig holds configuration for the state file watcher.
type StateWatcherConfig struct {
	// Path is the state file to watch. Its directory must exist.
	Path string

	Debounce     time.Duration
	PollInterval time.Duration

	// OnChange is called once per burst of changes.
	OnChange func()
}

// StateWatcher reports edits of the state file made by other processes,
// such as a `dayai login` in another terminal.
type StateWatcher struct {
	mu sync.Mutex

	config    StateWatcherConfig
	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool
	lastMod   time.Time

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewStateWatcher creates a watcher. Call Start to begin watching.
func NewStateWatcher(config StateWatcherConfig) *StateWatcher {
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounceInterval
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	return &StateWatcher{config: config}
}

// Start begins watching. It falls back to polling when fsnotify is
// unavailable.
func (w *StateWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	w.stopCh = make(chan struct{})
	w.running = true

	dir := filepath.Dir(w.config.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		w.running = false
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("StateWatcher", "fsnotify not available, falling back to polling: %v", err)
		go w.poll()
		return nil
	}
	// The directory is watched because the store replaces the file by rename.
	if err := watcher.Add(dir); err != nil {
		logging.Warn("StateWatcher", "Failed to watch %s, falling back to polling: %v", dir, err)
		watcher.Close()
		go w.poll()
		return nil
	}
	w.fsWatcher = watcher

	go w.processEvents(watcher.Events, watcher.Errors)
	logging.Debug("StateWatcher", "Watching %s", w.config.Path)
	return nil
}

func (w *StateWatcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	target := filepath.Base(w.config.Path)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			w.triggerDebounced()
		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("StateWatcher", err, "fsnotify error")
		}
	}
}

func (w *StateWatcher) poll() {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.lastMod = w.modTime()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			if mod := w.modTime(); !mod.Equal(w.lastMod) {
				w.lastMod = mod
				w.triggerDebounced()
			}
		}
	}
}

func (w *StateWatcher) modTime() time.Time {
	info, err := os.Stat(w.config.Path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (w *StateWatcher) triggerDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.config.Debounce, func() {
		w.mu.Lock()
		running := w.running
		callback := w.config.OnChange
		w.mu.Unlock()

		if running && callback != nil {
			callback()
		}
	})
}

// Stop ends watching. Pending notifications are dropped.
func (w *StateWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		logging.BestEffort("StateWatcher", "close fsnotify watcher", w.fsWatcher.Close)
		w.fsWatcher = nil
	}
}
