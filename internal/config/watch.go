package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval matches mercator-hq-jupiter's policy watcher default:
// long enough to coalesce an editor's write-then-rename sequence into one
// reload, short enough that an operator editing config.yaml sees it take
// effect within a blink.
const debounceInterval = 200 * time.Millisecond

// Watcher reloads a Manager's Config whenever its backing file changes on
// disk. Grounded on mercator-hq-jupiter's pkg/policy/manager/watcher.go
// (FileWatcher + Debouncer), narrowed from a recursive directory walk to
// the single config directory Manager already tracks.
type Watcher struct {
	manager *Manager
	logger  *slog.Logger
	fsw     *fsnotify.Watcher

	debounceMu sync.Mutex
	timer      *time.Timer

	stopCh chan struct{}
	doneCh chan struct{}
}

// Watch begins watching the Manager's config directory and calls onReload
// with the freshly loaded Config every time config.yaml or config.json in
// that directory changes. Runs in its own goroutine;
// call Stop to end it.
func (m *Manager) Watch(logger *slog.Logger, onReload func(*Config, error)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	if err := fsw.Add(m.baseDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch config dir %q: %w", m.baseDir, err)
	}

	w := &Watcher{
		manager: m,
		logger:  logger,
		fsw:     fsw,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	go w.loop(onReload)
	return w, nil
}

func (w *Watcher) loop(onReload func(*Config, error)) {
	defer close(w.doneCh)
	defer w.fsw.Close()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.debounce(func() {
				cfg, err := w.manager.Load()
				if err != nil {
					w.logger.Error("config reload failed", "error", err, "path", event.Name)
				} else {
					w.logger.Info("config reloaded", "path", event.Name)
				}
				onReload(cfg, err)
			})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	return base == DefaultYAMLFilename || base == DefaultConfigFilename
}

func (w *Watcher) debounce(callback func()) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceInterval, callback)
}

// Stop ends the watch loop and releases the underlying fsnotify handle.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
}
