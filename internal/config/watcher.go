package config

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/discord-file-vault/internal/errs"
)

// Watcher holds a hot-reloadable AppConfig. A reload that fails to parse
// or fails a caller-supplied validation hook is logged and discarded; the
// last-good config stays live (§4.15: validate-before-swap).
type Watcher struct {
	path   string
	log    *logrus.Logger
	fsw    *fsnotify.Watcher
	valid  func(*AppConfig) error
	active atomic.Pointer[AppConfig]

	mu       sync.Mutex
	closed   bool
	doneCh   chan struct{}
}

// NewWatcher loads path once, then watches it for writes. validate, if
// non-nil, is run against every candidate config (including the initial
// load) before it is accepted.
func NewWatcher(path string, log *logrus.Logger, validate func(*AppConfig) error) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if validate != nil {
		if err := validate(cfg); err != nil {
			return nil, errs.Wrap(errs.KindConfigInvalid, "initial config failed validation", err)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.Wrap(errs.KindConfigInvalid, "failed to start config file watcher", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, errs.Wrap(errs.KindConfigInvalid, fmt.Sprintf("failed to watch %q", path), err)
	}

	w := &Watcher{path: path, log: log, fsw: fsw, valid: validate, doneCh: make(chan struct{})}
	w.active.Store(cfg)
	go w.loop()
	return w, nil
}

// Current returns the currently active, already-validated config.
func (w *Watcher) Current() *AppConfig {
	return w.active.Load()
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.WithError(err).Warn("config reload failed to parse; keeping last-good config")
		return
	}
	if w.valid != nil {
		if err := w.valid(cfg); err != nil {
			w.log.WithError(err).Warn("config reload failed validation; keeping last-good config")
			return
		}
	}
	w.active.Store(cfg)
	w.log.Info("config reloaded")
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.fsw.Close()
	<-w.doneCh
	return err
}
