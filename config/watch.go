package config

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Swind/go-dispatch/core"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watcher waits after the last file event
// before reloading, so editors that write in several steps trigger one reload.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a config file when it changes and hands every new, valid
// and actually different Config to a callback.
type Watcher struct {
	path     string
	log      core.Logger
	onChange func(*Config)

	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration

	mu       sync.Mutex
	lastHash uint64
	timer    *time.Timer
}

// NewWatcher creates a Watcher for path. A nil logger discards logs.
func NewWatcher(path string, logger core.Logger, onChange func(*Config)) *Watcher {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	return &Watcher{path: path, log: logger, onChange: onChange, Debounce: DefaultDebounce}
}

// Prime records cfg as the current content so an unchanged rewrite of the
// file is not reported.
func (w *Watcher) Prime(cfg *Config) {
	w.mu.Lock()
	w.lastHash = hashConfig(cfg)
	w.mu.Unlock()
}

// Run watches until ctx ends. The directory is watched rather than the file
// so editors that replace the file by rename are still seen.
func (w *Watcher) Run(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(dir); err != nil {
		return err
	}
	defer w.stopTimer()

	w.log.Debug("config watcher started", core.F("dir", dir), core.F("file", file))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("config: watcher closed")
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
				w.schedule(ctx)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("config: watcher closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warn("config watch overflow; forcing reload", core.F("dir", dir))
				w.schedule(ctx)
				continue
			}
			w.log.Warn("config watch error", core.F("err", err), core.F("dir", dir))
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	delay := w.Debounce
	if delay <= 0 {
		delay = DefaultDebounce
	}
	w.timer = time.AfterFunc(delay, func() { w.reload(ctx) })
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

func (w *Watcher) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("config rejected", core.F("path", w.path), core.F("err", err))
		return
	}

	h := hashConfig(cfg)
	w.mu.Lock()
	unchanged := h != 0 && h == w.lastHash
	if !unchanged {
		w.lastHash = h
	}
	w.mu.Unlock()
	if unchanged {
		w.log.Debug("config unchanged; skipping", core.F("path", w.path))
		return
	}

	w.log.Info("config reloaded", core.F("path", w.path))
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
