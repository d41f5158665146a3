package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounceDelay = 500 * time.Millisecond

// Watcher reloads the config file whenever it changes on disk and hands the
// freshly validated result to OnReload. Invalid files are logged and ignored,
// so the running configuration always stays the last valid one.
type Watcher struct {
	Path     string
	Debounce time.Duration
	OnReload func(*Config)

	mu    sync.Mutex
	timer *time.Timer
}

func NewWatcher(path string, debounce time.Duration, onReload func(*Config)) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounceDelay
	}
	return &Watcher{Path: path, Debounce: debounce, OnReload: onReload}
}

// Run blocks until ctx is cancelled or the underlying fsnotify watcher fails.
func (w *Watcher) Run(ctx context.Context) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create config file watcher", "error", err)
		return
	}
	defer fw.Close()

	// Editors often replace the file instead of writing in place, so the
	// directory is watched rather than the file itself.
	dir := filepath.Dir(w.Path)
	if err := fw.Add(dir); err != nil {
		slog.Error("Failed to watch config directory", "path", dir, "error", err)
		return
	}
	slog.Info("Started configuration watcher", "path", w.Path, "debounce", w.Debounce)

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			slog.Info("Stopping configuration watcher")
			return
		case ev, ok := <-fw.Events:
			if !ok {
				slog.Warn("Watcher events channel closed, stopping watcher")
				return
			}
			if w.relevant(ev) {
				w.schedule()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				slog.Warn("Watcher errors channel closed, stopping watcher")
				return
			}
			slog.Error("Error watching config file", "error", err)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != filepath.Clean(w.Path) {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.Debounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	slog.Info("Config file changed, reloading", "path", w.Path)
	cfg, _, err := Load(w.Path, false)
	if err != nil {
		slog.Error("Failed to reload config file, keeping previous configuration", "path", w.Path, "error", err)
		return
	}
	w.OnReload(cfg)
	slog.Info("Configuration reloaded", "path", w.Path, "guild_overrides", len(cfg.Guilds))
}
