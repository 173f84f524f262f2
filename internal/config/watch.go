package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file on every write and notifies a callback,
// adapted from the teacher's koanf_loader.go Watch/OnChange pair — here
// driven by fsnotify directly instead of a provider-specific Watch method,
// since only the file provider is wired in this build (§9: no distributed
// config backend is in scope).
type Watcher struct {
	path     string
	onChange func(*Config)
	fsw      *fsnotify.Watcher
	stop     chan struct{}
}

// Watch starts watching path's directory (editors often replace the file
// via rename-and-recreate, which fsnotify only sees on the containing
// directory) and calls onChange with the freshly reloaded Config after
// every write/create event. Call Stop to release the underlying watcher.
func Watch(path string, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{path: path, onChange: onChange, fsw: fsw, stop: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				slog.Warn("config reload failed, keeping previous config", "path", w.path, "error", err)
				continue
			}
			w.onChange(cfg)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

// Stop ends the watch goroutine and closes the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.stop)
	w.fsw.Close()
}
