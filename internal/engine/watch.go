package engine

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchDebounce is how long the watched file must stay quiet before reload.
const WatchDebounce = 250 * time.Millisecond

// Watch reloads the current file whenever it changes on disk, until ctx is
// done. Directories (image sequences) reload on any change inside them.
func (e *Engine) Watch(ctx context.Context) error {
	path := e.Path()
	if path == "" {
		return ErrNoSession
	}
	path = filepath.Clean(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := path
	isDir := true
	if fi, err := os.Stat(path); err != nil || !fi.IsDir() {
		dir = filepath.Dir(path)
		isDir = false
	}
	// watching the directory survives editors that replace the file
	if err := w.Add(dir); err != nil {
		return err
	}
	e.log.Info().Str("path", path).Msg("watching for changes")

	timer := time.NewTimer(WatchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !isDir && filepath.Clean(ev.Name) != path {
				continue
			}
			timer.Reset(WatchDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.log.Warn().Err(err).Msg("watcher error")
		case <-timer.C:
			if err := e.Load(ctx, path); err != nil {
				e.log.Warn().Err(err).Str("path", path).Msg("reload failed")
			}
		}
	}
}
