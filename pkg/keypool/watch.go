package keypool

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jmylchreest/distill/internal/logger"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads pool from the credential file whenever it changes, until ctx
// is cancelled. A file that fails to parse leaves the current set in place.
func Watch(ctx context.Context, path string, pool *Pool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Editors replace files on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	go watchLoop(ctx, watcher, FileSource{Path: path}, pool)
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, src FileSource, pool *Pool) {
	defer func() {
		if err := watcher.Close(); err != nil {
			logger.Error("failed to close watcher", "error", err)
		}
	}()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	base := filepath.Base(src.Path)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(reloadDebounce)
			fire = timer.C

		case <-fire:
			fire = nil
			reload(ctx, src, pool)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("credential watcher error", "error", err)
		}
	}
}

func reload(ctx context.Context, src FileSource, pool *Pool) {
	creds, err := src.Load(ctx)
	if err != nil {
		logger.Warn("credential reload failed", "path", src.Path, "error", err)
		return
	}
	if err := pool.Reload(creds); err != nil {
		logger.Warn("credential reload rejected", "path", src.Path, "error", err)
		return
	}
	stats := pool.Stats()
	logger.Info("credentials reloaded", "path", src.Path, "available", stats.Available, "checked_out", stats.CheckedOut)
}
