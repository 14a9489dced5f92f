package rules

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces bursts of write events (editors often write a
// file in several steps) into a single reload.
const reloadDebounce = 250 * time.Millisecond

// Watch reloads the tables from dir whenever one of the table files
// changes, calling onReload with each valid result. Invalid edits are
// logged and skipped, so the previously loaded tables stay in effect.
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, dir string, logger *slog.Logger, onReload func(*Tables)) error {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rules: creating watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("rules: watching %s: %w", dir, err)
	}

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isTableFile(ev.Name) || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("rules watcher error", slog.String("dir", dir), slog.String("error", err.Error()))

		case <-fire:
			fire = nil
			tables, err := Load(dir)
			if err != nil {
				logger.Error("rules reload rejected, keeping previous tables",
					slog.String("dir", dir), slog.String("error", err.Error()))
				continue
			}
			logger.Info("rules reloaded", slog.String("dir", dir))
			onReload(tables)
		}
	}
}

func isTableFile(path string) bool {
	switch filepath.Base(path) {
	case AdequacyFile, TechnologyFile, ContradictionsFile, BiasFile:
		return true
	}
	return false
}
