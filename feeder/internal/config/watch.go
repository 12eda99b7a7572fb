package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path and calls onChange with the reloaded Config each time
// the file is written or recreated. It blocks until ctx is cancelled.
//
// A reload that fails to parse or validate is logged and skipped: onChange
// is not called and the feeder keeps polling with the previous settings.
// Only log level and poll interval are applied live; sources, buffer sizes
// and router_auth take effect on restart.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("feeder config: new watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("feeder config: watch %q: %w", path, err)
	}

	slog.Info("feeder config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors that save atomically write a temp file and rename it
			// over path, which arrives as Create rather than Write.
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				slog.Error("feeder config: reload failed, keeping previous", "path", path, "err", err)
				continue
			}

			slog.Info("feeder config: reloaded", "path", path, "poll_interval", cfg.Feeder.PollInterval)
			onChange(cfg)

			// The rename left the watch on the old inode; add path again so
			// the next save is still seen. Adding a live watch is a no-op.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("feeder config: watcher error", "err", err)
		}
	}
}
