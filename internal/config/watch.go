package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the configuration whenever the config file is written and
// hands each valid new snapshot to onChange. Invalid edits are logged and
// the previous snapshot stays in effect.
//
// The watcher goroutine exits when ctx is cancelled. Watch itself returns
// immediately after the filesystem watch is established.
//
// The directory is watched rather than the file: editors that write via
// rename (vim, sed -i) replace the inode, and a watch pinned to the old
// inode would go silent after the first save.
func (m *Manager) Watch(ctx context.Context, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}

	if err := watcher.Add(m.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching config directory: %w", err)
	}

	go func() {
		defer func() {
			if err := watcher.Close(); err != nil {
				slog.Debug("closing config watcher", "error", err)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != m.path {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}

				cfg, err := m.Load()
				if err != nil {
					slog.Warn("configuration reload failed, keeping previous",
						"path", m.path,
						"error", err)
					continue
				}

				slog.Info("configuration reloaded", "path", m.path)
				onChange(cfg)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			}
		}
	}()

	return nil
}
