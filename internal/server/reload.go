package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce waits for writes to settle before reloading.
const reloadDebounce = 500 * time.Millisecond

// Reloader watches the config file and triggers hot reload.
type Reloader struct {
	watcher  *fsnotify.Watcher
	server   *Server
	path     string
	debounce time.Duration
}

// NewReloader watches the directory holding the server's config file, so
// editors that replace the file by rename are still seen.
func NewReloader(server *Server) (*Reloader, error) {
	path := server.cfg.ConfigPath
	if path == "" {
		return nil, fmt.Errorf("server: no config path to watch")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}

	return &Reloader{
		watcher:  watcher,
		server:   server,
		path:     filepath.Clean(path),
		debounce: reloadDebounce,
	}, nil
}

// Run watches for file changes and reloads. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer
	logger := r.server.logger

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(r.debounce, func() {
					if err := r.server.Reload(); err != nil {
						logger.Error("hot-reload failed", "error", err)
					}
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", "error", err)
		}
	}
}
