package intake

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDefault is the default debounce interval for file events.
const debounceDefault = 200 * time.Millisecond

// pollDefault is the default polling interval when fsnotify is unavailable.
const pollDefault = 2 * time.Second

// watchDir calls flush with the sorted batch of command files created in dir
// since the last flush. Batches are delivered from the calling goroutine so
// files are handled one at a time. Blocks until ctx is cancelled.
func watchDir(ctx context.Context, dir string, debounce time.Duration, flush func([]string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	// A single timer resets on each event; when it fires all accumulated
	// paths flush together.
	ready := make(map[string]bool)
	emit := func() {
		if len(ready) == 0 {
			return
		}
		batch := make([]string, 0, len(ready))
		for p := range ready {
			batch = append(batch, p)
		}
		ready = make(map[string]bool)
		sort.Strings(batch)
		flush(batch)
	}

	debounceTimer := time.NewTimer(debounce)
	debounceTimer.Stop()
	defer debounceTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-debounceTimer.C:
			emit()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !isCommandFile(event.Name) {
				continue
			}
			ready[event.Name] = true

			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(debounce)

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

// pollDir rescans dir every interval. Used when fsnotify is unavailable
// (e.g. NFS). Blocks until ctx is cancelled.
func pollDir(ctx context.Context, dir string, interval time.Duration, scan func()) error {
	if interval <= 0 {
		interval = pollDefault
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			scan()
		}
	}
}

// listCommands returns the command files in dir in filename order.
func listCommands(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if isCommandFile(path) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}

// isCommandFile returns true if the file is a .json file (not a .tmp partial write).
func isCommandFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".tmp")
}
