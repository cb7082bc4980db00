// Package watcher feeds the batch queue from watched invoice folders
// (the folder-scan source).
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/docling/docling-agent/internal/logger"
)

// invoiceExts are the file extensions treated as scannable invoices.
var invoiceExts = map[string]struct{}{
	".pdf":  {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// Config holds watcher configuration.
type Config struct {
	Roots       []string      // directories to watch, recursive
	InitialScan bool          // emit files already present at startup
	Debounce    time.Duration // coalesce rapid create/write bursts
}

// Watch watches the configured roots recursively and emits invoice file
// paths as they appear. The channel closes when ctx is done.
// Parameters:
//   - ctx: context bounding the watch loop.
//   - cfg: watcher configuration.
//   - log: logger; nil uses the default.
//
// Returns:
//   - <-chan string: emitted file paths.
//   - error: non-nil if the watcher cannot start.
func Watch(ctx context.Context, cfg Config, log *logger.Logger) (<-chan string, error) {
	if len(cfg.Roots) == 0 {
		return nil, errors.New("no watch roots configured")
	}
	if log == nil {
		log = logger.GetDefault()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	out := make(chan string, 64)

	// Register roots recursively, optionally emitting existing files.
	addRoot := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && isInvoice(path) {
				select {
				case out <- path:
				default:
				}
			}
			return nil
		})
	}
	for _, root := range cfg.Roots {
		if err := addRoot(root); err != nil {
			_ = w.Close()
			return nil, err
		}
	}

	go func() {
		defer close(out)
		defer w.Close()

		pending := map[string]struct{}{}
		var timer *time.Timer
		var fire <-chan time.Time

		flush := func() {
			for p := range pending {
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
				delete(pending, p)
			}
			fire = nil
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-fire:
				flush()
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&fsnotify.Create != 0 && isDir(ev.Name) {
					// New directories join the watch set.
					if err := w.Add(ev.Name); err != nil {
						log.WithError(err).Warn("Failed to watch new directory")
					}
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isInvoice(ev.Name) {
					continue
				}
				pending[ev.Name] = struct{}{}
				if timer == nil {
					timer = time.NewTimer(cfg.Debounce)
				} else {
					timer.Reset(cfg.Debounce)
				}
				fire = timer.C
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("Watcher error")
			}
		}
	}()

	return out, nil
}

func isInvoice(path string) bool {
	_, ok := invoiceExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
