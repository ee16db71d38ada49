// Package watch monitors the input deck and scan path and re-runs the
// simulation when either changes. Intended for parameter tuning: edit
// the deck, save, and the melt pool statistics refresh.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/meltflow/meltflow/internal/log"
	"github.com/meltflow/meltflow/pkg/errors"
)

// Watcher monitors files for changes and triggers re-runs.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu    sync.RWMutex
	files map[string]struct{}

	// OnChange is invoked with the changed path after the debounce
	// window. A returned error is logged; watching continues.
	OnChange func(path string) error
}

// NewWatcher creates a file watcher with a half-second debounce. Editors
// fire several events per save; the debounce folds them into one re-run.
func NewWatcher() (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeFileNotFound, "cannot create file watcher")
	}
	return &Watcher{
		watcher:  fsWatcher,
		debounce: 500 * time.Millisecond,
		files:    make(map[string]struct{}),
	}, nil
}

// Watch registers a file. The containing directory is watched; editors
// that replace files on save would otherwise drop the watch.
func (w *Watcher) Watch(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, errors.CodeFileNotFound, "cannot resolve path").
			WithContext("path", path)
	}
	if _, err := os.Stat(absPath); err != nil {
		return errors.FileNotFound(absPath)
	}

	w.mu.Lock()
	w.files[absPath] = struct{}{}
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(absPath)); err != nil {
		return errors.Wrap(err, errors.CodeFileNotFound, "cannot watch directory").
			WithContext("dir", filepath.Dir(absPath))
	}
	return nil
}

// watched reports whether a path is one of the registered files.
func (w *Watcher) watched(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.files[abs]
	return ok
}

// Run blocks until the context is cancelled, invoking OnChange for each
// debounced modification of a registered file.
func (w *Watcher) Run(ctx context.Context) error {
	timers := make(map[string]*time.Timer)
	var timerMu sync.Mutex

	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !w.watched(event.Name) {
				continue
			}

			path := event.Name
			timerMu.Lock()
			if timer, ok := timers[path]; ok {
				timer.Stop()
			}
			timers[path] = time.AfterFunc(w.debounce, func() {
				log.Infow("input changed", "path", path)
				if w.OnChange != nil {
					if err := w.OnChange(path); err != nil {
						log.Errorw("re-run failed", "path", path, "error", err)
					}
				}
			})
			timerMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnw("watcher error", "error", err)
		}
	}
}
