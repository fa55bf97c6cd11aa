// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/datakettle/snapsvc/internal/log"
)

const watchDebounce = 2 * time.Second

// Watcher observes a local snapshot root and triggers a catalog
// reindex when snapshots change on disk, for example when a writer
// on another host publishes into a shared mount. Events are
// debounced so one run of writes causes one reindex.
type Watcher struct {
	root     string
	onChange func(ctx context.Context) error
	debounce time.Duration
}

// NewWatcher builds a watcher over root. onChange is called after
// activity settles.
func NewWatcher(root string, onChange func(ctx context.Context) error) *Watcher {
	return &Watcher{root: root, onChange: onChange, debounce: watchDebounce}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	logger := log.WithComponentFromContext(ctx, "watcher")

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}

	logger.Info().Str(log.FieldPath, w.root).Msg("watching snapshot root")

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !interesting(event) {
				continue
			}
			// New dataset directories need watching too.
			if event.Op.Has(fsnotify.Create) {
				_ = fw.Add(event.Name)
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watch error")

		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.onChange(ctx); err != nil {
				logger.Warn().Err(err).Msg("reindex after change failed")
			}
		}
	}
}

// interesting filters out events that cannot change what is
// published. Only success markers and whole-directory operations
// matter; temp files written before the atomic rename are noise.
func interesting(e fsnotify.Event) bool {
	if !e.Op.Has(fsnotify.Create) && !e.Op.Has(fsnotify.Rename) && !e.Op.Has(fsnotify.Remove) {
		return false
	}
	return !strings.Contains(e.Name, ".tmp")
}
