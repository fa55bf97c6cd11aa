// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/datakettle/snapsvc/internal/log"
)

// App owns the long-lived background subsystems and delegates server
// management to Manager.
type App struct {
	manager   Manager
	scheduler *Scheduler // optional
	watcher   *Watcher   // optional
	runNow    RunFunc    // optional, SIGHUP trigger

	mu        sync.Mutex
	lastRun   time.Time
	lastError string
}

// NewApp wires the daemon's background subsystems.
func NewApp(manager Manager, scheduler *Scheduler, watcher *Watcher, runNow RunFunc) *App {
	return &App{
		manager:   manager,
		scheduler: scheduler,
		watcher:   watcher,
		runNow:    runNow,
	}
}

// RecordRun stores the outcome of a writer pass for health reporting.
func (a *App) RecordRun(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastRun = time.Now()
	if err != nil {
		a.lastError = err.Error()
	} else {
		a.lastError = ""
	}
}

// LastRun reports the time and error of the most recent writer pass.
func (a *App) LastRun() (time.Time, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastRun, a.lastError
}

// Run starts all subsystems and blocks until ctx is cancelled or a
// fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	logger := log.WithComponentFromContext(ctx, "app")

	g, ctx := errgroup.WithContext(ctx)

	if a.scheduler != nil {
		g.Go(func() error {
			if err := a.scheduler.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		})
	}

	// Watcher is best-effort: a broken watch must not take the API down.
	if a.watcher != nil {
		g.Go(func() error {
			if err := a.watcher.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn().Err(err).Str(log.FieldEvent, "watcher.failed").Msg("storage watcher stopped")
			}
			return nil
		})
	}

	// SIGHUP triggers an immediate snapshot run.
	if a.runNow != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, syscall.SIGHUP)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					logger.Info().
						Str(log.FieldEvent, "run.signal").
						Msg("received SIGHUP, starting snapshot run")
					if err := a.runNow(ctx); err != nil {
						logger.Warn().Err(err).Msg("signal-triggered run failed")
					}
				}
			}
		})
	}

	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}
