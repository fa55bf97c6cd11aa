// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/datakettle/snapsvc/internal/log"
)

// RunFunc executes one snapshot pass over all datasets.
type RunFunc func(ctx context.Context) error

// Scheduler fires a snapshot run once a day at a fixed UTC time.
type Scheduler struct {
	at  timeOfDay
	run RunFunc
	now func() time.Time
}

type timeOfDay struct {
	hour   int
	minute int
}

// NewScheduler parses "HH:MM" and returns a scheduler that invokes
// run at that UTC time every day.
func NewScheduler(at string, run RunFunc) (*Scheduler, error) {
	tod, err := parseTimeOfDay(at)
	if err != nil {
		return nil, err
	}
	return &Scheduler{at: tod, run: run, now: time.Now}, nil
}

func parseTimeOfDay(s string) (timeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return timeOfDay{}, fmt.Errorf("schedule %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return timeOfDay{}, fmt.Errorf("schedule %q: bad hour", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return timeOfDay{}, fmt.Errorf("schedule %q: bad minute", s)
	}
	return timeOfDay{hour: hour, minute: minute}, nil
}

// next returns the next occurrence of the scheduled time strictly
// after now.
func (s *Scheduler) next(now time.Time) time.Time {
	now = now.UTC()
	candidate := time.Date(now.Year(), now.Month(), now.Day(), s.at.hour, s.at.minute, 0, 0, time.UTC)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// Run blocks, firing the run function on schedule, until ctx is done.
// A failed run is logged and the scheduler keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := log.WithComponentFromContext(ctx, "scheduler")

	for {
		now := s.now()
		wait := s.next(now).Sub(now)
		logger.Info().
			Str(log.FieldEvent, "schedule.sleep").
			Dur("wait", wait).
			Msg("waiting for next scheduled run")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := s.run(ctx); err != nil {
			logger.Error().
				Err(err).
				Str(log.FieldEvent, "schedule.run_failed").
				Msg("scheduled run failed")
		}
	}
}
