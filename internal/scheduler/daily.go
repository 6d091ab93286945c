// Package scheduler runs the mailing job once per day at a fixed local time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(v string) (TimeOfDay, error) {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day format: %q", v)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour: %q", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute: %q", parts[1])
	}

	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

type Clock interface {
	Now() time.Time
}

// Daily fires a job every day at the configured wall-clock time in the
// clock's location. Register is one-shot: the first call starts the loop,
// repeated calls are no-ops.
type Daily struct {
	at    TimeOfDay
	job   func(ctx context.Context) error
	clock Clock

	registered atomic.Bool
	log        *slog.Logger
}

func NewDaily(at TimeOfDay, clock Clock, job func(ctx context.Context) error, log *slog.Logger) *Daily {
	return &Daily{
		at:    at,
		job:   job,
		clock: clock,
		log:   log.With("component", "scheduler"),
	}
}

// Register starts the daily loop and reports whether this call was the one
// that registered it.
func (d *Daily) Register(ctx context.Context) bool {
	if !d.registered.CompareAndSwap(false, true) {
		return false
	}

	go d.run(ctx)
	return true
}

// Registered reports whether the daily loop has been started.
func (d *Daily) Registered() bool {
	return d.registered.Load()
}

func (d *Daily) run(ctx context.Context) {
	defer func() {
		d.log.InfoContext(ctx, "Stopped daily mailing schedule")
	}()

	d.log.InfoContext(ctx, "Starting daily mailing schedule", "at", d.at.String())
	for {
		now := d.clock.Now()
		next := nextRun(now, d.at)

		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			err := d.job(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				if errors.Is(err, context.DeadlineExceeded) {
					d.log.WarnContext(ctx, "Error running mailing cycle", "error", err)
					continue
				}

				d.log.ErrorContext(ctx, "Error running mailing cycle", "error", err)
			}
		}
	}
}

// nextRun returns the next occurrence of t strictly after now, in now's location.
func nextRun(now time.Time, t TimeOfDay) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
