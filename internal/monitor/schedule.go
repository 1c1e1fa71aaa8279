package monitor

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"bandwidth-probe/internal/config"
)

// Schedule yields the next wake time strictly after the given time.
// cron.Schedule satisfies it.
type Schedule interface {
	Next(time.Time) time.Time
}

// BoundarySchedule wakes on multiples of Interval within the wall-clock hour,
// e.g. :00, :15, :30 and :45 for 15 minutes.
type BoundarySchedule struct {
	Interval time.Duration
}

// Next returns the smallest boundary strictly after now. When Interval does
// not divide the hour, the last slot of the hour is followed by the next :00.
func (s BoundarySchedule) Next(now time.Time) time.Time {
	elapsed := time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second +
		time.Duration(now.Nanosecond())
	hourStart := now.Add(-elapsed)

	next := hourStart.Add((elapsed/s.Interval + 1) * s.Interval)
	if end := hourStart.Add(time.Hour); next.After(end) {
		next = end
	}
	return next
}

func (s BoundarySchedule) String() string {
	return fmt.Sprintf("every %s on the clock", s.Interval)
}

// WaitUntilNextBoundary returns how long to sleep from now until the next
// interval boundary. It is never zero.
func WaitUntilNextBoundary(interval time.Duration, now time.Time) time.Duration {
	return BoundarySchedule{Interval: interval}.Next(now).Sub(now)
}

type cronSchedule struct {
	cron.Schedule
	expr string
}

func (s cronSchedule) String() string {
	return "cron " + s.expr
}

// NewSchedule builds the collector schedule: a cron expression when one is
// configured, aligned interval boundaries otherwise.
func NewSchedule(cfg config.CollectorConfig) (Schedule, error) {
	if cfg.Schedule != "" {
		s, err := cron.ParseStandard(cfg.Schedule)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid cron schedule %q", cfg.Schedule)
		}
		return cronSchedule{Schedule: s, expr: cfg.Schedule}, nil
	}
	if cfg.Interval <= 0 || cfg.Interval > time.Hour {
		return nil, errors.Errorf("interval %s out of range", cfg.Interval)
	}
	return BoundarySchedule{Interval: cfg.Interval}, nil
}
