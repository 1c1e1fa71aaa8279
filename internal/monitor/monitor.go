package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"bandwidth-probe/internal/config"
	"bandwidth-probe/internal/metrics"
	"bandwidth-probe/internal/models"
)

// SampleWriter persists samples
type SampleWriter interface {
	Append(ctx context.Context, sample models.SpeedSample) error
}

// Monitor runs the collection loop: measure, save, sleep until the next
// boundary. Attempts never overlap.
type Monitor struct {
	store    SampleWriter
	prober   models.Prober
	schedule Schedule
	backoff  time.Duration
	clock    clock.Clock
	metrics  *metrics.Collector
	notifier Notifier
	log      zerolog.Logger
}

// Option customizes a Monitor
type Option func(*Monitor)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option { return func(m *Monitor) { m.clock = c } }

// WithMetrics records every attempt in c.
func WithMetrics(c *metrics.Collector) Option { return func(m *Monitor) { m.metrics = c } }

// WithNotifier replaces the systemd notifier.
func WithNotifier(n Notifier) Option { return func(m *Monitor) { m.notifier = n } }

// New creates a new Monitor
func New(cfg config.CollectorConfig, store SampleWriter, prober models.Prober, opts ...Option) (*Monitor, error) {
	schedule, err := NewSchedule(cfg)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		store:    store,
		prober:   prober,
		schedule: schedule,
		backoff:  cfg.Backoff,
		clock:    clock.New(),
		notifier: systemdNotifier{},
		log:      log.With().Str("component", "collector").Logger(),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Run measures immediately and then once per schedule slot until ctx is
// done. Errors inside a cycle are logged and followed by the backoff delay;
// Run itself only returns when ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info().Str("schedule", fmt.Sprint(m.schedule)).Dur("backoff", m.backoff).Msg("collector started")
	m.notifier.Ready()

	var wg sync.WaitGroup
	if interval, ok := m.notifier.WatchdogInterval(); ok {
		wg.Add(1)
		go m.watchdogWorker(ctx, &wg, interval)
	}

	defer func() {
		m.notifier.Stopping()
		wg.Wait()
		m.log.Info().Msg("collector stopped")
	}()

	for {
		wait := m.cycle(ctx)
		if ctx.Err() != nil {
			return nil
		}

		m.log.Debug().Dur("wait", wait).Time("next", m.clock.Now().Add(wait)).Msg("sleeping until next run")
		timer := m.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce performs a single measure-and-save cycle. An attempt cut short by
// ctx is not an error.
func (m *Monitor) RunOnce(ctx context.Context) error {
	if err := m.collectOnce(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// cycle runs one attempt and returns how long to sleep afterwards.
func (m *Monitor) cycle(ctx context.Context) time.Duration {
	if err := m.collectOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return 0
		}
		m.log.Error().Err(err).Dur("backoff", m.backoff).Msg("unexpected collection failure")
		return m.backoff
	}

	now := m.clock.Now()
	return m.schedule.Next(now).Sub(now)
}
