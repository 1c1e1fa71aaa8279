package report

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"bandwidth-probe/internal/models"
)

const (
	// Day is the length of one reporting period.
	Day = 24 * time.Hour

	// RecentLimit is how many of the newest samples a report carries.
	RecentLimit = 10
)

// Reporter computes dashboard data for a day offset. It holds no state
// between calls; every Build queries the store afresh.
type Reporter struct {
	open  func(ctx context.Context) (models.Store, error)
	clock clock.Clock
	loc   *time.Location
}

// Option customizes a Reporter
type Option func(*Reporter)

// WithClock sets the clock used for "now".
func WithClock(c clock.Clock) Option { return func(r *Reporter) { r.clock = c } }

// WithLocation sets the zone used for the hour-of-day profile.
func WithLocation(loc *time.Location) Option { return func(r *Reporter) { r.loc = loc } }

// New creates a Reporter over an open store.
func New(store models.Store, opts ...Option) *Reporter {
	return NewLazy(func(context.Context) (models.Store, error) { return store, nil }, opts...)
}

// NewLazy creates a Reporter that obtains the store on every Build, so a
// store created after startup is picked up.
func NewLazy(open func(ctx context.Context) (models.Store, error), opts ...Option) *Reporter {
	r := &Reporter{open: open, clock: clock.New(), loc: time.Local}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ClampOffset limits k to [0, max].
func ClampOffset(k, max int) int {
	if k < 0 {
		return 0
	}
	if k > max {
		return max
	}
	return k
}

// MaxOffset is the number of whole days between earliest and now.
func MaxOffset(earliest, now time.Time) int {
	if earliest.IsZero() || !now.After(earliest) {
		return 0
	}
	return int(now.Sub(earliest) / Day)
}

// Build computes the period window (now-(k+1)d, now-kd] and the overall
// window (-inf, now] with their distributions. k is clamped to the valid
// range instead of being rejected.
func (r *Reporter) Build(ctx context.Context, k int) (*models.Report, error) {
	store, err := r.open(ctx)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	earliest, ok, err := store.QueryEarliestTimestamp(ctx)
	if err != nil {
		return nil, err
	}

	rep := &models.Report{GeneratedAt: now}
	if ok {
		rep.MaxOffset = MaxOffset(earliest, now)
	}
	rep.Offset = ClampOffset(k, rep.MaxOffset)

	periodEnd := now.Add(-time.Duration(rep.Offset) * Day)
	periodStart := periodEnd.Add(-Day)

	if rep.Period, err = r.window(ctx, store, periodStart, periodEnd); err != nil {
		return nil, errors.Wrap(err, "period window")
	}
	if rep.Overall, err = r.window(ctx, store, time.Time{}, now); err != nil {
		return nil, errors.Wrap(err, "overall window")
	}

	if rep.PeriodDistribution, err = store.QueryDistribution(ctx, periodStart, periodEnd); err != nil {
		return nil, err
	}
	if rep.OverallDistribution, err = store.QueryDistribution(ctx, time.Time{}, now); err != nil {
		return nil, err
	}
	rep.Hourly = HourlyProfile(rep.OverallDistribution, r.loc)

	if rep.Recent, err = store.QueryRecent(ctx, RecentLimit); err != nil {
		return nil, err
	}
	if len(rep.Recent) > 0 {
		last := rep.Recent[0]
		rep.LastSample = &last
	}

	return rep, nil
}

func (r *Reporter) window(ctx context.Context, store models.Store, start, end time.Time) (models.AggregateWindow, error) {
	w, err := store.QueryAggregate(ctx, start, end)
	if err != nil {
		return w, err
	}

	failures, total, err := store.QueryErrorCounts(ctx, start, end)
	if err != nil {
		return w, err
	}
	w.Failures, w.Total = failures, total
	return w, nil
}

// HourlyProfile averages throughput by hour of day in loc. It always returns
// 24 entries; hours without samples are zero.
func HourlyProfile(points []models.DistributionPoint, loc *time.Location) []models.HourlyPoint {
	if loc == nil {
		loc = time.Local
	}

	hourly := make([]models.HourlyPoint, 24)
	for h := range hourly {
		hourly[h].Hour = h
	}
	for _, p := range points {
		h := p.Timestamp.In(loc).Hour()
		hourly[h].AvgDownload += p.Download
		hourly[h].AvgUpload += p.Upload
		hourly[h].Samples++
	}
	for h := range hourly {
		if n := hourly[h].Samples; n > 0 {
			hourly[h].AvgDownload /= float64(n)
			hourly[h].AvgUpload /= float64(n)
		}
	}
	return hourly
}
