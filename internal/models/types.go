package models

import (
	"context"
	"time"
)

// Store defines the append-only persistence and query surface for samples.
// A zero start time means the range is unbounded below.
type Store interface {
	Append(ctx context.Context, sample SpeedSample) error
	QueryAggregate(ctx context.Context, start, end time.Time) (AggregateWindow, error)
	QueryErrorCounts(ctx context.Context, start, end time.Time) (failures, total int, err error)
	QueryDistribution(ctx context.Context, start, end time.Time) ([]DistributionPoint, error)
	QueryEarliestTimestamp(ctx context.Context) (time.Time, bool, error)
	QueryRecent(ctx context.Context, limit int) ([]SpeedSample, error)
}

// Prober runs one bandwidth measurement. Failures are reported inside the
// Measurement, never as an error.
type Prober interface {
	Measure(ctx context.Context) Measurement
}
