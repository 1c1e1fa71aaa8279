// Package probe runs bandwidth measurements, either by shelling out to a
// speedtest CLI or in-process with speedtest-go.
package probe

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"bandwidth-probe/internal/config"
	"bandwidth-probe/internal/models"
)

// New builds the prober selected by cfg.Driver
func New(cfg config.ProbeConfig) (models.Prober, error) {
	switch cfg.Driver {
	case config.DriverExec, "":
		return NewExec(cfg), nil
	case config.DriverBuiltin:
		return NewBuiltin(cfg), nil
	default:
		return nil, errors.Errorf("unknown probe driver %q", cfg.Driver)
	}
}

// Check runs a single measurement and reports a failure as an error. It is
// used to verify the probe works before starting the collector.
func Check(ctx context.Context, p models.Prober) (models.Measurement, time.Duration, error) {
	start := time.Now()
	m := p.Measure(ctx)
	took := time.Since(start)
	if !m.OK() {
		return m, took, errors.Errorf("speedtest check failed: %s", m.Failure)
	}
	return m, took, nil
}
