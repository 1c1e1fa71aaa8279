package monitor

import (
	"context"

	"github.com/pkg/errors"
)

// collectOnce runs the probe and saves its outcome. Probe failures are
// recorded as error samples and are not errors here; a failed write or a
// panic is.
func (m *Monitor) collectOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic during collection: %v", r)
		}
	}()

	start := m.clock.Now()
	result := m.prober.Measure(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	now := m.clock.Now()
	sample := result.Sample(now)
	if err := m.store.Append(ctx, sample); err != nil {
		return errors.Wrap(err, "failed to save sample")
	}
	m.metrics.Observe(sample, now.Sub(start))

	if !sample.Success() {
		m.log.Error().Str("error", sample.Error).Msg("speedtest error")
		return nil
	}
	m.log.Info().
		Float64("download_mbps", sample.Download).
		Float64("upload_mbps", sample.Upload).
		Float64("ping_ms", sample.Ping).
		Msg("speedtest completed")
	return nil
}
