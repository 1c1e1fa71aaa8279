// Package metrics exposes collector and store figures to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"bandwidth-probe/internal/models"
)

const namespace = "bandwidth_probe"

// Collector records the outcome of every collection attempt. A nil
// *Collector is valid and records nothing.
type Collector struct {
	attempts *prometheus.CounterVec
	duration prometheus.Histogram
	download prometheus.Gauge
	upload   prometheus.Gauge
	ping     prometheus.Gauge
	lastRun  prometheus.Gauge
}

// NewCollector creates the collector metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Speed test attempts by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Wall time of a speed test attempt.",
			Buckets:   []float64{5, 10, 20, 30, 45, 60, 90, 120, 180},
		}),
		download: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_download_mbps",
			Help:      "Download throughput of the last successful attempt.",
		}),
		upload: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_upload_mbps",
			Help:      "Upload throughput of the last successful attempt.",
		}),
		ping: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_ping_ms",
			Help:      "Latency of the last successful attempt.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_attempt_timestamp_seconds",
			Help:      "Unix time of the last recorded attempt.",
		}),
	}
	reg.MustRegister(c.attempts, c.duration, c.download, c.upload, c.ping, c.lastRun)
	return c
}

// Observe records one saved sample and how long the attempt took.
func (c *Collector) Observe(sample models.SpeedSample, took time.Duration) {
	if c == nil {
		return
	}
	c.duration.Observe(took.Seconds())
	c.lastRun.Set(float64(sample.Timestamp.Unix()))
	if !sample.Success() {
		c.attempts.WithLabelValues("failure").Inc()
		return
	}
	c.attempts.WithLabelValues("success").Inc()
	c.download.Set(sample.Download)
	c.upload.Set(sample.Upload)
	c.ping.Set(sample.Ping)
}

// Serve exposes g on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "metrics server failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
