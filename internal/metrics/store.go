package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"bandwidth-probe/internal/models"
)

// Summarizer builds a report for a day offset.
type Summarizer interface {
	Build(ctx context.Context, offset int) (*models.Report, error)
}

// StoreCollector reads the last 24h window from the store at scrape time.
type StoreCollector struct {
	summary Summarizer
	timeout time.Duration

	avgDownload *prometheus.Desc
	avgUpload   *prometheus.Desc
	samples     *prometheus.Desc
	failures    *prometheus.Desc
	total       *prometheus.Desc
	up          *prometheus.Desc
}

var _ prometheus.Collector = (*StoreCollector)(nil)

// NewStoreCollector creates a scrape-time collector over s.
func NewStoreCollector(s Summarizer) *StoreCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "day", name), help, nil, nil)
	}
	return &StoreCollector{
		summary:     s,
		timeout:     5 * time.Second,
		avgDownload: desc("avg_download_mbps", "Average download over the last 24 hours."),
		avgUpload:   desc("avg_upload_mbps", "Average upload over the last 24 hours."),
		samples:     desc("samples", "Successful samples in the last 24 hours."),
		failures:    desc("failures", "Failed samples in the last 24 hours."),
		total:       desc("attempts", "All samples in the last 24 hours."),
		up:          prometheus.NewDesc(prometheus.BuildFQName(namespace, "store", "up"), "Whether the sample store could be read.", nil, nil),
	}
}

func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.avgDownload
	ch <- c.avgUpload
	ch <- c.samples
	ch <- c.failures
	ch <- c.total
	ch <- c.up
}

func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	rep, err := c.summary.Build(ctx, 0)
	if err != nil {
		log.Debug().Err(err).Msg("store metrics unavailable")
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}

	p := rep.Period
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(c.avgDownload, prometheus.GaugeValue, p.Download.Avg)
	ch <- prometheus.MustNewConstMetric(c.avgUpload, prometheus.GaugeValue, p.Upload.Avg)
	ch <- prometheus.MustNewConstMetric(c.samples, prometheus.GaugeValue, float64(p.Samples))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.GaugeValue, float64(p.Failures))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(p.Total))
}
