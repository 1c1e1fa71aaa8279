package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Generator writes a static report: the dashboard charts plus a text summary.
type Generator struct {
	reporter *Reporter
}

// NewGenerator creates a new report generator
func NewGenerator(r *Reporter) *Generator {
	return &Generator{reporter: r}
}

// GenerateReport writes a timestamped report directory under outputDir for
// day offset k and returns its path. A chart that cannot be drawn is logged
// and skipped.
func (g *Generator) GenerateReport(ctx context.Context, outputDir string, k int) (string, error) {
	rep, err := g.reporter.Build(ctx, k)
	if err != nil {
		return "", errors.Wrap(err, "failed to build report")
	}

	reportDir := filepath.Join(outputDir, fmt.Sprintf("bandwidth_report_%s", rep.GeneratedAt.Format("2006-01-02_15-04-05")))
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create report directory")
	}

	logger := log.With().Str("component", "report").Str("dir", reportDir).Logger()
	for _, name := range ChartNames {
		err := writeFile(filepath.Join(reportDir, name), func(w io.Writer) error {
			return RenderChart(w, name, rep)
		})
		switch {
		case errors.Is(err, ErrNoData):
			logger.Warn().Str("chart", name).Msg("not enough data, chart skipped")
			_ = os.Remove(filepath.Join(reportDir, name))
		case err != nil:
			logger.Error().Err(err).Str("chart", name).Msg("failed to generate chart")
		}
	}

	err = writeFile(filepath.Join(reportDir, "summary.txt"), func(w io.Writer) error {
		return WriteSummary(w, rep)
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to write summary")
	}

	logger.Info().Int("offset", rep.Offset).Msg("report generated")
	return reportDir, nil
}
