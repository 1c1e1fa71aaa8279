package web

import (
	"bytes"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"bandwidth-probe/internal/database"
	"bandwidth-probe/internal/models"
	"bandwidth-probe/internal/report"
)

const (
	storeUnavailableMessage = "Database not found. Please start the collector first."

	defaultSampleLimit = 10
	maxSampleLimit     = 1000
)

// parseOffset reads ?offset. Missing means 0; out-of-range values are
// clamped by the reporter.
func parseOffset(c echo.Context) (int, error) {
	var k int
	err := echo.QueryParamsBinder(c).Int("offset", &k).BindError()
	return k, err
}

// storeError maps store failures onto HTTP errors
func storeError(err error) error {
	if errors.Is(err, database.ErrStoreUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, storeUnavailableMessage)
	}
	log.Error().Err(err).Msg("report query failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "failed to query samples")
}

// handleDashboard handles / requests
func (s *Server) handleDashboard(c echo.Context) error {
	k, err := parseOffset(c)
	if err != nil {
		return err
	}

	rep, err := s.reporter.Build(c.Request().Context(), k)
	if errors.Is(err, database.ErrStoreUnavailable) {
		return c.String(http.StatusServiceUnavailable, storeUnavailableMessage)
	}
	if err != nil {
		return storeError(err)
	}

	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, "dashboard.html", newDashboardView(rep)); err != nil {
		return errors.Wrap(err, "render dashboard")
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

// handleSummary handles /api/summary requests
func (s *Server) handleSummary(c echo.Context) error {
	k, err := parseOffset(c)
	if err != nil {
		return err
	}

	rep, err := s.reporter.Build(c.Request().Context(), k)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, rep)
}

// handleSamples handles /api/samples requests
func (s *Server) handleSamples(c echo.Context) error {
	limit := defaultSampleLimit
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return err
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxSampleLimit {
		limit = maxSampleLimit
	}

	ctx := c.Request().Context()
	store, err := s.source(ctx)
	if err != nil {
		return storeError(err)
	}
	samples, err := store.QueryRecent(ctx, limit)
	if err != nil {
		return storeError(err)
	}
	if samples == nil {
		samples = []models.SpeedSample{}
	}
	return c.JSON(http.StatusOK, samples)
}

// handleChart handles /charts/:name requests
func (s *Server) handleChart(c echo.Context) error {
	name := c.Param("name")
	if !slices.Contains(report.ChartNames, name) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown chart")
	}

	k, err := parseOffset(c)
	if err != nil {
		return err
	}

	rep, err := s.reporter.Build(c.Request().Context(), k)
	if err != nil {
		return storeError(err)
	}

	var buf bytes.Buffer
	err = report.RenderChart(&buf, name, rep)
	if errors.Is(err, report.ErrNoData) {
		return echo.NewHTTPError(http.StatusNotFound, "not enough data for chart")
	}
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// handleHealth handles /health requests
func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}
