package web

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	glog "github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/ziflex/lecho/v3"
	"golang.org/x/time/rate"

	"bandwidth-probe/internal/config"
	"bandwidth-probe/internal/models"
	"bandwidth-probe/internal/report"
)

// StoreSource returns the sample store, or database.ErrStoreUnavailable
// while the collector has not created it yet.
type StoreSource func(ctx context.Context) (models.Store, error)

// Server handles web requests
type Server struct {
	echo     *echo.Echo
	listen   string
	source   StoreSource
	reporter *report.Reporter
	tmpl     *template.Template
}

// New creates a new web server. gatherer may be nil to disable /metrics.
func New(cfg config.WebConfig, source StoreSource, reporter *report.Reporter, gatherer prometheus.Gatherer) (*Server, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse templates")
	}

	s := &Server{
		echo:     echo.New(),
		listen:   cfg.Listen,
		source:   source,
		reporter: reporter,
		tmpl:     tmpl,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	logger := lecho.From(log.Logger,
		lecho.WithLevel(glog.INFO),
		lecho.WithField("component", "web"),
		lecho.WithTimestamp(),
	)
	s.echo.Logger = logger

	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	s.echo.Use(lecho.Middleware(lecho.Config{Logger: logger}))
	s.echo.Use(middleware.Recover())
	if cfg.RateLimit > 0 {
		s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: func(c echo.Context) bool {
				p := c.Path()
				return p == "/health" || p == "/metrics"
			},
			Store: middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit)),
		}))
	}

	s.echo.GET("/", s.handleDashboard)
	s.echo.GET("/api/summary", s.handleSummary)
	s.echo.GET("/api/samples", s.handleSamples)
	s.echo.GET("/charts/:name", s.handleChart)
	s.echo.GET("/health", s.handleHealth)
	if gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.listen).Msg("web server starting")
		errCh <- s.echo.Start(s.listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "web server failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}
