package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"bandwidth-probe/internal/config"
	"bandwidth-probe/internal/database"
	"bandwidth-probe/internal/metrics"
	"bandwidth-probe/internal/models"
	"bandwidth-probe/internal/monitor"
	"bandwidth-probe/internal/probe"
	"bandwidth-probe/internal/report"
	"bandwidth-probe/internal/web"
)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func runCollect(ctx context.Context, cfg config.Config, once bool) (err error) {
	ctx, stop := signalContext(ctx)
	defer stop()

	db, err := database.New(cfg.Database.Path, cfg.Database.BusyTimeout)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer func() { err = closeAll(err, db) }()

	if err := db.InitSchema(ctx); err != nil {
		return errors.Wrap(err, "failed to initialize database schema")
	}

	prober, err := probe.New(cfg.Probe)
	if err != nil {
		return err
	}

	reg := newRegistry()
	mon, err := monitor.New(cfg.Collector, db, prober, monitor.WithMetrics(metrics.NewCollector(reg)))
	if err != nil {
		return err
	}

	if once {
		return mon.RunOnce(ctx)
	}

	if addr := cfg.Collector.MetricsListen; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, reg); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	log.Info().
		Str("database", cfg.Database.Path).
		Str("driver", cfg.Probe.Driver).
		Msg("collector starting")
	return mon.Run(ctx)
}

func runServe(ctx context.Context, cfg config.Config) (err error) {
	ctx, stop := signalContext(ctx)
	defer stop()

	opener := database.NewOpener(cfg.Database.Path, cfg.Database.BusyTimeout)
	waitWatch := watchStore(ctx, opener)
	defer func() {
		stop()
		waitWatch()
		err = closeAll(err, opener)
	}()

	source := web.StoreSource(func(ctx context.Context) (models.Store, error) {
		db, err := opener.Get(ctx)
		if err != nil {
			return nil, err
		}
		return db, nil
	})
	reporter := report.NewLazy(source)

	reg := newRegistry()
	reg.MustRegister(metrics.NewStoreCollector(reporter))

	srv, err := web.New(cfg.Web, source, reporter, reg)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// watchStore opens the store in the background as soon as it appears. The
// returned func blocks until the watcher has exited, which happens once ctx
// is done.
func watchStore(ctx context.Context, opener *database.Opener) func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := opener.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("store watcher stopped")
		}
	}()
	return func() { <-done }
}

func runReport(ctx context.Context, cfg config.Config, w io.Writer, out string, offset int) (err error) {
	opener := database.NewOpener(cfg.Database.Path, cfg.Database.BusyTimeout)
	defer func() { err = closeAll(err, opener) }()

	db, err := opener.Get(ctx)
	if err != nil {
		return err
	}

	dir, err := report.NewGenerator(report.New(db)).GenerateReport(ctx, out, offset)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, dir)
	return err
}

func runCheck(ctx context.Context, cfg config.Config, w io.Writer) error {
	ctx, stop := signalContext(ctx)
	defer stop()

	prober, err := probe.New(cfg.Probe)
	if err != nil {
		return err
	}

	log.Info().Str("driver", cfg.Probe.Driver).Msg("running speedtest")
	m, took, err := probe.Check(ctx, prober)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "download %.2f Mbps (%s/s), upload %.2f Mbps, ping %.1f ms, took %s\n",
		m.DownloadMbps, humanize.Bytes(uint64(m.DownloadMbps*1e6/8)), m.UploadMbps, m.PingMs,
		took.Round(100*time.Millisecond))
	return err
}
