package probe

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	st "github.com/showwin/speedtest-go/speedtest"

	"bandwidth-probe/internal/config"
	"bandwidth-probe/internal/models"
)

// Builtin measures bandwidth in-process against speedtest.net servers.
type Builtin struct {
	ServerCount int
	Timeout     time.Duration

	log zerolog.Logger
}

// NewBuiltin creates a Builtin prober from configuration
func NewBuiltin(cfg config.ProbeConfig) *Builtin {
	return &Builtin{
		ServerCount: cfg.ServerCount,
		Timeout:     cfg.Timeout,
		log:         log.With().Str("component", "probe").Str("driver", config.DriverBuiltin).Logger(),
	}
}

// Measure runs one test against the lowest-latency nearby server.
func (p *Builtin) Measure(ctx context.Context) models.Measurement {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	m, err := p.run(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.Failed("speedtest timed out after " + p.Timeout.String())
		}
		return models.Failed(err.Error())
	}
	return m
}

func (p *Builtin) run(ctx context.Context) (models.Measurement, error) {
	client := st.New()

	user, err := client.FetchUserInfoContext(ctx)
	if err != nil {
		return models.Measurement{}, errors.Wrap(err, "fetch user info")
	}

	servers, err := client.FetchServerListContext(ctx)
	if err != nil {
		return models.Measurement{}, errors.Wrap(err, "fetch server list")
	}
	if a := servers.Available(); a != nil {
		servers = *a
	}
	if len(servers) == 0 {
		return models.Measurement{}, errors.New("no servers available")
	}

	sort.Slice(servers, func(i, j int) bool { return servers[i].Distance < servers[j].Distance })
	n := p.ServerCount
	if n <= 0 || n > len(servers) {
		n = len(servers)
	}

	var pinged []*st.Server
	for _, s := range servers[:n] {
		if err := s.PingTestContext(ctx, nil); err != nil || s.Latency <= 0 {
			continue
		}
		pinged = append(pinged, s)
	}
	if len(pinged) == 0 {
		return models.Measurement{}, errors.New("all latency tests failed")
	}
	sort.Slice(pinged, func(i, j int) bool { return pinged[i].Latency < pinged[j].Latency })
	best := pinged[0]

	if err := best.DownloadTestContext(ctx); err != nil {
		return models.Measurement{}, errors.Wrap(err, "download test")
	}
	if err := best.UploadTestContext(ctx); err != nil {
		return models.Measurement{}, errors.Wrap(err, "upload test")
	}

	p.log.Debug().
		Str("isp", user.Isp).
		Str("server", best.Sponsor).
		Str("country", best.Country).
		Msg("speedtest server selected")

	return measurementFrom(best)
}

// measurementFrom converts a tested server into a Measurement. speedtest-go
// reports -1 when most transfer requests failed.
func measurementFrom(s *st.Server) (models.Measurement, error) {
	if s.DLSpeed <= 0 {
		return models.Measurement{}, errors.New("download test produced no result")
	}
	if s.ULSpeed <= 0 {
		return models.Measurement{}, errors.New("upload test produced no result")
	}
	if s.Latency <= 0 {
		return models.Measurement{}, errors.New("latency test produced no result")
	}
	return models.Measurement{
		DownloadMbps: s.DLSpeed.Mbps(),
		UploadMbps:   s.ULSpeed.Mbps(),
		PingMs:       float64(s.Latency.Microseconds()) / 1000,
	}, nil
}
