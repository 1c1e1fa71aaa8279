package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"bandwidth-probe/internal/config"
	"bandwidth-probe/internal/models"
)

// Exec measures bandwidth by running an external speedtest binary that prints
// a JSON result on stdout.
type Exec struct {
	Command       string
	Args          []string
	AcceptLicense bool
	LicenseArgs   []string
	Units         string
	Timeout       time.Duration

	log zerolog.Logger
}

// NewExec creates an Exec prober from configuration
func NewExec(cfg config.ProbeConfig) *Exec {
	return &Exec{
		Command:       cfg.Command,
		Args:          cfg.Args,
		AcceptLicense: cfg.AcceptLicense,
		LicenseArgs:   []string{"--accept-license"},
		Units:         cfg.Units,
		Timeout:       cfg.Timeout,
		log:           log.With().Str("component", "probe").Str("command", cfg.Command).Logger(),
	}
}

// Measure runs the tool once. Every failure is returned as a failed
// Measurement.
func (p *Exec) Measure(ctx context.Context) models.Measurement {
	if _, err := exec.LookPath(p.Command); err != nil {
		return models.Failed(fmt.Sprintf("speedtest binary not found: %v", err))
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	if p.AcceptLicense {
		p.acceptLicense(ctx)
	}

	stdout, stderr, err := p.run(ctx, p.Args...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return models.Failed(fmt.Sprintf("speedtest timed out after %s", p.Timeout))
		}
		return models.Failed("speedtest canceled")
	}
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = err.Error()
		}
		p.log.Error().Str("stderr", msg).Msg("speedtest failed")
		return models.Failed(msg)
	}

	p.log.Debug().Bytes("stdout", stdout).Msg("raw speedtest output")
	m, err := parseOutput(stdout, p.Units)
	if err != nil {
		return models.Failed(err.Error())
	}
	return m
}

// acceptLicense runs the tool once so the license prompt never blocks the
// real measurement. Its outcome is ignored.
func (p *Exec) acceptLicense(ctx context.Context) {
	if _, stderr, err := p.run(ctx, p.LicenseArgs...); err != nil {
		p.log.Debug().Err(err).Bytes("stderr", stderr).Msg("license pre-run failed")
	}
}

func (p *Exec) run(ctx context.Context, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, p.Command, args...)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
