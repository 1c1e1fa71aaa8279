package models

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidSample is returned when a sample carries both measurements and an
// error, or neither.
var ErrInvalidSample = errors.New("invalid sample")

// SpeedSample represents a single measurement attempt.
// Download/Upload/Ping are only meaningful when Error is empty.
type SpeedSample struct {
	Timestamp time.Time `json:"timestamp"`
	Download  float64   `json:"download,omitempty"` // Mbps
	Upload    float64   `json:"upload,omitempty"`   // Mbps
	Ping      float64   `json:"ping,omitempty"`     // milliseconds
	Error     string    `json:"error,omitempty"`
}

// Success reports whether the attempt produced a measurement.
func (s SpeedSample) Success() bool {
	return s.Error == ""
}

// Validate checks the success XOR error invariant and that measurements are
// finite and non-negative.
func (s SpeedSample) Validate() error {
	if s.Timestamp.IsZero() {
		return errors.Wrap(ErrInvalidSample, "timestamp is required")
	}
	if !s.Success() {
		if s.Download != 0 || s.Upload != 0 || s.Ping != 0 {
			return errors.Wrap(ErrInvalidSample, "failed sample must not carry measurements")
		}
		return nil
	}
	for name, v := range map[string]float64{"download": s.Download, "upload": s.Upload, "ping": s.Ping} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrInvalidSample, "%s is not a finite number", name)
		}
		if v < 0 {
			return errors.Wrapf(ErrInvalidSample, "%s is negative", name)
		}
	}
	return nil
}

// Measurement is the outcome of one probe run. Failure is non-empty on error.
type Measurement struct {
	DownloadMbps float64 `json:"download_mbps"`
	UploadMbps   float64 `json:"upload_mbps"`
	PingMs       float64 `json:"ping_ms"`
	Failure      string  `json:"failure,omitempty"`
}

// Failed builds a failed measurement. An empty message is replaced so the
// result can never be mistaken for a success.
func Failed(msg string) Measurement {
	if msg == "" {
		msg = "unknown error"
	}
	return Measurement{Failure: msg}
}

// OK reports whether the measurement succeeded.
func (m Measurement) OK() bool {
	return m.Failure == ""
}

// Sample converts the measurement into a persistable sample.
func (m Measurement) Sample(at time.Time) SpeedSample {
	if !m.OK() {
		return SpeedSample{Timestamp: at, Error: m.Failure}
	}
	return SpeedSample{
		Timestamp: at,
		Download:  m.DownloadMbps,
		Upload:    m.UploadMbps,
		Ping:      m.PingMs,
	}
}
