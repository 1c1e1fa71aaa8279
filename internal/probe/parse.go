package probe

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"bandwidth-probe/internal/config"
	"bandwidth-probe/internal/models"
)

const bitsPerMegabit = 1_000_000

type rawOutput struct {
	Download json.RawMessage `json:"download"`
	Upload   json.RawMessage `json:"upload"`
	Ping     json.RawMessage `json:"ping"`
}

// ooklaThroughput is the object form used by the Ookla CLI; bandwidth is in
// bytes per second.
type ooklaThroughput struct {
	Bandwidth *float64 `json:"bandwidth"`
}

type ooklaPing struct {
	Latency *float64 `json:"latency"`
}

// parseOutput decodes the tool's JSON result into Mbps and milliseconds.
// Flat numbers are bits per second unless units is "mbps"; the Ookla object
// form is always converted from bytes per second.
func parseOutput(out []byte, units string) (models.Measurement, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return models.Measurement{}, errors.New("empty speedtest output")
	}

	var raw rawOutput
	if err := json.Unmarshal(out, &raw); err != nil {
		return models.Measurement{}, errors.Wrap(err, "cannot parse speedtest output")
	}

	download, err := throughput("download", raw.Download, units)
	if err != nil {
		return models.Measurement{}, err
	}
	upload, err := throughput("upload", raw.Upload, units)
	if err != nil {
		return models.Measurement{}, err
	}
	ping, err := latency(raw.Ping)
	if err != nil {
		return models.Measurement{}, err
	}

	return models.Measurement{DownloadMbps: download, UploadMbps: upload, PingMs: ping}, nil
}

func throughput(field string, raw json.RawMessage, units string) (float64, error) {
	if isObject(raw) {
		var o ooklaThroughput
		if err := json.Unmarshal(raw, &o); err != nil {
			return 0, errors.Wrapf(err, "cannot parse %s", field)
		}
		if o.Bandwidth == nil {
			return 0, errors.Errorf("missing %s.bandwidth in speedtest output", field)
		}
		return checkNonNegative(field, *o.Bandwidth*8/bitsPerMegabit)
	}

	v, err := number(field, raw)
	if err != nil {
		return 0, err
	}
	if units == config.UnitsMbps {
		return checkNonNegative(field, v)
	}
	return checkNonNegative(field, v/bitsPerMegabit)
}

func latency(raw json.RawMessage) (float64, error) {
	if isObject(raw) {
		var o ooklaPing
		if err := json.Unmarshal(raw, &o); err != nil {
			return 0, errors.Wrap(err, "cannot parse ping")
		}
		if o.Latency == nil {
			return 0, errors.New("missing ping.latency in speedtest output")
		}
		return checkNonNegative("ping", *o.Latency)
	}

	v, err := number("ping", raw)
	if err != nil {
		return 0, err
	}
	return checkNonNegative("ping", v)
}

func number(field string, raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errors.Errorf("missing %s in speedtest output", field)
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, errors.Wrapf(err, "%s is not a number", field)
	}
	return v, nil
}

func checkNonNegative(field string, v float64) (float64, error) {
	if v < 0 {
		return 0, errors.Errorf("negative %s in speedtest output", field)
	}
	return v, nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
