package probe

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bandwidth-probe/internal/config"
)

// TestHelperProcess stands in for the speedtest binary. It is only active when
// re-executed by helperProber.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("BWPROBE_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	for _, a := range args {
		if a == "--accept-license" {
			os.Exit(0)
		}
	}

	switch os.Getenv("BWPROBE_HELPER_MODE") {
	case "ok":
		fmt.Println(`{"download": 100000000, "upload": 25000000, "ping": 18.5}`)
	case "fail":
		fmt.Fprintln(os.Stderr, "ERROR: Unable to connect to servers to test latency.")
		os.Exit(1)
	case "silent-fail":
		os.Exit(3)
	case "garbage":
		fmt.Println("Cannot retrieve speedtest configuration")
	case "hang":
		time.Sleep(time.Minute)
	}
	os.Exit(0)
}

func helperProber(t *testing.T, mode string) *Exec {
	t.Helper()
	t.Setenv("BWPROBE_HELPER_PROCESS", "1")
	t.Setenv("BWPROBE_HELPER_MODE", mode)

	p := NewExec(config.ProbeConfig{
		Command:       os.Args[0],
		Args:          []string{"-test.run=TestHelperProcess", "--", "--json"},
		AcceptLicense: true,
		Units:         config.UnitsBitsPerSecond,
		Timeout:       30 * time.Second,
	})
	p.LicenseArgs = []string{"-test.run=TestHelperProcess", "--", "--accept-license"}
	return p
}

func TestExecMeasure_Success(t *testing.T) {
	m := helperProber(t, "ok").Measure(context.Background())

	require.True(t, m.OK(), m.Failure)
	assert.Equal(t, 100.0, m.DownloadMbps)
	assert.Equal(t, 25.0, m.UploadMbps)
	assert.Equal(t, 18.5, m.PingMs)
}

func TestExecMeasure_NonZeroExitUsesStderr(t *testing.T) {
	m := helperProber(t, "fail").Measure(context.Background())

	assert.False(t, m.OK())
	assert.Equal(t, "ERROR: Unable to connect to servers to test latency.", m.Failure)
}

func TestExecMeasure_NonZeroExitWithoutStderr(t *testing.T) {
	m := helperProber(t, "silent-fail").Measure(context.Background())

	assert.False(t, m.OK())
	assert.Contains(t, m.Failure, "exit status 3")
}

func TestExecMeasure_MalformedOutput(t *testing.T) {
	m := helperProber(t, "garbage").Measure(context.Background())

	assert.False(t, m.OK())
	assert.Contains(t, m.Failure, "cannot parse speedtest output")
}

func TestExecMeasure_Timeout(t *testing.T) {
	p := helperProber(t, "hang")
	p.Timeout = 500 * time.Millisecond

	start := time.Now()
	m := p.Measure(context.Background())

	assert.False(t, m.OK())
	assert.Contains(t, m.Failure, "timed out")
	assert.Less(t, time.Since(start), 20*time.Second)
}

func TestExecMeasure_Canceled(t *testing.T) {
	p := helperProber(t, "hang")
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	m := p.Measure(ctx)
	assert.False(t, m.OK())
	assert.Equal(t, "speedtest canceled", m.Failure)
}

func TestExecMeasure_MissingBinary(t *testing.T) {
	p := NewExec(config.ProbeConfig{
		Command: "speedtest-binary-that-does-not-exist",
		Args:    []string{"--json"},
		Timeout: time.Second,
	})

	m := p.Measure(context.Background())
	assert.False(t, m.OK())
	assert.Contains(t, m.Failure, "speedtest binary not found")
}

func TestNew(t *testing.T) {
	p, err := New(config.ProbeConfig{Driver: config.DriverExec, Command: "speedtest"})
	require.NoError(t, err)
	assert.IsType(t, &Exec{}, p)

	p, err = New(config.ProbeConfig{Driver: config.DriverBuiltin})
	require.NoError(t, err)
	assert.IsType(t, &Builtin{}, p)

	_, err = New(config.ProbeConfig{Driver: "iperf"})
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	m, _, err := Check(context.Background(), helperProber(t, "ok"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, m.DownloadMbps)

	_, _, err = Check(context.Background(), helperProber(t, "fail"))
	assert.ErrorContains(t, err, "speedtest check failed")
}
