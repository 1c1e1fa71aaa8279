package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog/log"
)

// Notifier reports service state to the init system.
type Notifier interface {
	Ready()
	Stopping()
	Watchdog()
	WatchdogInterval() (time.Duration, bool)
}

// systemdNotifier talks to systemd via NOTIFY_SOCKET. Outside systemd every
// call is a no-op.
type systemdNotifier struct{}

func (systemdNotifier) Ready()    { sdNotify(daemon.SdNotifyReady) }
func (systemdNotifier) Stopping() { sdNotify(daemon.SdNotifyStopping) }
func (systemdNotifier) Watchdog() { sdNotify(daemon.SdNotifyWatchdog) }

// WatchdogInterval returns half of WatchdogSec so a late ping never trips it.
func (systemdNotifier) WatchdogInterval() (time.Duration, bool) {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d / 2, true
}

func sdNotify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Debug().Err(err).Str("state", state).Msg("sd_notify failed")
	}
}

// watchdogWorker pings the systemd watchdog while the loop is alive. Probe
// runs can take longer than WatchdogSec, so it runs independently of them.
func (m *Monitor) watchdogWorker(ctx context.Context, wg *sync.WaitGroup, interval time.Duration) {
	defer wg.Done()

	ticker := m.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.notifier.Watchdog()
		}
	}
}
