// SPDX-License-Identifier: LGPL-2.1-only

package svcglue

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/rauc/rauc-hawkbit-updater/internal/logger"
)

// notifyReady sends READY=1 the way hawkbit_start_service_sync() does
// right before entering its main loop. It is a no-op outside systemd
// (NOTIFY_SOCKET unset), which SdNotify reports via its bool return.
func notifyReady(log *logger.Object) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady+"\nSTATUS=Init completed, start polling HawkBit for new software.")
	if err != nil {
		log.Debugf("sd_notify READY failed: %v", err)
	} else if sent {
		log.Debugf("sent systemd READY notification")
	}
}

// notifyStopping sends STOPPING=1 on the way out, mirroring the original
// agent's shutdown notification.
func notifyStopping(log *logger.Object) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping+"\nSTATUS=Stopped polling HawkBit for new software.")
}

// runWatchdog pings the service manager's watchdog at half its configured
// interval for as long as ctx is alive, the Go counterpart of
// sd_event_set_watchdog(event, TRUE). It returns immediately if no
// watchdog interval is configured (WATCHDOG_USEC unset).
func runWatchdog(ctx context.Context, log *logger.Object) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				log.Debugf("sd_notify WATCHDOG=1 failed: %v", err)
			}
		}
	}
}
