// SPDX-License-Identifier: LGPL-2.1-only

// Package pollloop implements the poll loop (component C): a 1-second
// cooperative tick that issues the DDI base-resource GET at a
// server-advised cadence and dispatches identify/deployment/cancel
// handling, the Go counterpart of the g_timeout_add_seconds(1, ...)
// callback in rauc-hawkbit-updater.c.
package pollloop

import (
	"context"
	"errors"
	"time"

	"github.com/rauc/rauc-hawkbit-updater/internal/action"
	"github.com/rauc/rauc-hawkbit-updater/internal/ddiclient"
	"github.com/rauc/rauc-hawkbit-updater/internal/feedback"
	"github.com/rauc/rauc-hawkbit-updater/internal/flextimer"
	"github.com/rauc/rauc-hawkbit-updater/internal/jsonutil"
	"github.com/rauc/rauc-hawkbit-updater/internal/logger"
)

// activeActionInterval is the fixed cadence used while a deployment or
// cancel is in flight, tight enough to receive a server-initiated cancel
// promptly.
const activeActionInterval = 5 * time.Second

// Loop drives the base-resource poll.
type Loop struct {
	client      *ddiclient.Client
	coordinator *action.Coordinator
	log         *logger.Object
	deviceAttrs map[string]string
	retryWait   time.Duration
}

// New builds a Loop.
func New(client *ddiclient.Client, coordinator *action.Coordinator, log *logger.Object, deviceAttrs map[string]string, retryWait time.Duration) *Loop {
	return &Loop{client: client, coordinator: coordinator, log: log, deviceAttrs: deviceAttrs, retryWait: retryWait}
}

// Run drives the 1-second tick loop until ctx is canceled. In run-once
// mode it performs exactly one poll tick (including waiting for any
// download/install it spawns) and returns an exit code: 0 if every step
// succeeded, 1 otherwise. In continuous mode it always returns 0 when ctx
// is canceled.
func (l *Loop) Run(ctx context.Context, runOnce bool) int {
	ticker := flextimer.NewRangeTicker(time.Second, time.Second)
	defer ticker.Stop()

	var elapsed, desired time.Duration

	for {
		select {
		case <-ctx.Done():
			return 0
		case <-ticker.C:
			elapsed += time.Second
			if elapsed < desired {
				continue
			}
			elapsed = 0

			ok := l.poll(ctx, &desired)

			if runOnce {
				l.coordinator.WaitForIdle(ctx)
				if !ok || l.coordinator.LastError() != nil {
					return 1
				}
				return 0
			}
		}
	}
}

// poll performs one base-resource GET and dispatches its contents,
// updating desired with the next poll interval. It returns false if the
// base poll itself failed.
func (l *Loop) poll(ctx context.Context, desired *time.Duration) bool {
	root, err := l.client.Get(ctx, l.client.BaseURL())
	if err != nil {
		l.logPollFailure(err)
		*desired = l.retryWait
		return false
	}

	if jsonutil.Contains(root, "$._links.configData") {
		if err := l.identify(ctx); err != nil {
			l.log.Warnf("identify failed: %v", err)
		}
	}

	if jsonutil.Contains(root, "$._links.deploymentBase") {
		if err := l.coordinator.ProcessDeployment(ctx, root); err != nil && !errors.Is(err, action.ErrAlreadyInProgress) {
			l.log.Warnf("process_deployment failed: %v", err)
		}
	}

	if jsonutil.Contains(root, "$._links.cancelAction") {
		if err := l.coordinator.ProcessCancel(ctx, root); err != nil {
			l.log.Warnf("process_cancel failed: %v", err)
		}
	}

	l.rearm(root, desired)
	return true
}

func (l *Loop) identify(ctx context.Context) error {
	payload := feedback.BuildIdentify(l.deviceAttrs)
	body, err := payload.Marshal()
	if err != nil {
		return err
	}
	return l.client.Put(ctx, l.client.ConfigDataURL(), body)
}

// rearm picks the next poll interval: a fixed 5s while an action is in
// flight (to catch a cancel promptly), else the server-advised sleep
// value, falling back to the configured retry backoff when absent or
// unparseable.
func (l *Loop) rearm(root interface{}, desired *time.Duration) {
	if l.coordinator.State() != action.None {
		*desired = activeActionInterval
		return
	}

	sleep, ok := jsonutil.GetString(root, "$.config.polling.sleep")
	if !ok {
		*desired = l.retryWait
		return
	}

	d, err := parseClockDuration(sleep)
	if err != nil {
		l.log.Debugf("ignoring unparseable polling.sleep %q: %v", sleep, err)
		*desired = l.retryWait
		return
	}
	*desired = d
}

func (l *Loop) logPollFailure(err error) {
	var statusErr *ddiclient.HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.Status == 401 {
		l.log.Warnf("base poll unauthorized (401): check auth_token/gateway_token: %v", err)
		return
	}
	l.log.Warnf("base poll failed: %v", err)
}
