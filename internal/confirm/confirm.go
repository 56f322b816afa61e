// SPDX-License-Identifier: LGPL-2.1-only

// Package confirm implements the optional install-confirmation gate: a
// one-shot D-Bus round trip to de.pengutronix.rauc.InstallConfirmation
// asking a local approver (e.g. a UI, or a policy daemon) whether a
// pending installation may proceed. Grounded on
// rauc-install-confirmation.c's confirmation_loop_thread; unlike the
// install driver this is a single request/response, not a progress
// stream, so it needs no queue.
package confirm

import (
	"context"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"

	"github.com/rauc/rauc-hawkbit-updater/internal/logger"
)

const (
	busName    = "de.pengutronix.rauc.InstallConfirmation"
	objectPath = dbus.ObjectPath("/")
	iface      = "de.pengutronix.rauc.InstallConfirmation"
)

// Result is the outcome of a confirmation round trip.
type Result struct {
	Confirmed bool
	ErrorCode int
	Details   string
}

type connector interface {
	Object(dest string, path dbus.ObjectPath) objectCaller
	AddMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

type objectCaller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

type connWrapper struct{ *dbus.Conn }

func (w connWrapper) Object(dest string, path dbus.ObjectPath) objectCaller {
	return w.Conn.Object(dest, path)
}

func dialSystemOrSessionBus() (connector, error) {
	open := dbus.SystemBus
	if os.Getenv("DBUS_STARTER_BUS_TYPE") == "session" {
		open = dbus.SessionBus
	}
	conn, err := open()
	if err != nil {
		return nil, err
	}
	return connWrapper{conn}, nil
}

// Requester asks a local approver to confirm an installation before it
// proceeds.
type Requester struct {
	log  *logger.Object
	dial func() (connector, error)
}

// New builds a Requester that talks to the system (or session) bus.
func New(log *logger.Object) *Requester {
	return &Requester{log: log, dial: dialSystemOrSessionBus}
}

// Request calls ConfirmInstallationRequest(actionID, version) and blocks
// until the ConfirmationStatus signal answers, or ctx is canceled.
func (r *Requester) Request(ctx context.Context, actionID, version string) (Result, error) {
	conn, err := r.dial()
	if err != nil {
		return Result{}, fmt.Errorf("bus connect: %w", err)
	}
	defer conn.Close()

	if err := conn.AddMatchSignal(dbus.WithMatchObjectPath(objectPath), dbus.WithMatchInterface(iface), dbus.WithMatchMember("ConfirmationStatus")); err != nil {
		r.log.Warnf("failed to subscribe to confirmation-status: %v", err)
	}

	sigCh := make(chan *dbus.Signal, 4)
	conn.Signal(sigCh)
	defer conn.RemoveSignal(sigCh)

	obj := conn.Object(busName, objectPath)
	call := obj.Call(iface+".ConfirmInstallationRequest", 0, actionID, version)
	if call.Err != nil {
		return Result{}, fmt.Errorf("ConfirmInstallationRequest: %w", call.Err)
	}

	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case sig, ok := <-sigCh:
			if !ok {
				return Result{}, fmt.Errorf("confirmation signal channel closed")
			}
			if sig.Name != iface+".ConfirmationStatus" {
				continue
			}
			if res, ok := parseConfirmationStatus(sig); ok {
				return res, nil
			}
		}
	}
}

// Confirm adapts Request to action.Confirmer's narrower (bool, error)
// signature, discarding the rejection's error code/details (the coordinator
// only needs a yes/no to decide whether to proceed).
func (r *Requester) Confirm(ctx context.Context, actionID, version string) (bool, error) {
	res, err := r.Request(ctx, actionID, version)
	if err != nil {
		return false, err
	}
	return res.Confirmed, nil
}

func parseConfirmationStatus(sig *dbus.Signal) (Result, bool) {
	if len(sig.Body) < 4 {
		return Result{}, false
	}
	confirmed, _ := sig.Body[1].(bool)
	code, _ := sig.Body[2].(int32)
	details, _ := sig.Body[3].(string)
	return Result{Confirmed: confirmed, ErrorCode: int(code), Details: details}, true
}
