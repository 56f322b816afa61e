// SPDX-License-Identifier: LGPL-2.1-only

// Package install implements the background install driver (component F):
// it drives RAUC's de.pengutronix.rauc.Installer object over D-Bus and
// translates property-change/completed events into progress feedback and
// a terminal status, the Go counterpart of rauc-installer.c's
// install_loop_thread.
package install

import (
	"context"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"

	"github.com/rauc/rauc-hawkbit-updater/internal/action"
	"github.com/rauc/rauc-hawkbit-updater/internal/feedback"
	"github.com/rauc/rauc-hawkbit-updater/internal/logger"
)

const (
	busName            = "de.pengutronix.rauc"
	objectPath         = dbus.ObjectPath("/")
	installerInterface = "de.pengutronix.rauc.Installer"
	propertiesIface    = "org.freedesktop.DBus.Properties"
)

// peerDisappearedStatus is the terminal status rauc-installer.c assigns
// when the bus invalidates watched properties (the executor vanished),
// deliberately non-zero so it is never mistaken for success.
const peerDisappearedStatus = 2

// objectCaller is the subset of dbus.BusObject the driver needs; it lets
// tests substitute a fake bus object without faking the whole interface.
type objectCaller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// connector is the subset of *dbus.Conn the driver needs.
type connector interface {
	Object(dest string, path dbus.ObjectPath) objectCaller
	AddMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
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

// Driver satisfies action.Installer.
type Driver struct {
	log  *logger.Object
	dial func() (connector, error)
}

// New builds a Driver that connects to the system bus (or the session bus
// when DBUS_STARTER_BUS_TYPE=session, matching the reference agent's
// behavior under test harnesses).
func New(log *logger.Object) *Driver {
	return &Driver{log: log, dial: dialSystemOrSessionBus}
}

// Start implements action.Installer. It blocks until RAUC's completed
// signal (or peer disappearance) produces a terminal status, then reports
// feedback and concludes the action.
func (d *Driver) Start(ctx context.Context, c *action.Coordinator, r action.InstallRequest) {
	conn, err := d.dial()
	if err != nil {
		d.log.Errorf("failed to connect to the system bus: %v", err)
		d.conclude(ctx, c, r, -1, fmt.Errorf("bus connect: %w", err))
		return
	}
	defer conn.Close()

	if err := conn.AddMatchSignal(dbus.WithMatchObjectPath(objectPath), dbus.WithMatchInterface(propertiesIface)); err != nil {
		d.log.Warnf("failed to subscribe to property changes: %v", err)
	}
	if err := conn.AddMatchSignal(dbus.WithMatchObjectPath(objectPath), dbus.WithMatchInterface(installerInterface), dbus.WithMatchMember("Completed")); err != nil {
		d.log.Warnf("failed to subscribe to the completed signal: %v", err)
	}

	sigCh := make(chan *dbus.Signal, 32)
	conn.Signal(sigCh)
	defer conn.RemoveSignal(sigCh)

	obj := conn.Object(busName, objectPath)
	call := obj.Call(installerInterface+".InstallBundle", 0, r.BundlePath, buildInstallArgs(r))
	if call.Err != nil {
		d.log.Errorf("InstallBundle call failed: %v", call.Err)
		d.conclude(ctx, c, r, -1, call.Err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			d.conclude(ctx, c, r, -1, ctx.Err())
			return
		case sig, ok := <-sigCh:
			if !ok {
				d.conclude(ctx, c, r, -1, fmt.Errorf("signal channel closed"))
				return
			}
			if status, done := d.handleSignal(ctx, c, r, sig); done {
				d.conclude(ctx, c, r, status, nil)
				return
			}
		}
	}
}

// handleSignal translates one D-Bus signal into progress feedback, or
// reports a terminal status when the install concluded.
func (d *Driver) handleSignal(ctx context.Context, c *action.Coordinator, r action.InstallRequest, sig *dbus.Signal) (status int, done bool) {
	switch sig.Name {
	case propertiesIface + ".PropertiesChanged":
		return d.handlePropertiesChanged(ctx, c, r, sig)
	case installerInterface + ".Completed":
		if len(sig.Body) == 0 {
			return -1, true
		}
		code, _ := sig.Body[0].(int32)
		return int(code), true
	default:
		return 0, false
	}
}

func (d *Driver) handlePropertiesChanged(ctx context.Context, c *action.Coordinator, r action.InstallRequest, sig *dbus.Signal) (status int, done bool) {
	if len(sig.Body) < 3 {
		return 0, false
	}
	invalidated, _ := sig.Body[2].([]string)
	if len(invalidated) > 0 {
		d.log.Warnf("RAUC D-Bus service disappeared")
		return peerDisappearedStatus, true
	}

	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return 0, false
	}

	if v, ok := changed["Operation"]; ok {
		if msg, ok := v.Value().(string); ok {
			d.sendProgress(ctx, c, r, msg)
		}
		return 0, false
	}
	if v, ok := changed["Progress"]; ok {
		if msg, ok := formatProgress(v); ok {
			d.sendProgress(ctx, c, r, msg)
		}
		return 0, false
	}
	if v, ok := changed["LastError"]; ok {
		if msg, ok := v.Value().(string); ok && msg != "" {
			d.sendProgress(ctx, c, r, "LastError: "+msg)
		}
	}
	return 0, false
}

// formatProgress decodes RAUC's Progress property, signature "(isi)":
// percentage, message, and a step counter the driver does not surface.
func formatProgress(v dbus.Variant) (string, bool) {
	fields, ok := v.Value().([]interface{})
	if !ok || len(fields) < 2 {
		return "", false
	}
	pct, _ := fields[0].(int32)
	msg, _ := fields[1].(string)
	return fmt.Sprintf("%3d%% %s", pct, msg), true
}

func (d *Driver) sendProgress(ctx context.Context, c *action.Coordinator, r action.InstallRequest, msg string) {
	if err := c.SendFeedback(ctx, r.FeedbackURL, feedback.Progress(r.ID, msg)); err != nil {
		d.log.Warnf("failed to send install progress feedback: %v", err)
	}
}

func (d *Driver) conclude(ctx context.Context, c *action.Coordinator, r action.InstallRequest, status int, err error) {
	cleanupPath := ""
	if !r.Streaming {
		cleanupPath = r.BundlePath
	}

	if err != nil {
		c.Complete(ctx, action.Error, r.FeedbackURL, feedback.Failure(r.ID, fmt.Sprintf("Failed to install %s V%s: %v", r.Name, r.Version, err)), cleanupPath, false, false)
		return
	}
	if status == 0 {
		c.Complete(ctx, action.Success, r.FeedbackURL, feedback.Success(r.ID, "Software bundle installed successfully."), cleanupPath, false, true)
		return
	}
	c.Complete(ctx, action.Error, r.FeedbackURL, feedback.Failure(r.ID, fmt.Sprintf("Failed to install %s V%s: RAUC returned status %d.", r.Name, r.Version, status)), cleanupPath, false, true)
}

// buildInstallArgs assembles InstallBundle's variant-dict argument: for
// streaming installs, the bearer token to forward and whether to skip TLS
// verification; for client-cert streaming, the key/cert pair instead.
func buildInstallArgs(r action.InstallRequest) map[string]dbus.Variant {
	args := map[string]dbus.Variant{}
	if !r.Streaming {
		return args
	}
	if r.AuthHeader != "" {
		args["http-headers"] = dbus.MakeVariant([]string{r.AuthHeader})
	}
	if r.TLSKey != "" && r.TLSCert != "" {
		args["tls-key"] = dbus.MakeVariant(r.TLSKey)
		args["tls-cert"] = dbus.MakeVariant(r.TLSCert)
	}
	args["tls-no-verify"] = dbus.MakeVariant(!r.TLSVerify)
	return args
}
