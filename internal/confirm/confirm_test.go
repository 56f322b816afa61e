// SPDX-License-Identifier: LGPL-2.1-only

package confirm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rauc/rauc-hawkbit-updater/internal/logger"
)

type fakeObject struct{}

func (f *fakeObject) Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	return &dbus.Call{}
}

type fakeConn struct {
	mu sync.Mutex
	ch chan<- *dbus.Signal
}

func (f *fakeConn) Object(dest string, path dbus.ObjectPath) objectCaller { return &fakeObject{} }
func (f *fakeConn) AddMatchSignal(options ...dbus.MatchOption) error      { return nil }
func (f *fakeConn) Signal(ch chan<- *dbus.Signal) {
	f.mu.Lock()
	f.ch = ch
	f.mu.Unlock()
}
func (f *fakeConn) RemoveSignal(ch chan<- *dbus.Signal) {}
func (f *fakeConn) Close() error                        { return nil }

func (f *fakeConn) waitForChannel(t *testing.T) chan<- *dbus.Signal {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		ch := f.ch
		f.mu.Unlock()
		if ch != nil {
			return ch
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("requester never registered a signal channel")
	return nil
}

func TestRequestReturnsConfirmation(t *testing.T) {
	conn := &fakeConn{}
	r := New(logger.New("test"))
	r.dial = func() (connector, error) { return conn, nil }

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.Request(context.Background(), "42", "1.0")
		done <- outcome{res, err}
	}()

	ch := conn.waitForChannel(t)
	ch <- &dbus.Signal{
		Name: iface + ".ConfirmationStatus",
		Body: []interface{}{int32(42), true, int32(0), ""},
	}

	select {
	case o := <-done:
		require.NoError(t, o.err)
		assert.True(t, o.res.Confirmed)
	case <-time.After(time.Second):
		t.Fatal("request never completed")
	}
}

func TestConfirmAdaptsRequestToBoolError(t *testing.T) {
	conn := &fakeConn{}
	r := New(logger.New("test"))
	r.dial = func() (connector, error) { return conn, nil }

	type outcome struct {
		confirmed bool
		err       error
	}
	done := make(chan outcome, 1)
	go func() {
		confirmed, err := r.Confirm(context.Background(), "42", "1.0")
		done <- outcome{confirmed, err}
	}()

	ch := conn.waitForChannel(t)
	ch <- &dbus.Signal{
		Name: iface + ".ConfirmationStatus",
		Body: []interface{}{int32(42), false, int32(3), "operator declined"},
	}

	select {
	case o := <-done:
		require.NoError(t, o.err)
		assert.False(t, o.confirmed)
	case <-time.After(time.Second):
		t.Fatal("confirm never completed")
	}
}

func TestRequestContextCancellation(t *testing.T) {
	conn := &fakeConn{}
	r := New(logger.New("test"))
	r.dial = func() (connector, error) { return conn, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Request(ctx, "42", "1.0")
		done <- err
	}()

	conn.waitForChannel(t)
	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("request never returned after cancellation")
	}
}
