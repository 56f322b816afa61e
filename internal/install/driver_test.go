// SPDX-License-Identifier: LGPL-2.1-only

package install

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rauc/rauc-hawkbit-updater/internal/action"
	"github.com/rauc/rauc-hawkbit-updater/internal/ddiclient"
	"github.com/rauc/rauc-hawkbit-updater/internal/logger"
)

type fakeObject struct{ callErr error }

func (f *fakeObject) Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	return &dbus.Call{Err: f.callErr}
}

type fakeConn struct {
	mu  sync.Mutex
	obj *fakeObject
	ch  chan<- *dbus.Signal
}

func (f *fakeConn) Object(dest string, path dbus.ObjectPath) objectCaller { return f.obj }
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
	t.Fatal("driver never registered a signal channel")
	return nil
}

type feedbackSink struct {
	mu       sync.Mutex
	payloads []map[string]interface{}
}

func (s *feedbackSink) handler(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	s.payloads = append(s.payloads, body)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *feedbackSink) snapshot() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]interface{}, len(s.payloads))
	copy(out, s.payloads)
	return out
}

func newTestCoordinator(t *testing.T) (*action.Coordinator, *httptest.Server, *feedbackSink) {
	t.Helper()
	sink := &feedbackSink{}
	srv := httptest.NewServer(http.HandlerFunc(sink.handler))
	client, err := ddiclient.New(ddiclient.Options{
		Server:         srv.Listener.Addr().String(),
		ConnectTimeout: time.Second,
		Timeout:        5 * time.Second,
	}, logger.New("test"))
	require.NoError(t, err)

	c := action.New(client, logger.New("test"), action.Options{})
	return c, srv, sink
}

func TestDriverCompletesSuccessfully(t *testing.T) {
	c, srv, sink := newTestCoordinator(t)
	defer srv.Close()

	conn := &fakeConn{obj: &fakeObject{}}
	d := New(logger.New("test"))
	d.dial = func() (connector, error) { return conn, nil }

	req := action.InstallRequest{ID: "42", FeedbackURL: srv.URL, Name: "fw", Version: "1.0", BundlePath: "/tmp/does-not-exist"}

	done := make(chan struct{})
	go func() {
		d.Start(context.Background(), c, req)
		close(done)
	}()

	ch := conn.waitForChannel(t)
	ch <- &dbus.Signal{
		Name: propertiesIface + ".PropertiesChanged",
		Body: []interface{}{installerInterface, map[string]dbus.Variant{"Operation": dbus.MakeVariant("installing")}, []string{}},
	}
	ch <- &dbus.Signal{Name: installerInterface + ".Completed", Body: []interface{}{int32(0)}}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("driver did not conclude")
	}

	payloads := sink.snapshot()
	require.NotEmpty(t, payloads)
	last := payloads[len(payloads)-1]
	st := last["status"].(map[string]interface{})
	assert.Equal(t, "closed", st["execution"])
	res := st["result"].(map[string]interface{})
	assert.Equal(t, "success", res["finished"])
}

func TestDriverReportsPeerDisappearance(t *testing.T) {
	c, srv, sink := newTestCoordinator(t)
	defer srv.Close()

	conn := &fakeConn{obj: &fakeObject{}}
	d := New(logger.New("test"))
	d.dial = func() (connector, error) { return conn, nil }

	req := action.InstallRequest{ID: "7", FeedbackURL: srv.URL, Name: "fw", Version: "1.0", BundlePath: "/tmp/does-not-exist"}

	done := make(chan struct{})
	go func() {
		d.Start(context.Background(), c, req)
		close(done)
	}()

	ch := conn.waitForChannel(t)
	ch <- &dbus.Signal{
		Name: propertiesIface + ".PropertiesChanged",
		Body: []interface{}{installerInterface, map[string]dbus.Variant{}, []string{"Operation"}},
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("driver did not conclude")
	}

	payloads := sink.snapshot()
	require.NotEmpty(t, payloads)
	last := payloads[len(payloads)-1]
	st := last["status"].(map[string]interface{})
	res := st["result"].(map[string]interface{})
	assert.Equal(t, "failure", res["finished"])
}
