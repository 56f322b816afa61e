// SPDX-License-Identifier: LGPL-2.1-only

package download

import (
	"context"
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rauc/rauc-hawkbit-updater/internal/action"
	"github.com/rauc/rauc-hawkbit-updater/internal/ddiclient"
	"github.com/rauc/rauc-hawkbit-updater/internal/feedback"
	"github.com/rauc/rauc-hawkbit-updater/internal/logger"
)

type feedbackSink struct {
	mu       sync.Mutex
	payloads []map[string]interface{}
}

func (s *feedbackSink) record(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	s.payloads = append(s.payloads, body)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *feedbackSink) details(t *testing.T) []string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.payloads {
		st := p["status"].(map[string]interface{})
		if d, ok := st["details"].([]interface{}); ok && len(d) > 0 {
			out = append(out, d[0].(string))
		}
	}
	return out
}

func newCoordinator(t *testing.T, bundleBody []byte) (*action.Coordinator, *ddiclient.Client, *httptest.Server, *feedbackSink) {
	t.Helper()
	sink := &feedbackSink{}
	mux := http.NewServeMux()
	mux.HandleFunc("/bundle", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(bundleBody)
	})
	mux.HandleFunc("/", sink.record)
	srv := httptest.NewServer(mux)

	client, err := ddiclient.New(ddiclient.Options{
		Server:                     srv.Listener.Addr().String(),
		ConnectTimeout:             time.Second,
		Timeout:                    5 * time.Second,
		SendDownloadAuthentication: true,
	}, logger.New("test"))
	require.NoError(t, err)

	dir := t.TempDir()
	c := action.New(client, logger.New("test"), action.Options{
		BundleDownloadLocation: filepath.Join(dir, "bundle.raucb"),
	})
	return c, client, srv, sink
}

func sha1Hex(b []byte) string {
	h := sha1.Sum(b) //nolint:gosec
	return hex.EncodeToString(h[:])
}

func TestWorkerSuccessfulInstallableDownload(t *testing.T) {
	body := []byte("0123456789")
	c, client, srv, sink := newCoordinator(t, body)
	defer srv.Close()

	w := New(client, logger.New("test"), installerRecorder{}, false)

	d := action.Deployment{
		ID:          "42",
		FeedbackURL: srv.URL + "/feedback",
		Artifact: action.Artifact{
			Name:        "fw",
			Version:     "1.0",
			Size:        int64(len(body)),
			SHA1:        sha1Hex(body),
			DownloadURL: srv.URL + "/bundle",
		},
		DoInstall: true,
	}

	w.Start(context.Background(), c, d)

	details := sink.details(t)
	require.GreaterOrEqual(t, len(details), 1)
	assert.Contains(t, details[0], "Download complete")
}

func TestWorkerChecksumMismatchFails(t *testing.T) {
	body := []byte("0123456789")
	c, client, srv, sink := newCoordinator(t, body)
	defer srv.Close()

	w := New(client, logger.New("test"), nil, false)

	d := action.Deployment{
		ID:          "42",
		FeedbackURL: srv.URL + "/feedback",
		Artifact: action.Artifact{
			Name:        "fw",
			Version:     "1.0",
			Size:        int64(len(body)),
			SHA1:        "0000000000000000000000000000000000000000",
			DownloadURL: srv.URL + "/bundle",
		},
		DoInstall: true,
	}

	w.Start(context.Background(), c, d)

	details := sink.details(t)
	var sawFailure bool
	for _, payload := range sink.payloads {
		st := payload["status"].(map[string]interface{})
		res := st["result"].(map[string]interface{})
		if res["finished"] == "failure" {
			sawFailure = true
		}
	}
	assert.True(t, sawFailure, "expected a failure feedback, got details: %v", details)
}

func TestWorkerKeepsFileWhenDoInstallFalseAndWindowAvailable(t *testing.T) {
	body := []byte("abc")
	c, client, srv, _ := newCoordinator(t, body)
	defer srv.Close()

	w := New(client, logger.New("test"), nil, false)

	d := action.Deployment{
		ID:          "7",
		FeedbackURL: srv.URL + "/feedback",
		Artifact: action.Artifact{
			Name:        "fw",
			Version:     "1.0",
			Size:        int64(len(body)),
			SHA1:        sha1Hex(body),
			DownloadURL: srv.URL + "/bundle",
		},
		DoInstall:         false,
		MaintenanceWindow: "available",
	}

	w.Start(context.Background(), c, d)

	_, err := os.Stat(c.BundlePath())
	assert.NoError(t, err, "bundle file should be retained")
	assert.Equal(t, action.None, c.State())
}

type installerRecorder struct{}

func (installerRecorder) Start(ctx context.Context, c *action.Coordinator, r action.InstallRequest) {
	c.Complete(ctx, action.Success, r.FeedbackURL, feedback.Success(r.ID, "Software bundle installed successfully."), "", false, true)
}
