// SPDX-License-Identifier: LGPL-2.1-only

// Package download implements the background download worker (component
// E): a resumable HTTPS transfer with sha1 verification and progress
// feedback, grounded on the do_download/resume loop in hawkbit-client.c.
package download

import (
	"context"
	"crypto/sha1" //nolint:gosec // protocol-mandated digest, not used for authentication
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rauc/rauc-hawkbit-updater/internal/action"
	"github.com/rauc/rauc-hawkbit-updater/internal/ddiclient"
	"github.com/rauc/rauc-hawkbit-updater/internal/feedback"
	"github.com/rauc/rauc-hawkbit-updater/internal/logger"
)

// retryDelay separates consecutive resumable-error retries; overridable by
// tests.
var retryDelay = 500 * time.Millisecond

// Worker is the single background download task the coordinator spawns
// for a staged deployment. It satisfies action.Downloader.
type Worker struct {
	client          *ddiclient.Client
	log             *logger.Object
	installer       action.Installer
	resumeDownloads bool
}

// New builds a Worker. installer is the install driver to hand off to
// when a deployment's do_install flag is set; it may be nil, in which case
// an installable deployment concludes with a failure feedback after its
// download.
func New(client *ddiclient.Client, log *logger.Object, installer action.Installer, resumeDownloads bool) *Worker {
	return &Worker{client: client, log: log, installer: installer, resumeDownloads: resumeDownloads}
}

// Start implements action.Downloader.
func (w *Worker) Start(ctx context.Context, c *action.Coordinator, d action.Deployment) {
	bundlePath := c.BundlePath()

	if c.CancelRequested() {
		_ = os.Remove(bundlePath)
		c.MarkCanceled()
		return
	}

	start := time.Now()
	written, err := w.downloadWithResume(ctx, c, bundlePath, d)
	if err != nil {
		if errors.Is(err, errCanceled) {
			return
		}
		w.log.Warnf("download of %s failed: %v", d.Artifact.Name, err)
		_ = os.Remove(bundlePath)
		c.Complete(ctx, action.Error, d.FeedbackURL,
			feedback.Failure(d.ID, fmt.Sprintf("Download failed: %v", err)), "", false, false)
		return
	}

	elapsed := time.Since(start)
	speedMBps := 0.0
	if elapsed > 0 {
		speedMBps = (float64(written) / (1024 * 1024)) / elapsed.Seconds()
	}
	if err := c.SendFeedback(ctx, d.FeedbackURL, feedback.Progress(d.ID, fmt.Sprintf("Download complete. %.2f MB/s", speedMBps))); err != nil {
		w.log.Warnf("failed to send download-complete feedback: %v", err)
	}

	sum, err := sha1File(bundlePath)
	if err != nil {
		w.log.Warnf("failed to compute checksum: %v", err)
		_ = os.Remove(bundlePath)
		c.Complete(ctx, action.Error, d.FeedbackURL, feedback.Failure(d.ID, "Unable to verify checksum."), "", false, false)
		return
	}

	if sum != d.Artifact.SHA1 {
		detail := fmt.Sprintf("Software: %s V%s. Invalid checksum: %s expected %s", d.Artifact.Name, d.Artifact.Version, sum, d.Artifact.SHA1)
		w.log.Errorf("%s", detail)
		_ = os.Remove(bundlePath)
		c.Complete(ctx, action.Error, d.FeedbackURL, feedback.Failure(d.ID, detail), "", false, false)
		return
	}

	if err := c.SendFeedback(ctx, d.FeedbackURL, feedback.Progress(d.ID, "File checksum OK.")); err != nil {
		w.log.Warnf("failed to send checksum-ok feedback: %v", err)
	}

	if c.CancelRequested() {
		_ = os.Remove(bundlePath)
		c.MarkCanceled()
		return
	}

	if !d.DoInstall {
		if d.MaintenanceWindow == "" || d.MaintenanceWindow == "available" {
			c.Complete(ctx, action.Success, d.FeedbackURL,
				feedback.Success(d.ID, "Software bundle downloaded successfully."), bundlePath, true, false)
			return
		}
		// Unknown maintenance-window values are treated as "unavailable"
		// (spec's open question), same as the explicit value.
		c.RetainForNextPoll()
		return
	}

	if !c.BeginInstalling() {
		_ = os.Remove(bundlePath)
		c.MarkCanceled()
		return
	}

	if w.installer == nil {
		c.Complete(ctx, action.Error, d.FeedbackURL, feedback.Failure(d.ID, "No install driver configured."), "", false, false)
		return
	}

	req := action.InstallRequest{
		ID:          d.ID,
		FeedbackURL: d.FeedbackURL,
		Name:        d.Artifact.Name,
		Version:     d.Artifact.Version,
		BundlePath:  bundlePath,
		Streaming:   false,
	}

	confirmed, err := c.RequestConfirmation(ctx, req.ID, req.Version)
	if err != nil || !confirmed {
		detail := "Installation was not confirmed."
		if err != nil {
			detail = fmt.Sprintf("Confirmation request failed: %v", err)
		}
		_ = os.Remove(bundlePath)
		c.Complete(ctx, action.Error, d.FeedbackURL, feedback.Failure(d.ID, detail), "", false, false)
		return
	}

	w.installer.Start(ctx, c, req)
}

var errCanceled = errors.New("download canceled")

// downloadWithResume drives the resumable transfer loop: attempt, and on
// a resumable transport error with resume enabled, sleep and retry from
// the current on-disk offset; any other error is terminal.
func (w *Worker) downloadWithResume(ctx context.Context, c *action.Coordinator, bundlePath string, d action.Deployment) (int64, error) {
	resumeFrom := int64(0)
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if w.resumeDownloads {
		if info, err := os.Stat(bundlePath); err == nil {
			resumeFrom = info.Size()
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
	}

	for {
		if c.CancelRequested() {
			return 0, errCanceled
		}

		f, err := os.OpenFile(bundlePath, flags, 0o644)
		if err != nil {
			return 0, fmt.Errorf("open destination: %w", err)
		}

		result, dlErr := w.client.Download(ctx, d.Artifact.DownloadURL, f, resumeFrom, c.SendDownloadAuthentication())
		closeErr := f.Close()
		if dlErr == nil && closeErr != nil {
			dlErr = closeErr
		}

		if dlErr == nil {
			total := resumeFrom + result.BytesWritten
			return total, nil
		}

		if c.CancelRequested() {
			return 0, errCanceled
		}

		if w.resumeDownloads && ddiclient.IsResumable(dlErr) {
			w.log.Debugf("resumable download error, retrying: %v", dlErr)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
			if info, statErr := os.Stat(bundlePath); statErr == nil {
				resumeFrom = info.Size()
			}
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
			continue
		}

		return 0, dlErr
	}
}

func sha1File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New() //nolint:gosec
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
