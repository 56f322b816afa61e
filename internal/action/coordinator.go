// SPDX-License-Identifier: LGPL-2.1-only

package action

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rauc/rauc-hawkbit-updater/internal/ddiclient"
	"github.com/rauc/rauc-hawkbit-updater/internal/feedback"
	"github.com/rauc/rauc-hawkbit-updater/internal/logger"
)

// Rebooter performs the post_update_reboot side effect. Implemented by
// internal/svcglue over golang.org/x/sys/unix so this package stays free
// of direct syscalls.
type Rebooter interface {
	Reboot() error
}

// Options carries the subset of configuration the coordinator needs to
// make deployment decisions.
type Options struct {
	BundleDownloadLocation     string
	StreamBundle               bool
	PostUpdateReboot           bool
	SendDownloadAuthentication bool
	SSLVerify                  bool
	SSLKey                     string
	SSLCert                    string

	// RequireConfirmation gates every install behind a Confirmer; see
	// SetConfirmer and RequestConfirmation.
	RequireConfirmation bool
}

// Coordinator owns the single Active Action for the process lifetime. All
// field access is guarded by mu; cond is signaled on every state
// transition so ProcessCancel and WaitForIdle can block efficiently.
type Coordinator struct {
	mu   sync.Mutex
	cond *sync.Cond

	state    State
	actionID string
	lastErr  error

	// keptBundleID is the action id whose downloaded bundle file was
	// deliberately left on disk (do_install=false, whether or not the
	// maintenance window was open), so a later superseding deployment
	// knows to clean it up.
	keptBundleID string

	client     *ddiclient.Client
	log        *logger.Object
	opts       Options
	downloader Downloader
	installer  Installer
	rebooter   Rebooter
	confirmer  Confirmer
}

// New constructs an idle Coordinator. SetDownloader/SetInstaller/SetRebooter
// complete wiring once those collaborators exist; this two-phase
// construction breaks the cycle the download worker and install driver
// have back into the coordinator that spawns them.
func New(client *ddiclient.Client, log *logger.Object, opts Options) *Coordinator {
	c := &Coordinator{client: client, log: log, opts: opts, state: None}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *Coordinator) SetDownloader(d Downloader) { c.downloader = d }
func (c *Coordinator) SetInstaller(i Installer)   { c.installer = i }
func (c *Coordinator) SetRebooter(r Rebooter)     { c.rebooter = r }
func (c *Coordinator) SetConfirmer(cf Confirmer)  { c.confirmer = cf }

// RequestConfirmation asks the configured Confirmer for sign-off before an
// install begins. It is a no-op returning (true, nil) when
// RequireConfirmation is false or no Confirmer was wired, matching
// rauc-install-confirmation.c's "component F is called directly" default.
func (c *Coordinator) RequestConfirmation(ctx context.Context, actionID, version string) (bool, error) {
	if !c.opts.RequireConfirmation || c.confirmer == nil {
		return true, nil
	}
	return c.confirmer.Confirm(ctx, actionID, version)
}

// State returns the current state under lock.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the outcome of the most recently concluded action,
// consumed by run-once mode to decide its exit code.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// WaitForIdle blocks until the active action has settled back to None,
// i.e. until every background worker it spawned has finished and been
// cleaned up. Run-once mode uses this to know when a single tick is truly
// over.
func (c *Coordinator) WaitForIdle(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		c.mu.Lock()
		for c.state != None {
			c.cond.Wait()
		}
		c.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// CancelRequested reports whether the coordinator wants the caller (the
// download worker) to abandon its work at the next checkpoint.
func (c *Coordinator) CancelRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == CancelRequested
}

// MarkCanceled transitions a CancelRequested action to Canceled and wakes
// ProcessCancel, which owns feedback and cleanup for this path.
func (c *Coordinator) MarkCanceled() {
	c.mu.Lock()
	c.state = Canceled
	c.cond.Broadcast()
	c.mu.Unlock()
}

// BeginInstalling performs the download worker's final cancel checkpoint
// and, if clear, transitions Downloading -> Installing. It reports false
// if a cancel arrived first, in which case the caller must not proceed to
// install.
func (c *Coordinator) BeginInstalling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CancelRequested {
		return false
	}
	c.state = Installing
	c.cond.Broadcast()
	return true
}

// SendFeedback posts a feedback payload, outside any lock: no component
// holds the action mutex across network I/O.
func (c *Coordinator) SendFeedback(ctx context.Context, url string, payload feedback.Payload) error {
	body, err := payload.Marshal()
	if err != nil {
		return err
	}
	return c.client.Post(ctx, url, body)
}

// dispatchInstall gates a streaming install behind RequestConfirmation
// before handing off to the Installer, so a rejected confirmation never
// reaches the executor.
func (c *Coordinator) dispatchInstall(ctx context.Context, req InstallRequest) {
	confirmed, err := c.RequestConfirmation(ctx, req.ID, req.Version)
	if err != nil || !confirmed {
		detail := "Installation was not confirmed."
		if err != nil {
			detail = fmt.Sprintf("Confirmation request failed: %v", err)
		}
		c.Complete(ctx, Error, req.FeedbackURL, feedback.Failure(req.ID, detail), "", false, false)
		return
	}
	c.installer.Start(ctx, c, req)
}

// RetainForNextPoll keeps the bundle file on disk and returns the action
// to None without sending feedback, for the do_install=false branch where
// the maintenance window is not open yet: the server will offer the same
// deployment again later.
func (c *Coordinator) RetainForNextPoll() {
	c.mu.Lock()
	c.keptBundleID = c.actionID
	c.state = None
	c.actionID = ""
	c.cond.Broadcast()
	c.mu.Unlock()
}

// abandon resets a not-yet-downloaded action back to None without
// touching any file, used by process_deployment's early-exit branches
// (download=skip, update=skip-unchanged) and validation failures that
// occur before any bytes are fetched.
func (c *Coordinator) abandon(outcome error) {
	c.mu.Lock()
	c.state = None
	c.actionID = ""
	c.lastErr = outcome
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Complete concludes an action that reached a terminal outcome after a
// download and/or install ran. It sends feedback, disposes of (or
// deliberately retains) the bundle file, resets the action to None, and —
// only when an actual install just succeeded — performs the configured
// post-update reboot.
func (c *Coordinator) Complete(ctx context.Context, outcome State, feedbackURL string, payload feedback.Payload, bundlePath string, keepFile, installed bool) {
	if feedbackURL != "" {
		if err := c.SendFeedback(ctx, feedbackURL, payload); err != nil {
			c.log.Warnf("failed to send feedback: %v", err)
		}
	}

	c.mu.Lock()
	if keepFile {
		c.keptBundleID = c.actionID
	} else {
		c.keptBundleID = ""
		if bundlePath != "" {
			_ = os.Remove(bundlePath)
		}
	}
	var outcomeErr error
	if outcome == Error {
		outcomeErr = errTerminalFailure
	}
	c.state = None
	c.actionID = ""
	c.lastErr = outcomeErr
	c.cond.Broadcast()
	c.mu.Unlock()

	if installed && outcome == Success && c.opts.PostUpdateReboot && c.rebooter != nil {
		if err := c.rebooter.Reboot(); err != nil {
			c.log.Errorf("reboot failed: %v", err)
		}
	}
}

var errTerminalFailure = &terminalFailureError{}

type terminalFailureError struct{}

func (*terminalFailureError) Error() string { return "action concluded with a terminal failure" }
