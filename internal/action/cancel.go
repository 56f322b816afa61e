// SPDX-License-Identifier: LGPL-2.1-only

package action

import (
	"context"

	"github.com/rauc/rauc-hawkbit-updater/internal/feedback"
	"github.com/rauc/rauc-hawkbit-updater/internal/jsonutil"
)

const cancelReasonRejected = "Cancelation impossible, installation started already."
const cancelReasonAcknowledged = "Action canceled."

// ProcessCancel implements process_cancel: fetch the cancelAction detail,
// and if its stopId names the currently active action, either wait for
// the worker to observe CancelRequested and acknowledge, or reject the
// cancel outright if installation has already started.
func (c *Coordinator) ProcessCancel(ctx context.Context, baseRoot interface{}) error {
	href, ok := jsonutil.GetString(baseRoot, "$._links.cancelAction.href")
	if !ok {
		return nil
	}

	detail, err := c.client.Get(ctx, href)
	if err != nil {
		return err
	}

	stopID, ok := jsonutil.GetString(detail, "$.cancelAction.stopId")
	if !ok {
		return &jsonutil.MissingPathError{Path: "$.cancelAction.stopId"}
	}
	feedbackURL := c.client.CancelFeedbackURL(stopID)

	c.mu.Lock()
	if stopID != c.actionID {
		c.mu.Unlock()
		return c.SendFeedback(ctx, feedbackURL, feedback.CancelAcknowledged(stopID, cancelReasonAcknowledged))
	}

	switch {
	case c.state.cancelable():
		c.state = CancelRequested
		c.cond.Broadcast()
		for c.state == CancelRequested {
			c.cond.Wait()
		}
		final := c.state
		c.mu.Unlock()

		switch final {
		case Canceled:
			err := c.SendFeedback(ctx, feedbackURL, feedback.CancelAcknowledged(stopID, cancelReasonAcknowledged))
			c.mu.Lock()
			c.state = None
			c.actionID = ""
			c.cond.Broadcast()
			c.mu.Unlock()
			return err
		case Success, Error:
			// the action already concluded while the cancel was in
			// flight; it already sent its own terminal feedback.
			return nil
		default:
			return nil
		}

	case c.state == Installing:
		c.mu.Unlock()
		return c.SendFeedback(ctx, feedbackURL, feedback.CancelRejected(stopID, cancelReasonRejected))

	default:
		// None, or already concluded: unknown/not-in-progress.
		c.mu.Unlock()
		return c.SendFeedback(ctx, feedbackURL, feedback.CancelAcknowledged(stopID, cancelReasonAcknowledged))
	}
}
