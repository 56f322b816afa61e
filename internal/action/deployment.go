// SPDX-License-Identifier: LGPL-2.1-only

package action

import (
	"context"
	"fmt"
	"os"

	"github.com/rauc/rauc-hawkbit-updater/internal/diskspace"
	"github.com/rauc/rauc-hawkbit-updater/internal/feedback"
	"github.com/rauc/rauc-hawkbit-updater/internal/jsonutil"
)

const (
	downloadSkip = "skip"
	updateSkip   = "skip"
)

// ProcessDeployment implements process_deployment: given the base-poll
// response root (which must contain _links.deploymentBase), fetch the
// deployment detail, validate it, and hand off to the download worker
// (staged mode) or install driver (streaming mode).
func (c *Coordinator) ProcessDeployment(ctx context.Context, baseRoot interface{}) error {
	c.mu.Lock()
	if c.state.atLeastProcessing() {
		c.mu.Unlock()
		return ErrAlreadyInProgress
	}
	c.state = Processing
	c.mu.Unlock()

	href, ok := jsonutil.GetString(baseRoot, "$._links.deploymentBase.href")
	if !ok {
		c.abandon(nil)
		return nil
	}

	detail, err := c.client.Get(ctx, href)
	if err != nil {
		c.abandon(err)
		return fmt.Errorf("fetching deployment detail: %w", err)
	}

	id, ok := jsonutil.GetString(detail, "$.id")
	if !ok {
		c.abandon(nil)
		return &jsonutil.MissingPathError{Path: "$.id"}
	}

	downloadMode, _ := jsonutil.GetString(detail, "$.deployment.download")
	updateMode, _ := jsonutil.GetString(detail, "$.deployment.update")
	maintenance, _ := jsonutil.GetString(detail, "$.deployment.maintenanceWindow")

	if downloadMode == downloadSkip {
		c.abandon(nil)
		return nil
	}

	if updateMode == updateSkip {
		c.mu.Lock()
		unchanged := c.keptBundleID == id
		c.mu.Unlock()
		if unchanged {
			c.abandon(nil)
			return nil
		}
	}

	doInstall := updateMode != updateSkip

	feedbackURL := c.client.DeploymentFeedbackURL(id)

	chunks, ok := jsonutil.GetArray(detail, "$.deployment.chunks")
	if !ok || len(chunks) != 1 {
		detailMsg := fmt.Sprintf("Deployment %s unsupported: cannot handle multiple chunks.", id)
		c.Complete(ctx, Error, feedbackURL, feedback.Failure(id, detailMsg), "", false, false)
		return ErrUnsupportedMultiChunk
	}
	chunk := chunks[0]

	artifacts, ok := jsonutil.GetArray(chunk, "$.artifacts")
	if !ok || len(artifacts) != 1 {
		detailMsg := fmt.Sprintf("Deployment %s unsupported: cannot handle multiple artifacts.", id)
		c.Complete(ctx, Error, feedbackURL, feedback.Failure(id, detailMsg), "", false, false)
		return ErrUnsupportedMultiArtifact
	}
	artifactNode := artifacts[0]

	version, _ := jsonutil.GetString(chunk, "$.version")
	name, _ := jsonutil.GetString(chunk, "$.name")
	size, _ := jsonutil.GetInt64(artifactNode, "$.size")
	sha1, _ := jsonutil.GetString(artifactNode, "$.hashes.sha1")

	downloadURL, ok := jsonutil.GetString(artifactNode, "$._links.download.href")
	if !ok {
		downloadURL, _ = jsonutil.GetString(artifactNode, "$._links['download-http'].href")
	}

	artifact := Artifact{Name: name, Version: version, Size: size, SHA1: sha1, DownloadURL: downloadURL}

	if updateMode == updateSkip {
		// download-only, superseding a different prior action: the file
		// left over from a previous do_install=false/keep-file deployment
		// no longer applies.
		c.mu.Lock()
		if c.keptBundleID != "" && c.keptBundleID != id {
			c.keptBundleID = ""
			_ = os.Remove(c.opts.BundleDownloadLocation)
		}
		c.mu.Unlock()
	}

	if c.opts.StreamBundle {
		c.mu.Lock()
		if c.state == CancelRequested {
			c.mu.Unlock()
			c.abandon(nil)
			return nil
		}
		c.state = Installing
		c.actionID = id
		c.mu.Unlock()

		req := InstallRequest{
			ID:          id,
			FeedbackURL: feedbackURL,
			Name:        name,
			Version:     version,
			BundlePath:  downloadURL,
			Streaming:   true,
			AuthHeader:  c.client.AuthorizationHeaderValue(),
			TLSVerify:   c.opts.SSLVerify,
			TLSKey:      c.opts.SSLKey,
			TLSCert:     c.opts.SSLCert,
		}
		go c.dispatchInstall(ctx, req)
		return nil
	}

	free, err := diskspace.Available(c.opts.BundleDownloadLocation)
	if err != nil {
		c.Complete(ctx, Error, feedbackURL, feedback.Failure(id, "Unable to determine available disk space."), "", false, false)
		return fmt.Errorf("statfs: %w", err)
	}
	if free < artifact.Size {
		c.Complete(ctx, Error, feedbackURL, feedback.Failure(id, "Insufficient disk space for artifact."), "", false, false)
		return ErrInsufficientSpace
	}

	c.mu.Lock()
	c.state = Downloading
	c.actionID = id
	c.mu.Unlock()

	deployment := Deployment{
		ID:                id,
		FeedbackURL:       feedbackURL,
		Artifact:          artifact,
		DoInstall:         doInstall,
		MaintenanceWindow: maintenance,
	}
	go c.downloader.Start(ctx, c, deployment)
	return nil
}

// BundlePath returns the configured on-disk destination for staged
// downloads.
func (c *Coordinator) BundlePath() string {
	return c.opts.BundleDownloadLocation
}

// SendDownloadAuthentication mirrors config's send_download_authentication.
func (c *Coordinator) SendDownloadAuthentication() bool {
	return c.opts.SendDownloadAuthentication
}
