// SPDX-License-Identifier: LGPL-2.1-only

package action

import "context"

// Artifact describes the single downloadable bundle a deployment carries.
// Multi-chunk and multi-artifact deployments are rejected before an
// Artifact is ever built (spec §4.4): RAUC installs exactly one bundle.
type Artifact struct {
	Name        string
	Version     string
	Size        int64
	SHA1        string
	DownloadURL string
}

// Deployment is the parsed result of a deploymentBase resource, handed to
// the Downloader (staged mode) once process_deployment has decided the
// action should proceed.
type Deployment struct {
	ID                string
	FeedbackURL       string
	Artifact          Artifact
	DoInstall         bool
	MaintenanceWindow string // "available", "unavailable", "" (absent), or any other server value
}

// InstallRequest is handed to the Installer, either after a staged
// download completes and checksum-validates, or directly for a streaming
// install.
type InstallRequest struct {
	ID          string
	FeedbackURL string
	Name        string
	Version     string

	// BundlePath is a local filesystem path in staged mode, or the
	// artifact's remote URL in streaming mode.
	BundlePath string
	Streaming  bool

	AuthHeader string
	TLSVerify  bool
	TLSKey     string
	TLSCert    string
}

// Downloader is the background download worker (component E). Start runs
// synchronously on the calling goroutine; callers that must not block the
// poll loop invoke it via `go`.
type Downloader interface {
	Start(ctx context.Context, c *Coordinator, d Deployment)
}

// Installer is the background install driver (component F). Start runs
// synchronously on the calling goroutine and returns once the executor's
// completed signal (or peer disappearance) has produced a terminal status.
type Installer interface {
	Start(ctx context.Context, c *Coordinator, r InstallRequest)
}

// Confirmer requests operator/RAUC sign-off before an install begins, the
// optional de.pengutronix.rauc.InstallConfirmation gate implemented by
// internal/confirm. Confirm blocks until a ConfirmationStatus signal
// arrives or ctx is canceled.
type Confirmer interface {
	Confirm(ctx context.Context, actionID, version string) (bool, error)
}
