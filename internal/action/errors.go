// SPDX-License-Identifier: LGPL-2.1-only

package action

import "errors"

// ErrAlreadyInProgress is returned by ProcessDeployment when an action is
// already underway; it is informational, not a failure, and carries no
// feedback (spec §4.4, §8).
var ErrAlreadyInProgress = errors.New("an action is already in progress")

// ErrUnsupportedMultiChunk/ErrUnsupportedMultiArtifact are the uncorrectable
// protocol misfits RAUC cannot handle: one bundle, period.
var (
	ErrUnsupportedMultiChunk    = errors.New("deployment carries more than one chunk")
	ErrUnsupportedMultiArtifact = errors.New("chunk carries more than one artifact")
)

// ErrInsufficientSpace is returned when the download destination's
// filesystem does not have room for the artifact.
var ErrInsufficientSpace = errors.New("insufficient disk space for artifact")
