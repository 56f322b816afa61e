// SPDX-License-Identifier: LGPL-2.1-only

// Package diskspace answers "is there enough room for this artifact",
// the Go counterpart of hawkbit-client.c's statvfs call in get_available_space.
package diskspace

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Available returns the free space, in bytes, on the filesystem holding
// the directory of path.
func Available(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(filepath.Dir(path), &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil //nolint:unconvert // Bsize's width varies by arch
}
