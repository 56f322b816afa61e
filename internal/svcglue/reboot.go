// SPDX-License-Identifier: LGPL-2.1-only

package svcglue

import (
	"golang.org/x/sys/unix"
)

// UnixRebooter implements action.Rebooter with a real reboot(2) syscall,
// the Go counterpart of the sync()+reboot() pair pillar's bpftrace-helper
// uses before a power cycle.
type UnixRebooter struct{}

// Reboot flushes buffered filesystem writes and asks the kernel to restart
// the machine.
func (UnixRebooter) Reboot() error {
	unix.Sync()
	return unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART)
}
