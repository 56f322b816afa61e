// SPDX-License-Identifier: LGPL-2.1-only

// Command rauc-hawkbit-updater is the device-side agent: it polls a
// hawkBit DDI server for deployments, downloads and verifies RAUC
// bundles, and drives the local RAUC executor over D-Bus to install them.
package main

import (
	"context"
	"os"

	"github.com/rauc/rauc-hawkbit-updater/internal/svcglue"
)

func main() {
	os.Exit(svcglue.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
