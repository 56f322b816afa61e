// SPDX-License-Identifier: LGPL-2.1-only

// Package svcglue wires the pieces built by the other components into a
// runnable process: CLI parsing, configuration loading, logger setup,
// service-manager (systemd) integration and the reboot side effect,
// mirroring what main() and hawkbit_start_service_sync() do in the
// original C agent.
package svcglue

import (
	"flag"
	"fmt"
	"io"
)

// version is reported by -v/--version. The original agent prints a single
// fixed build version; this one does the same.
const version = "1.0"

// CLIOptions mirrors the original agent's GOptionEntry table.
type CLIOptions struct {
	ConfigFile    string
	Version       bool
	Debug         bool
	RunOnce       bool
	OutputSystemd bool
}

// ParseArgs parses argv (excluding the program name) the way
// g_option_context_parse_strv does, accepting both short and long forms.
func ParseArgs(args []string, errOut io.Writer) (*CLIOptions, error) {
	fs := flag.NewFlagSet("rauc-hawkbit-updater", flag.ContinueOnError)
	fs.SetOutput(errOut)

	opts := &CLIOptions{}
	addStringFlag(fs, &opts.ConfigFile, "config-file", "c", "", "Configuration file")
	addBoolFlag(fs, &opts.Version, "version", "v", false, "Version information")
	addBoolFlag(fs, &opts.Debug, "debug", "d", false, "Enable debug output")
	addBoolFlag(fs, &opts.RunOnce, "run-once", "r", false, "Check and install new software and exit")
	addBoolFlag(fs, &opts.OutputSystemd, "output-systemd", "s", false, "Enable output to systemd")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func addStringFlag(fs *flag.FlagSet, p *string, long, short, def, usage string) {
	fs.StringVar(p, long, def, usage)
	fs.StringVar(p, short, def, usage+" (shorthand)")
}

func addBoolFlag(fs *flag.FlagSet, p *bool, long, short string, def bool, usage string) {
	fs.BoolVar(p, long, def, usage)
	fs.BoolVar(p, short, def, usage+" (shorthand)")
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "Version %s\n", version)
}
