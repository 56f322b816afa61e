// SPDX-License-Identifier: LGPL-2.1-only

package svcglue

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rauc/rauc-hawkbit-updater/internal/action"
	"github.com/rauc/rauc-hawkbit-updater/internal/confirm"
	"github.com/rauc/rauc-hawkbit-updater/internal/config"
	"github.com/rauc/rauc-hawkbit-updater/internal/ddiclient"
	"github.com/rauc/rauc-hawkbit-updater/internal/download"
	"github.com/rauc/rauc-hawkbit-updater/internal/install"
	"github.com/rauc/rauc-hawkbit-updater/internal/logger"
	"github.com/rauc/rauc-hawkbit-updater/internal/pollloop"
)

// Exit codes, unchanged from the original agent's main().
const (
	ExitSuccess        = 0
	ExitArgsOrRunOnce  = 1
	ExitNoConfigFile   = 2
	ExitConfigNotFound = 3
	ExitConfigInvalid  = 4
)

// Run is the process entry point's entire body: parse args, load
// configuration, wire every component together and drive the poll loop
// until ctx is canceled (normal mode) or one tick completes (run-once).
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := ParseArgs(args, stderr)
	if err != nil {
		return ExitArgsOrRunOnce
	}

	if opts.Version {
		printVersion(stdout)
		return ExitSuccess
	}

	if opts.ConfigFile == "" {
		fmt.Fprintln(stderr, "No configuration file given")
		return ExitNoConfigFile
	}

	if _, err := os.Stat(opts.ConfigFile); err != nil {
		fmt.Fprintf(stderr, "No such configuration file: %s\n", opts.ConfigFile)
		return ExitConfigNotFound
	}

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		fmt.Fprintf(stderr, "Loading config file failed: %v\n", err)
		return ExitConfigInvalid
	}

	log := logger.New("rauc-hawkbit-updater")
	if opts.Debug {
		log.SetDebug()
	} else {
		log.SetLevel(logger.Level(cfg.LogLevel))
	}
	if opts.OutputSystemd {
		log.SetOutputSystemd()
	}

	return runService(ctx, cfg, opts.RunOnce, log)
}

func runService(ctx context.Context, cfg *config.Config, runOnce bool, log *logger.Object) int {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := ddiclient.New(ddiclient.Options{
		Server:                     cfg.HawkbitServer,
		TenantID:                   cfg.TenantID,
		ControllerID:               cfg.ControllerID,
		SSL:                        cfg.SSL,
		SSLVerify:                  cfg.SSLVerify,
		SSLKey:                     cfg.SSLKey,
		SSLCert:                    cfg.SSLCert,
		AuthToken:                  cfg.AuthToken,
		GatewayToken:               cfg.GatewayToken,
		ConnectTimeout:             time.Duration(cfg.ConnectTimeout) * time.Second,
		Timeout:                    time.Duration(cfg.Timeout) * time.Second,
		LowSpeedTime:               time.Duration(cfg.LowSpeedTime) * time.Second,
		LowSpeedRate:               int64(cfg.LowSpeedRate),
		SendDownloadAuthentication: cfg.SendDownloadAuthentication,
	}, log)
	if err != nil {
		log.Errorf("failed to build DDI client: %v", err)
		return ExitArgsOrRunOnce
	}

	coordinator := action.New(client, log, action.Options{
		BundleDownloadLocation:     cfg.BundleDownloadLocation,
		StreamBundle:               cfg.StreamBundle,
		PostUpdateReboot:           cfg.PostUpdateReboot,
		SendDownloadAuthentication: cfg.SendDownloadAuthentication,
		SSLVerify:                  cfg.SSLVerify,
		SSLKey:                     cfg.SSLKey,
		SSLCert:                    cfg.SSLCert,
		RequireConfirmation:        cfg.RequireConfirmation,
	})

	installer := install.New(log)
	downloader := download.New(client, log, installer, cfg.ResumeDownloads)
	coordinator.SetDownloader(downloader)
	coordinator.SetInstaller(installer)
	coordinator.SetRebooter(UnixRebooter{})
	if cfg.RequireConfirmation {
		coordinator.SetConfirmer(confirm.New(log))
	}

	loop := pollloop.New(client, coordinator, log, cfg.Device, time.Duration(cfg.RetryWait)*time.Second)

	notifyReady(log)
	go runWatchdog(ctx, log)
	defer notifyStopping(log)

	return loop.Run(ctx, runOnce)
}
