// SPDX-License-Identifier: LGPL-2.1-only

// Package config loads the INI-style configuration file described in the
// [client]/[device] sections of the DDI agent's external interface.
package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// Defaults mirror config-file.c's DEFAULT_* constants, extended with the
// fields the full feature set (streaming, resume, reboot, mTLS) adds.
const (
	defaultTenantID       = "DEFAULT"
	defaultSSL            = true
	defaultSSLVerify      = true
	defaultConnectTimeout = 20
	defaultTimeout        = 60
	defaultRetryWait      = 300
	defaultLowSpeedTime   = 60
	defaultLowSpeedRate   = 100
	defaultLogLevel       = "message"
)

// Config is the immutable, process-wide configuration loaded once at
// startup by the service glue, which copies the fields each component
// needs into that component's own options.
type Config struct {
	HawkbitServer string
	ControllerID  string
	TenantID      string

	AuthToken    string
	GatewayToken string
	SSLKey       string
	SSLCert      string
	SSLEngine    string

	SSL       bool
	SSLVerify bool

	BundleDownloadLocation string

	ConnectTimeout int
	Timeout        int
	RetryWait      int

	LowSpeedTime int
	LowSpeedRate int

	ResumeDownloads            bool
	StreamBundle               bool
	PostUpdateReboot           bool
	SendDownloadAuthentication bool
	RequireConfirmation        bool

	LogLevel string

	Device map[string]string
}

// Load parses the INI file at path and validates the invariants named in
// spec.md §6/§7: exactly one auth method, timeout >= connect_timeout,
// bundle_download_location required unless streaming, and at least one
// [device] attribute.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	client := f.Section("client")
	c := &Config{
		TenantID:                   client.Key("tenant_id").MustString(defaultTenantID),
		SSL:                        client.Key("ssl").MustBool(defaultSSL),
		SSLVerify:                  client.Key("ssl_verify").MustBool(defaultSSLVerify),
		ConnectTimeout:             client.Key("connect_timeout").MustInt(defaultConnectTimeout),
		Timeout:                    client.Key("timeout").MustInt(defaultTimeout),
		RetryWait:                  client.Key("retry_wait").MustInt(defaultRetryWait),
		LowSpeedTime:               client.Key("low_speed_time").MustInt(defaultLowSpeedTime),
		LowSpeedRate:               client.Key("low_speed_rate").MustInt(defaultLowSpeedRate),
		ResumeDownloads:            client.Key("resume_downloads").MustBool(false),
		StreamBundle:               client.Key("stream_bundle").MustBool(false),
		PostUpdateReboot:           client.Key("post_update_reboot").MustBool(false),
		SendDownloadAuthentication: client.Key("send_download_authentication").MustBool(true),
		RequireConfirmation:        client.Key("require_confirmation").MustBool(false),
		LogLevel:                   client.Key("log_level").MustString(defaultLogLevel),

		HawkbitServer: client.Key("hawkbit_server").String(),
		ControllerID:  client.Key("target_name").String(),
		AuthToken:     client.Key("auth_token").String(),
		GatewayToken:  client.Key("gateway_token").String(),
		SSLKey:        client.Key("ssl_key").String(),
		SSLCert:       client.Key("ssl_cert").String(),
		SSLEngine:     client.Key("ssl_engine").String(),

		BundleDownloadLocation: client.Key("bundle_download_location").String(),
	}

	if c.HawkbitServer == "" {
		return nil, fmt.Errorf("hawkbit_server is required in [client]")
	}
	if c.ControllerID == "" {
		return nil, fmt.Errorf("target_name is required in [client]")
	}

	if err := c.validateAuth(); err != nil {
		return nil, err
	}

	if c.BundleDownloadLocation == "" && !c.StreamBundle {
		return nil, fmt.Errorf("bundle_download_location is required unless stream_bundle=true")
	}

	if c.Timeout > 0 && c.ConnectTimeout > 0 && c.Timeout < c.ConnectTimeout {
		return nil, fmt.Errorf("timeout (%d) must be >= connect_timeout (%d)", c.Timeout, c.ConnectTimeout)
	}

	device := f.Section("device")
	keys := device.Keys()
	if len(keys) == 0 {
		return nil, fmt.Errorf("[device] section must have at least one attribute")
	}
	c.Device = make(map[string]string, len(keys))
	for _, k := range keys {
		v := k.String()
		if v == "" {
			return nil, fmt.Errorf("[device] attribute %q must not be empty", k.Name())
		}
		c.Device[k.Name()] = v
	}

	return c, nil
}

func (c *Config) validateAuth() error {
	hasToken := c.AuthToken != ""
	hasGateway := c.GatewayToken != ""
	hasCert := c.SSLKey != "" && c.SSLCert != ""

	n := 0
	if hasToken {
		n++
	}
	if hasGateway {
		n++
	}
	if hasCert {
		n++
	}
	switch {
	case n == 0:
		return fmt.Errorf("exactly one of auth_token, gateway_token, or ssl_key+ssl_cert must be set")
	case n > 1:
		return fmt.Errorf("only one of auth_token, gateway_token, or ssl_key+ssl_cert may be set")
	}
	if (c.SSLKey != "") != (c.SSLCert != "") {
		return fmt.Errorf("ssl_key and ssl_cert must both be set or both be unset")
	}
	return nil
}
