// SPDX-License-Identifier: LGPL-2.1-only

package svcglue

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgsLongAndShortForms(t *testing.T) {
	var errBuf bytes.Buffer

	opts, err := ParseArgs([]string{"-c", "/etc/foo.conf", "-d", "-r"}, &errBuf)
	require.NoError(t, err)
	assert.Equal(t, "/etc/foo.conf", opts.ConfigFile)
	assert.True(t, opts.Debug)
	assert.True(t, opts.RunOnce)
	assert.False(t, opts.Version)

	opts, err = ParseArgs([]string{"--config-file", "/etc/bar.conf", "--output-systemd"}, &errBuf)
	require.NoError(t, err)
	assert.Equal(t, "/etc/bar.conf", opts.ConfigFile)
	assert.True(t, opts.OutputSystemd)
}

func TestParseArgsRejectsUnknownFlag(t *testing.T) {
	var errBuf bytes.Buffer
	_, err := ParseArgs([]string{"--not-a-real-flag"}, &errBuf)
	assert.Error(t, err)
}
