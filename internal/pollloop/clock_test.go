// SPDX-License-Identifier: LGPL-2.1-only

package pollloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClockDuration(t *testing.T) {
	d, err := parseClockDuration("00:00:30")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	d, err = parseClockDuration("01:02:03")
	require.NoError(t, err)
	assert.Equal(t, time.Hour+2*time.Minute+3*time.Second, d)
}

func TestParseClockDurationRejectsGarbage(t *testing.T) {
	_, err := parseClockDuration("not-a-clock")
	assert.Error(t, err)
}
