// SPDX-License-Identifier: LGPL-2.1-only

package flextimer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedIntervalTicks(t *testing.T) {
	h := NewRangeTicker(20*time.Millisecond, 20*time.Millisecond)
	defer h.Stop()

	select {
	case <-h.C:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("ticker never fired")
	}
}

func TestUpdateRearmsInterval(t *testing.T) {
	h := NewRangeTicker(time.Hour, time.Hour)
	defer h.Stop()

	h.Update(10*time.Millisecond, 10*time.Millisecond)

	select {
	case <-h.C:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("updated ticker never fired")
	}
}

func TestTickNowDoesNotBlock(t *testing.T) {
	h := NewRangeTicker(time.Hour, time.Hour)
	defer h.Stop()

	h.TickNow()
	h.TickNow() // second call must not block even though the first tick is unread

	select {
	case <-h.C:
	case <-time.After(time.Second):
		t.Fatal("expected immediate tick")
	}
}

func TestStopClosesChannel(t *testing.T) {
	h := NewRangeTicker(time.Hour, time.Hour)
	h.Stop()

	select {
	case _, ok := <-h.C:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel never closed")
	}
}
