// SPDX-License-Identifier: LGPL-2.1-only

package ddiclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/net/http2"
)

func TestIsResumableClassifiesTransientFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"low speed abort", &LowSpeedAbortError{BytesPerSecond: 1}, true},
		{"context deadline", &TransportError{Op: "GET", Err: context.DeadlineExceeded}, true},
		{"dns error", &TransportError{Op: "GET", Err: &url.Error{Op: "Get", URL: "x", Err: &net.DNSError{Name: "x", IsTimeout: true}}}, true},
		{"http2 stream reset", &TransportError{Op: "GET", Err: http2.StreamError{Code: http2.ErrCodeCancel}}, true},
		{"http2 goaway", &TransportError{Op: "GET", Err: http2.GoAwayError{ErrCode: http2.ErrCodeNo}}, true},
		{"plain error", fmt.Errorf("boom"), false},
		{"wrapped plain error", fmt.Errorf("outer: %w", errors.New("boom")), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsResumable(tc.err))
		})
	}
}
