// SPDX-License-Identifier: LGPL-2.1-only

package ddiclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"

	"golang.org/x/net/http2"
)

// IsResumable reports whether err is the kind of transient transport
// failure after which the download worker should retry the same bundle
// from its current on-disk offset rather than starting over or giving up.
// hawkbit-client.c keys this off a fixed table of libcurl CURLE_* codes
// (couldn't resolve host, couldn't connect, operation timed out, partial
// file, send/recv error, SSL connect error); net/http surfaces the same
// failure classes through *net.DNSError, *net.OpError, context deadline
// errors and io.ErrUnexpectedEOF, so this inspects the unwrapped chain for
// those instead of a string-matched code table.
func IsResumable(err error) bool {
	if err == nil {
		return false
	}

	var lowSpeed *LowSpeedAbortError
	if errors.As(err, &lowSpeed) {
		return true
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		err = transportErr.Err
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// A mid-download HTTP/2 stream reset or server GOAWAY (connection
	// recycling, load shedding) is the same kind of transient failure as
	// a dropped TCP connection: retry from the current offset.
	var streamErr http2.StreamError
	if errors.As(err, &streamErr) {
		return true
	}
	var goAwayErr http2.GoAwayError
	if errors.As(err, &goAwayErr) {
		return true
	}

	return false
}
