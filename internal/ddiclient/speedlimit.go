// SPDX-License-Identifier: LGPL-2.1-only

package ddiclient

import (
	"io"
	"time"
)

// speedLimitedReader wraps a response body and tracks the average transfer
// rate since the read began. Once window has elapsed, a sustained average
// below minRate fails the read, the same condition libcurl's
// CURLOPT_LOW_SPEED_TIME/CURLOPT_LOW_SPEED_LIMIT pair aborts a stalled
// transfer on.
type speedLimitedReader struct {
	r       io.Reader
	window  time.Duration
	minRate int64
	start   time.Time
	total   int64
	aborted error
	nowFunc func() time.Time
}

func newSpeedLimitedReader(r io.Reader, window time.Duration, minRate int64) (*speedLimitedReader, func()) {
	s := &speedLimitedReader{
		r:       r,
		window:  window,
		minRate: minRate,
		start:   timeNow(),
		nowFunc: timeNow,
	}
	return s, func() {}
}

func (s *speedLimitedReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.total += int64(n)

	if s.minRate > 0 && s.window > 0 {
		elapsed := s.nowFunc().Sub(s.start)
		if elapsed >= s.window {
			rate := float64(s.total) / elapsed.Seconds()
			if rate < float64(s.minRate) {
				s.aborted = &LowSpeedAbortError{BytesPerSecond: rate}
				return n, s.aborted
			}
		}
	}
	return n, err
}

func (s *speedLimitedReader) abortErr() error {
	return s.aborted
}
