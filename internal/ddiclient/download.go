// SPDX-License-Identifier: LGPL-2.1-only

package ddiclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DownloadResult reports the outcome of a single (possibly resumed)
// transfer attempt.
type DownloadResult struct {
	Status       int
	BytesWritten int64
	Duration     time.Duration
}

// Download GETs url and copies the response body to dest. resumeFrom, when
// non-zero, is sent as a byte Range so an interrupted transfer can be
// continued without redownloading bytes already on disk; the caller is
// responsible for having dest positioned to append at that offset.
//
// sendAuth mirrors config's send_download_authentication: artifact storage
// backends are frequently a different host than the DDI controller itself,
// and attaching the controller's bearer token there can leak it to a third
// party, so the caller may suppress it.
func (c *Client) Download(ctx context.Context, url string, dest io.Writer, resumeFrom int64, sendAuth bool) (DownloadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return DownloadResult{}, &TransportError{Op: "build download request", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/octet-stream")
	if resumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}
	if sendAuth {
		if key, value := c.authHeader(); key != "" {
			req.Header.Set(key, value)
		}
	}

	start := timeNow()
	resp, err := c.http.Do(req)
	if err != nil {
		return DownloadResult{}, &TransportError{Op: "GET " + url, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	case http.StatusRequestedRangeNotSatisfiable:
		// The server reports no bytes remain past resumeFrom: the file on
		// disk is already complete.
		return DownloadResult{Status: resp.StatusCode, Duration: timeNow().Sub(start)}, nil
	default:
		return DownloadResult{Status: resp.StatusCode}, &HTTPStatusError{Method: http.MethodGet, URL: url, Status: resp.StatusCode}
	}

	limited, cancel := newSpeedLimitedReader(resp.Body, c.opts.LowSpeedTime, c.opts.LowSpeedRate)
	defer cancel()

	n, copyErr := io.Copy(dest, limited)
	result := DownloadResult{Status: resp.StatusCode, BytesWritten: n, Duration: timeNow().Sub(start)}
	if copyErr != nil {
		if abortErr := limited.abortErr(); abortErr != nil {
			return result, abortErr
		}
		return result, &TransportError{Op: "read download body", Err: copyErr}
	}
	return result, nil
}

// timeNow is overridable by tests.
var timeNow = time.Now
