// SPDX-License-Identifier: LGPL-2.1-only

package pollloop

import (
	"fmt"
	"time"
)

// parseClockDuration parses the ISO-8601 "HH:MM:SS" clock hawkBit sends in
// config.polling.sleep.
func parseClockDuration(s string) (time.Duration, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		return 0, fmt.Errorf("unparseable polling interval %q: %w", s, err)
	}
	if h < 0 || m < 0 || sec < 0 {
		return 0, fmt.Errorf("negative polling interval %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}
