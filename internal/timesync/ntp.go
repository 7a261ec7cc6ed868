// ABOUTME: Optional NTP cross-check of the local clock
// ABOUTME: Warns the operator when the machine clock is far off true time
package timesync

import (
	"fmt"
	"time"

	"github.com/beevik/ntp"
	"github.com/rs/zerolog/log"
)

// DefaultNTPThreshold is the local clock error above which CheckNTP warns
const DefaultNTPThreshold = time.Second

var ntpQuery = ntp.Query

// CheckNTP queries server and reports the local clock error.
// It only logs; the game clock always uses the broadcast server's offset.
func CheckNTP(server string, threshold time.Duration) (time.Duration, error) {
	resp, err := ntpQuery(server)
	if err != nil {
		return 0, fmt.Errorf("ntp query %s: %w", server, err)
	}
	if err := resp.Validate(); err != nil {
		return 0, fmt.Errorf("ntp response from %s: %w", server, err)
	}

	offset := resp.ClockOffset
	abs := offset
	if abs < 0 {
		abs = -abs
	}

	event := log.Info()
	if abs > threshold {
		event = log.Warn()
	}
	event.
		Str("ntp_server", server).
		Dur("clock_offset", offset).
		Dur("rtt", resp.RTT).
		Msg("Local clock compared against NTP")

	return offset, nil
}
