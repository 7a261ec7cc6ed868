// ABOUTME: Client-side reconstruction of the running game clock
// ABOUTME: Pure helpers for elapsed time, MM:SS formatting and timekeeper liveness
package gameclock

import (
	"fmt"
	"time"

	"github.com/quidditchlive/overlay-feed/internal/state"
)

// DefaultLivenessThreshold is how old a heartbeat may be before the
// timekeeper counts as disconnected
const DefaultLivenessThreshold = 30 * time.Second

// Elapsed returns the game time in milliseconds at server time remoteNowMs.
// While running, the banked time is extended by the time since last_start.
func Elapsed(gt state.GameTime, remoteNowMs int64) int64 {
	if !gt.Running {
		return gt.LastStop
	}
	return gt.LastStop + (remoteNowMs - gt.LastStart)
}

// Format renders milliseconds as zero-padded MM:SS.
// Negative values, which only occur with a bad offset, show as 00:00.
func Format(elapsedMs int64) string {
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	minutes := elapsedMs / 60000
	seconds := (elapsedMs % 60000) / 1000
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// Alive reports whether a heartbeat at aliveMs is younger than threshold at remoteNowMs
func Alive(remoteNowMs, aliveMs int64, threshold time.Duration) bool {
	return remoteNowMs-aliveMs < threshold.Milliseconds()
}
