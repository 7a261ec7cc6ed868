// ABOUTME: One-shot clock offset estimation against the remote time authority
// ABOUTME: Offset converts local wall-clock milliseconds into server milliseconds
package timesync

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Offset is local minus server clock in milliseconds.
// Positive means the local machine is ahead and the server lags behind.
type Offset int64

// ToRemote projects a local millisecond timestamp onto the server clock
func (o Offset) ToRemote(localMs int64) int64 {
	return localMs - int64(o)
}

// Duration returns the offset as a time.Duration
func (o Offset) Duration() time.Duration {
	return time.Duration(o) * time.Millisecond
}

// TimeSource is a remote authority that reports its clock in milliseconds
type TimeSource interface {
	ServerTime(ctx context.Context) (int64, error)
}

// Synchronizer estimates the offset with a single round trip
type Synchronizer struct {
	source TimeSource
	clock  clockwork.Clock
}

// NewSynchronizer creates a synchronizer. A nil clock uses the real clock.
func NewSynchronizer(source TimeSource, clock clockwork.Clock) *Synchronizer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Synchronizer{source: source, clock: clock}
}

// Synchronize performs one request and returns the estimated offset.
// The server's timestamp is assumed to be taken at the round trip midpoint.
func (s *Synchronizer) Synchronize(ctx context.Context) (Offset, error) {
	t0 := s.clock.Now().UnixMilli()
	server, err := s.source.ServerTime(ctx)
	if err != nil {
		return 0, fmt.Errorf("time sync failed: %w", err)
	}
	t1 := s.clock.Now().UnixMilli()

	offset := ComputeOffset(t0, t1, server)

	lag := "your local machine lags behind"
	if offset > 0 {
		lag = "the server lags behind"
	}
	log.Info().
		Int64("server_ms", server).
		Int64("rtt_ms", t1-t0).
		Int64("offset_ms", int64(offset)).
		Msgf("Time difference between local and server time is %dms, %s", offset, lag)

	return offset, nil
}

// ComputeOffset returns round((t0+t1)/2) - server
func ComputeOffset(t0, t1, server int64) Offset {
	midpoint := int64(math.Round(float64(t0+t1) / 2))
	return Offset(midpoint - server)
}
