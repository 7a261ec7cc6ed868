// ABOUTME: Fixed-interval loop driving gametime.txt and connected.txt
// ABOUTME: Reads the latest snapshot each tick and writes only on change
package gameclock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/quidditchlive/overlay-feed/internal/sink"
	"github.com/quidditchlive/overlay-feed/internal/state"
	"github.com/quidditchlive/overlay-feed/internal/timesync"
)

// DefaultInterval is the tick period, the finest resolution a display could need
const DefaultInterval = 10 * time.Millisecond

// ErrNoGameTime is reported for snapshots without a gametime record
var ErrNoGameTime = errors.New("snapshot has no gametime")

// FieldWriter is the part of the sink the engine needs
type FieldWriter interface {
	WriteIfChanged(field sink.Field, value string) <-chan sink.Result
}

// Config holds engine configuration
type Config struct {
	Interval          time.Duration
	LivenessThreshold time.Duration
	Clock             clockwork.Clock

	// Optional observers, called from the engine goroutine on change only
	OnDisplay  func(display string)
	OnLiveness func(connected bool)
	OnError    func(err error)
}

// Reading is what one tick computed
type Reading struct {
	ElapsedMs int64
	Display   string
	Connected *bool // Nil when the snapshot carries no heartbeat
}

// Engine reconstructs the game clock from the latest snapshot
type Engine struct {
	config Config
	store  state.Reader
	offset timesync.Offset
	out    FieldWriter

	lastDisplay   string
	lastConnected *bool
}

// NewEngine creates an engine. Zero config values fall back to defaults.
func NewEngine(config Config, store state.Reader, offset timesync.Offset, out FieldWriter) *Engine {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.LivenessThreshold <= 0 {
		config.LivenessThreshold = DefaultLivenessThreshold
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	return &Engine{
		config: config,
		store:  store,
		offset: offset,
		out:    out,
	}
}

// Run ticks until ctx is cancelled. A failing tick is logged and skipped;
// the loop itself never stops on its own because it is the only thing
// that notices a silent timekeeper.
func (e *Engine) Run(ctx context.Context) {
	ticker := e.config.Clock.NewTicker(e.config.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", e.config.Interval).Msg("Game clock loop started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if _, err := e.Tick(); err != nil {
				log.Error().Err(err).Msg("Game clock tick skipped")
				if e.config.OnError != nil {
					e.config.OnError(err)
				}
			}
		}
	}
}

// Tick performs one update. It returns a zero Reading and no error
// while no snapshot has arrived yet.
func (e *Engine) Tick() (reading Reading, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("game clock tick panicked: %v", r)
		}
	}()

	snap, ok := e.store.Current()
	if !ok {
		return Reading{}, nil
	}
	if snap.GameTime == nil {
		return Reading{}, ErrNoGameTime
	}

	remoteNow := e.offset.ToRemote(e.config.Clock.Now().UnixMilli())

	reading.ElapsedMs = Elapsed(*snap.GameTime, remoteNow)
	reading.Display = Format(reading.ElapsedMs)

	if reading.Display != e.lastDisplay {
		e.lastDisplay = reading.Display
		e.out.WriteIfChanged(sink.GameTime, reading.Display)
		if e.config.OnDisplay != nil {
			e.config.OnDisplay(reading.Display)
		}
	}

	if aliveMs, ok := snap.AliveMillis(); ok {
		connected := Alive(remoteNow, aliveMs, e.config.LivenessThreshold)
		reading.Connected = &connected

		if e.lastConnected == nil || *e.lastConnected != connected {
			e.lastConnected = &connected
			e.out.WriteIfChanged(sink.Connected, formatBool(connected))
			e.logLiveness(connected)
			if e.config.OnLiveness != nil {
				e.config.OnLiveness(connected)
			}
		}
	}

	return reading, nil
}

func (e *Engine) logLiveness(connected bool) {
	if connected {
		log.Info().Msg("The timekeeper is currently connected")
		return
	}
	log.Warn().Msg("The timekeeper is currently not connected")
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
