// ABOUTME: Scripted match played by the development server
// ABOUTME: Drives clock start/stop, goals, heartbeats and a snitch catch
package mockserver

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quidditchlive/overlay-feed/internal/state"
)

// Step is one scripted change applied at a beat of the scenario
type Step func(snap *state.Snapshot, nowMs int64)

// Scenario maps beat numbers to steps. Beats without a step only
// refresh the timekeeper heartbeat.
type Scenario struct {
	Beat  time.Duration
	Steps map[int]Step
	Loop  int // Restart after this many beats; zero plays once
}

// StartClock starts the game clock if it is stopped
func StartClock(snap *state.Snapshot, nowMs int64) {
	gt := ensureGameTime(snap)
	if gt.Running {
		return
	}
	gt.Running = true
	gt.LastStart = nowMs
}

// StopClock stops the game clock and banks the running period
func StopClock(snap *state.Snapshot, nowMs int64) {
	gt := ensureGameTime(snap)
	if !gt.Running {
		return
	}
	gt.LastStop += nowMs - gt.LastStart
	gt.Running = false
}

// Goal adds ten points to side
func Goal(side state.Side) Step {
	return func(snap *state.Snapshot, nowMs int64) {
		ts := snap.Score[side]
		ts.Total += 10
		snap.Score[side] = ts
	}
}

// CatchSnitch awards the catch to side and stops the clock
func CatchSnitch(side state.Side) Step {
	return func(snap *state.Snapshot, nowMs int64) {
		ts := snap.Score[side]
		ts.Total += 30
		ts.SnitchCaught = true
		snap.Score[side] = ts
		StopClock(snap, nowMs)
	}
}

// Heartbeat refreshes the timekeeper liveness timestamp
func Heartbeat(snap *state.Snapshot, nowMs int64) {
	alive := float64(nowMs) / 1000
	snap.AliveTimestamp = &alive
}

// Reset returns the match to a stopped 0-0 with the given teams
func Reset(teams map[state.Side]state.Team) Step {
	return func(snap *state.Snapshot, nowMs int64) {
		snap.GameTime = &state.GameTime{}
		snap.Score = map[state.Side]state.TeamScore{state.SideA: {}, state.SideB: {}}
		snap.Teams = make(map[state.Side]state.Team, len(teams))
		for side, team := range teams {
			snap.Teams[side] = team
		}
		snap.DataAvailable = true
	}
}

// DemoTeams are the teams of the built-in scenario
var DemoTeams = map[state.Side]state.Team{
	state.SideA: {Name: "Antwerp Quidditch Club", Logo: "antwerp.png", Jersey: "stripes", JerseyPrimaryColor: "#c8102e"},
	state.SideB: {Name: "Brussels Qwaffles", Logo: "brussels.png", Jersey: "plain", JerseyPrimaryColor: "#003da5"},
}

// Demo returns a short match: start, goals both ways, a timeout and a catch
func Demo() Scenario {
	return Scenario{
		Beat: 5 * time.Second,
		Steps: map[int]Step{
			0:  Reset(DemoTeams),
			1:  StartClock,
			4:  Goal(state.SideA),
			7:  Goal(state.SideB),
			9:  StopClock,
			12: StartClock,
			14: Goal(state.SideA),
			18: Goal(state.SideA),
			22: CatchSnitch(state.SideB),
		},
		Loop: 30,
	}
}

// Play runs the scenario against the server until ctx is done
func (s *Server) Play(ctx context.Context, sc Scenario) {
	beat := 0
	apply := func() {
		step := sc.Steps[beat]
		s.Update(func(snap *state.Snapshot, nowMs int64) {
			if step != nil {
				step(snap, nowMs)
			}
			Heartbeat(snap, nowMs)
		})
		if step != nil {
			log.Debug().Int("beat", beat).Msg("Scenario step applied")
		}

		beat++
		if sc.Loop > 0 && beat >= sc.Loop {
			beat = 0
		}
	}

	apply()

	ticker := s.config.Clock.NewTicker(sc.Beat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			apply()
		}
	}
}

func ensureGameTime(snap *state.Snapshot) *state.GameTime {
	if snap.GameTime == nil {
		snap.GameTime = &state.GameTime{}
	}
	return snap.GameTime
}
