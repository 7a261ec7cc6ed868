// ABOUTME: Match state pushed by the broadcast stream
// ABOUTME: A Snapshot is always a complete state, never a delta
package state

import "math"

// Side identifies a team in a match
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// Sides lists both teams in file-name order
var Sides = []Side{SideA, SideB}

// Other returns the opposing side
func (s Side) Other() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// GameTime is the timekeeper's start/stop record
type GameTime struct {
	Running   bool  `json:"running"`
	LastStart int64 `json:"last_start"` // Server clock ms when the current running period began
	LastStop  int64 `json:"last_stop"`  // Elapsed ms banked before the current running period
}

// TeamScore is one side's score
type TeamScore struct {
	Total        int  `json:"total"`
	SnitchCaught bool `json:"snitch_caught"`
}

// Team carries the display attributes of a side
type Team struct {
	Name               string `json:"name"`
	Logo               string `json:"logo"`
	Jersey             string `json:"jersey"`
	JerseyPrimaryColor string `json:"jerseyPrimaryColor"`
}

// Snapshot is the latest complete state of one match.
// Treat a stored Snapshot as immutable; the stream replaces it wholesale.
type Snapshot struct {
	GameTime       *GameTime          `json:"gametime"`
	AliveTimestamp *float64           `json:"alive_timestamp,omitempty"` // Server clock seconds of the last timekeeper heartbeat
	Score          map[Side]TeamScore `json:"score"`
	Teams          map[Side]Team      `json:"teams"`
	DataAvailable  bool               `json:"data_available"`
}

// AliveMillis returns the heartbeat in server milliseconds, if present
func (s *Snapshot) AliveMillis() (int64, bool) {
	if s.AliveTimestamp == nil {
		return 0, false
	}
	return int64(math.Round(*s.AliveTimestamp * 1000)), true
}
