// ABOUTME: Score display strings with snitch catch markers
// ABOUTME: Pure derivation from a snapshot; writing is left to the caller
package score

import (
	"strconv"

	"github.com/quidditchlive/overlay-feed/internal/state"
)

// Markers are the suffixes appended after a side's total
type Markers struct {
	Caught   string // The side that caught the snitch
	Opponent string // The side whose opponent caught the snitch
}

// DefaultMarkers returns the markers the overlays expect by default
func DefaultMarkers() Markers {
	return Markers{Caught: "*", Opponent: "°"}
}

// Display is the rendered score per side
type Display struct {
	A string
	B string
}

// Side returns the display string for s
func (d Display) Side(s state.Side) string {
	if s == state.SideA {
		return d.A
	}
	return d.B
}

// String renders the score as "A-B"
func (d Display) String() string {
	return d.A + "-" + d.B
}

// Derive renders both sides. It returns false when the snapshot carries no
// usable score; callers must not write anything in that case.
func Derive(snap *state.Snapshot, m Markers) (Display, bool) {
	if snap == nil || !snap.DataAvailable || snap.Score == nil {
		return Display{}, false
	}

	a, okA := snap.Score[state.SideA]
	b, okB := snap.Score[state.SideB]
	if !okA || !okB {
		return Display{}, false
	}

	return Display{
		A: render(a, b, m),
		B: render(b, a, m),
	}, true
}

func render(own, other state.TeamScore, m Markers) string {
	s := strconv.Itoa(own.Total)
	switch {
	case own.SnitchCaught:
		s += m.Caught
	case other.SnitchCaught:
		s += m.Opponent
	}
	return s
}
