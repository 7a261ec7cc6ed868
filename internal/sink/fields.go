// ABOUTME: Output file names shared with the overlay software
// ABOUTME: These names are a contract and must not change
package sink

import (
	"strings"

	"github.com/quidditchlive/overlay-feed/internal/state"
)

// Field is one output file, named exactly as the overlays expect it
type Field string

const (
	ScoreA    Field = "scoreA.txt"
	ScoreB    Field = "scoreB.txt"
	TeamNameA Field = "teamnameA.txt"
	TeamNameB Field = "teamnameB.txt"
	ColorA    Field = "colorA.png"
	ColorB    Field = "colorB.png"
	JerseyA   Field = "jerseyA.png"
	JerseyB   Field = "jerseyB.png"
	LogoA     Field = "logoA.png"
	LogoB     Field = "logoB.png"
	GameTime  Field = "gametime.txt"
	Connected Field = "connected.txt"
)

// AllFields lists every file cleared before a session starts
func AllFields() []Field {
	return []Field{
		ScoreA, ScoreB,
		TeamNameA, TeamNameB,
		ColorA, ColorB,
		JerseyA, JerseyB,
		LogoA, LogoB,
		GameTime, Connected,
	}
}

// IsImage reports whether the field holds binary image data
func (f Field) IsImage() bool {
	return strings.HasSuffix(string(f), ".png")
}

// ScoreField returns the score file for a side
func ScoreField(s state.Side) Field {
	return Field("score" + string(s) + ".txt")
}

// TeamNameField returns the team name file for a side
func TeamNameField(s state.Side) Field {
	return Field("teamname" + string(s) + ".txt")
}

// ImageField returns the image file for an asset kind ("logo", "jersey", "color") and side
func ImageField(kind string, s state.Side) Field {
	return Field(kind + string(s) + ".png")
}
