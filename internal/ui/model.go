// ABOUTME: Bubbletea model for the operator status panel
// ABOUTME: Shows stream state, clock offset, score, game time and timekeeper liveness
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Model represents the TUI state
type Model struct {
	// Connection
	stream string
	server string
	gameID string
	offset *int64

	// Match
	teamA    string
	teamB    string
	scoreA   string
	scoreB   string
	gameTime string
	alive    *bool

	// Stats
	snapshots uint64
	lastError string
	errorAt   time.Time
	outputDir string

	showDetails bool
	quitting    bool
	control     *Control

	width  int
	height int
}

// StatusMsg updates TUI state. Zero fields leave the current value alone.
type StatusMsg struct {
	Stream      string
	Server      string
	GameID      string
	OffsetMs    *int64
	TeamA       string
	TeamB       string
	ScoreA      string
	ScoreB      string
	GameTime    string
	Timekeeper  *bool
	Snapshots   uint64
	ServerError string
	OutputDir   string
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	scoreStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220")).
			Padding(0, 1)

	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	faintStyle = lipgloss.NewStyle().Faint(true)
)

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("quidditch.live overlay feed"))
	b.WriteString("\n")

	m.row(&b, "Server", m.server)
	m.row(&b, "Game", m.gameID)
	b.WriteString(headerStyle.Render("Stream: "))
	b.WriteString(streamStyle(m.stream).Render(orDash(m.stream)))
	b.WriteString("\n")
	if m.offset != nil {
		m.row(&b, "Offset", fmt.Sprintf("%+dms", *m.offset))
	} else {
		m.row(&b, "Offset", "")
	}
	b.WriteString("\n")

	b.WriteString(m.renderScoreboard())
	b.WriteString("\n\n")

	m.row(&b, "Game time", m.gameTime)
	b.WriteString(headerStyle.Render("Timekeeper: "))
	b.WriteString(renderAlive(m.alive))
	b.WriteString("\n")
	m.row(&b, "Snapshots", fmt.Sprintf("%d", m.snapshots))

	if m.lastError != "" {
		b.WriteString(headerStyle.Render("Last error: "))
		b.WriteString(badStyle.Render(m.lastError))
		b.WriteString(faintStyle.Render(" at " + m.errorAt.Format("15:04:05")))
		b.WriteString("\n")
	}

	if m.showDetails {
		b.WriteString("\n")
		m.row(&b, "Output", m.outputDir)
	}

	b.WriteString("\n")
	b.WriteString(faintStyle.Render("d:Details  q:Quit"))
	b.WriteString("\n")

	return b.String()
}

func (m Model) row(b *strings.Builder, label, value string) {
	b.WriteString(headerStyle.Render(label + ": "))
	b.WriteString(valueStyle.Render(orDash(value)))
	b.WriteString("\n")
}

func (m Model) renderScoreboard() string {
	teamA := valueStyle.Render(orDefault(m.teamA, "Team A"))
	teamB := valueStyle.Render(orDefault(m.teamB, "Team B"))
	score := scoreStyle.Render(fmt.Sprintf("%s : %s", orDash(m.scoreA), orDash(m.scoreB)))
	return lipgloss.JoinHorizontal(lipgloss.Center, teamA, score, teamB)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if m.control != nil {
			// Signal the app to stop
			select {
			case m.control.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "d":
		m.showDetails = !m.showDetails
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Stream != "" {
		m.stream = msg.Stream
	}
	if msg.Server != "" {
		m.server = msg.Server
	}
	if msg.GameID != "" {
		m.gameID = msg.GameID
	}
	if msg.OffsetMs != nil {
		m.offset = msg.OffsetMs
	}
	if msg.TeamA != "" {
		m.teamA = msg.TeamA
	}
	if msg.TeamB != "" {
		m.teamB = msg.TeamB
	}
	if msg.ScoreA != "" || msg.ScoreB != "" {
		m.scoreA = msg.ScoreA
		m.scoreB = msg.ScoreB
	}
	if msg.GameTime != "" {
		m.gameTime = msg.GameTime
	}
	if msg.Timekeeper != nil {
		m.alive = msg.Timekeeper
	}
	if msg.Snapshots > m.snapshots {
		m.snapshots = msg.Snapshots
	}
	if msg.ServerError != "" {
		m.lastError = msg.ServerError
		m.errorAt = time.Now()
	}
	if msg.OutputDir != "" {
		m.outputDir = msg.OutputDir
	}
}

// merge folds next into s with the same rules applyStatus uses
func (s StatusMsg) merge(next StatusMsg) StatusMsg {
	if next.Stream != "" {
		s.Stream = next.Stream
	}
	if next.Server != "" {
		s.Server = next.Server
	}
	if next.GameID != "" {
		s.GameID = next.GameID
	}
	if next.OffsetMs != nil {
		s.OffsetMs = next.OffsetMs
	}
	if next.TeamA != "" {
		s.TeamA = next.TeamA
	}
	if next.TeamB != "" {
		s.TeamB = next.TeamB
	}
	if next.ScoreA != "" || next.ScoreB != "" {
		s.ScoreA = next.ScoreA
		s.ScoreB = next.ScoreB
	}
	if next.GameTime != "" {
		s.GameTime = next.GameTime
	}
	if next.Timekeeper != nil {
		s.Timekeeper = next.Timekeeper
	}
	if next.Snapshots > s.Snapshots {
		s.Snapshots = next.Snapshots
	}
	if next.ServerError != "" {
		s.ServerError = next.ServerError
	}
	if next.OutputDir != "" {
		s.OutputDir = next.OutputDir
	}
	return s
}

func streamStyle(state string) lipgloss.Style {
	switch state {
	case "connected":
		return goodStyle
	case "terminated", "disconnected":
		return badStyle
	default:
		return valueStyle
	}
}

func renderAlive(alive *bool) string {
	switch {
	case alive == nil:
		return valueStyle.Render("-")
	case *alive:
		return goodStyle.Render("connected")
	default:
		return badStyle.Render("LOST")
	}
}

func orDash(s string) string {
	return orDefault(s, "-")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
