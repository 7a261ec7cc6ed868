// ABOUTME: Tests for the TUI wrapper
// ABOUTME: Covers status coalescing and shutdown ordering
package ui

import (
	"io"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headless() []tea.ProgramOption {
	return []tea.ProgramOption{tea.WithInput(nil), tea.WithOutput(io.Discard), tea.WithoutSignalHandler()}
}

func TestUpdateKeepsStateChangesDuringClockBurst(t *testing.T) {
	tui := New(NewControl(), headless()...)
	offset := int64(42)

	tui.Update(StatusMsg{Stream: "connected", OffsetMs: &offset})
	tui.Update(StatusMsg{ServerError: "Unknown game"})
	for i := 0; i < 500; i++ {
		tui.Update(StatusMsg{GameTime: "00:01"})
	}
	tui.Update(StatusMsg{Stream: "terminated"})
	tui.Update(StatusMsg{GameTime: "00:02"})

	status, ok := tui.take()
	require.True(t, ok)
	assert.Equal(t, "terminated", status.Stream)
	assert.Equal(t, "Unknown game", status.ServerError)
	assert.Equal(t, "00:02", status.GameTime)
	require.NotNil(t, status.OffsetMs)
	assert.Equal(t, int64(42), *status.OffsetMs)

	_, ok = tui.take()
	assert.False(t, ok)
}

func TestMergeKeepsScoresPaired(t *testing.T) {
	merged := StatusMsg{ScoreA: "30*", ScoreB: "10°"}.merge(StatusMsg{ScoreA: "40"})
	assert.Equal(t, "40", merged.ScoreA)
	assert.Equal(t, "", merged.ScoreB)

	merged = StatusMsg{Snapshots: 9}.merge(StatusMsg{Snapshots: 3})
	assert.Equal(t, uint64(9), merged.Snapshots)
}

func TestStopWaitsForRunToReturn(t *testing.T) {
	tui := New(NewControl(), headless()...)

	runErr := make(chan error, 1)
	go func() { runErr <- tui.Run() }()

	tui.Update(StatusMsg{Stream: "connected"})
	tui.Stop()

	select {
	case <-tui.done:
	default:
		t.Fatal("Stop returned before the program exited")
	}

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestStopAfterProgramAlreadyExited(t *testing.T) {
	tui := New(NewControl(), headless()...)

	go tui.Run()
	tui.program.Quit()

	select {
	case <-tui.done:
	case <-time.After(2 * time.Second):
		t.Fatal("program did not exit")
	}

	stopped := make(chan struct{})
	go func() {
		tui.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after the program exited")
	}
}
