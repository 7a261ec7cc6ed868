// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and feeds it status updates
package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Control carries signals from the TUI back to the app
type Control struct {
	Quit chan struct{}
}

// NewControl creates a control handler
func NewControl() *Control {
	return &Control{
		Quit: make(chan struct{}, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(control *Control) Model {
	return Model{
		stream:  "disconnected",
		control: control,
	}
}

// TUI runs the status panel
type TUI struct {
	program *tea.Program
	control *Control
	done    chan struct{}

	// Updates are merged into one pending message so a burst of clock
	// updates can't push out a state change.
	mu         sync.Mutex
	pending    StatusMsg
	hasPending bool
	notify     chan struct{}
}

// New creates a TUI; Run starts it
func New(control *Control, opts ...tea.ProgramOption) *TUI {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &TUI{
		program: tea.NewProgram(NewModel(control), opts...),
		control: control,
		done:    make(chan struct{}),
		notify:  make(chan struct{}, 1),
	}
}

// Run blocks until the program exits and the terminal is restored
func (t *TUI) Run() error {
	defer close(t.done)

	go t.forward()

	_, err := t.program.Run()
	return err
}

func (t *TUI) forward() {
	for {
		select {
		case <-t.notify:
		case <-t.done:
			return
		}
		if status, ok := t.take(); ok {
			t.program.Send(status)
		}
	}
}

// Update queues a status update without blocking
func (t *TUI) Update(status StatusMsg) {
	t.mu.Lock()
	t.pending = t.pending.merge(status)
	t.hasPending = true
	t.mu.Unlock()

	select {
	case t.notify <- struct{}{}:
	default:
	}
}

func (t *TUI) take() (StatusMsg, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	status, ok := t.pending, t.hasPending
	t.pending = StatusMsg{}
	t.hasPending = false
	return status, ok
}

// Stop quits the program and waits until Run has returned, so the terminal
// is out of the alt screen before anything else is printed. Run must have
// been started.
func (t *TUI) Stop() {
	t.program.Quit()
	<-t.done
}

// QuitChan returns the channel that signals when the operator wants to quit
func (t *TUI) QuitChan() <-chan struct{} {
	return t.control.Quit
}
