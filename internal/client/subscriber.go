// ABOUTME: Stream subscription state machine
// ABOUTME: Authenticates, stores snapshots and fails fast on disconnect
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/quidditchlive/overlay-feed/internal/protocol"
	"github.com/quidditchlive/overlay-feed/internal/state"
)

// ErrDisconnected ends a session. There is no reconnect: a stale overlay
// must be obvious to the operator instead of silently frozen.
var ErrDisconnected = errors.New("disconnected from stream")

// State is the subscriber's connection state
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Terminated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind classifies inbound stream events
type EventKind int

const (
	EventConnected EventKind = iota
	EventSnapshot
	EventServerError
	EventDisconnected
)

// Event is one inbound occurrence on the stream
type Event struct {
	Kind     EventKind
	Snapshot *state.Snapshot // EventSnapshot
	Message  string          // EventServerError
	Err      error           // EventDisconnected cause, if known
}

// Emitter sends an outbound event
type Emitter interface {
	Emit(name string, payload any) error
}

// Stream is an open connection as seen by the subscriber
type Stream interface {
	Emitter
	Events() <-chan Event
	Close() error
}

// Dialer opens a stream; Dial with a fixed Engine.IO version satisfies it
type Dialer func(ctx context.Context, socketAddress string) (Stream, error)

// WebSocketDialer returns a Dialer for the given Engine.IO version
func WebSocketDialer(eioVersion int) Dialer {
	return func(ctx context.Context, socketAddress string) (Stream, error) {
		conn, err := Dial(ctx, socketAddress, eioVersion)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Config holds subscription parameters
type Config struct {
	SocketAddress string
	Auth          string
	GameID        string
}

// Handlers are called from the subscriber goroutine
type Handlers struct {
	OnSnapshot    func(snap *state.Snapshot)
	OnServerError func(msg string)
	OnStateChange func(s State)
}

// Subscriber is the single writer of the snapshot store
type Subscriber struct {
	config   Config
	store    *state.Store
	handlers Handlers

	state   State
	emitter Emitter
}

// NewSubscriber creates a subscriber writing into store
func NewSubscriber(config Config, store *state.Store, handlers Handlers) *Subscriber {
	return &Subscriber{
		config:   config,
		store:    store,
		handlers: handlers,
		state:    Disconnected,
	}
}

// State returns the current connection state
func (s *Subscriber) State() State {
	return s.state
}

// Run connects once and processes events until the stream ends.
// It always returns a non-nil error; ErrDisconnected on a normal loss.
func (s *Subscriber) Run(ctx context.Context, dial Dialer) error {
	if s.state != Disconnected {
		return fmt.Errorf("subscriber already %s", s.state)
	}

	s.setState(Connecting)
	stream, err := dial(ctx, s.config.SocketAddress)
	if err != nil {
		s.setState(Disconnected)
		return fmt.Errorf("connect to %s: %w", s.config.SocketAddress, err)
	}
	defer stream.Close()

	s.emitter = stream

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream.Events():
			if !ok {
				ev = Event{Kind: EventDisconnected}
			}
			if err := s.Handle(ev); err != nil {
				return err
			}
		}
	}
}

// Handle advances the state machine by one event. The returned error is
// non-nil once the subscription is over.
func (s *Subscriber) Handle(ev Event) error {
	if s.state == Terminated {
		return ErrDisconnected
	}

	switch ev.Kind {
	case EventConnected:
		s.setState(Connected)
		return s.authenticate()

	case EventSnapshot:
		if ev.Snapshot == nil {
			return nil
		}
		log.Info().Msg("New data received")
		s.store.Update(ev.Snapshot)
		if s.handlers.OnSnapshot != nil {
			s.handlers.OnSnapshot(ev.Snapshot)
		}

	case EventServerError:
		log.Error().Str("msg", ev.Message).Msg("Socket error")
		if s.handlers.OnServerError != nil {
			s.handlers.OnServerError(ev.Message)
		}

	case EventDisconnected:
		s.setState(Terminated)
		if ev.Err != nil {
			log.Error().Err(ev.Err).Msg("Disconnected")
			return fmt.Errorf("%w: %v", ErrDisconnected, ev.Err)
		}
		log.Error().Msg("Disconnected")
		return ErrDisconnected
	}

	return nil
}

func (s *Subscriber) authenticate() error {
	if s.emitter == nil {
		return fmt.Errorf("authenticate: no open stream")
	}
	if err := s.emitter.Emit(protocol.EventAuth, protocol.NewAuth(s.config.Auth, s.config.GameID)); err != nil {
		return fmt.Errorf("failed to send auth: %w", err)
	}
	log.Info().Str("game", s.config.GameID).Msg("Authentication sent")
	return nil
}

// Attach sets the emitter for callers driving Handle without Run
func (s *Subscriber) Attach(e Emitter) {
	s.emitter = e
}

func (s *Subscriber) setState(next State) {
	if s.state == next {
		return
	}
	log.Debug().Str("from", s.state.String()).Str("to", next.String()).Msg("Stream state changed")
	s.state = next
	if s.handlers.OnStateChange != nil {
		s.handlers.OnStateChange(next)
	}
}
