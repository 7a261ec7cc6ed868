// ABOUTME: Tests for the subscription state machine
// ABOUTME: Drives Handle with synthetic events and Run against the dev server
package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quidditchlive/overlay-feed/internal/mockserver"
	"github.com/quidditchlive/overlay-feed/internal/protocol"
	"github.com/quidditchlive/overlay-feed/internal/state"
)

type emitted struct {
	name    string
	payload any
}

type fakeStream struct {
	sent   []emitted
	events chan Event
	closed bool
	err    error
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan Event, 8)}
}

func (f *fakeStream) Emit(name string, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, emitted{name, payload})
	return nil
}

func (f *fakeStream) Events() <-chan Event { return f.events }

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

func (f *fakeStream) dialer() Dialer {
	return func(ctx context.Context, socketAddress string) (Stream, error) {
		return f, nil
	}
}

func newSubscriber(handlers Handlers) (*Subscriber, *state.Store) {
	store := state.NewStore()
	sub := NewSubscriber(Config{SocketAddress: "https://quidditch.live/api", Auth: "secret", GameID: "1234"}, store, handlers)
	return sub, store
}

func TestConnectedSendsAuth(t *testing.T) {
	sub, _ := newSubscriber(Handlers{})
	stream := newFakeStream()
	sub.Attach(stream)

	require.NoError(t, sub.Handle(Event{Kind: EventConnected}))
	assert.Equal(t, Connected, sub.State())

	require.Len(t, stream.sent, 1)
	assert.Equal(t, protocol.EventAuth, stream.sent[0].name)
	assert.Equal(t, protocol.Auth{Auth: "secret", Games: []string{"1234"}, NoDelta: true}, stream.sent[0].payload)
}

func TestConnectedWithoutStream(t *testing.T) {
	sub, _ := newSubscriber(Handlers{})
	assert.Error(t, sub.Handle(Event{Kind: EventConnected}))
}

func TestAuthSendFailure(t *testing.T) {
	sub, _ := newSubscriber(Handlers{})
	stream := newFakeStream()
	stream.err = errors.New("broken pipe")
	sub.Attach(stream)

	assert.ErrorContains(t, sub.Handle(Event{Kind: EventConnected}), "broken pipe")
}

func TestSnapshotReplacesStore(t *testing.T) {
	var seen []*state.Snapshot
	sub, store := newSubscriber(Handlers{
		OnSnapshot: func(snap *state.Snapshot) { seen = append(seen, snap) },
	})

	first := &state.Snapshot{DataAvailable: true, Score: map[state.Side]state.TeamScore{state.SideA: {Total: 10}}}
	second := &state.Snapshot{DataAvailable: false}

	require.NoError(t, sub.Handle(Event{Kind: EventSnapshot, Snapshot: first}))
	require.NoError(t, sub.Handle(Event{Kind: EventSnapshot, Snapshot: second}))

	cur, ok := store.Current()
	require.True(t, ok)
	assert.Same(t, second, cur)
	assert.Equal(t, []*state.Snapshot{first, second}, seen)
	assert.Equal(t, uint64(2), store.Updates())
}

func TestNilSnapshotIgnored(t *testing.T) {
	sub, store := newSubscriber(Handlers{})
	require.NoError(t, sub.Handle(Event{Kind: EventSnapshot}))
	_, ok := store.Current()
	assert.False(t, ok)
}

func TestServerErrorKeepsConnection(t *testing.T) {
	var msgs []string
	sub, _ := newSubscriber(Handlers{OnServerError: func(msg string) { msgs = append(msgs, msg) }})
	sub.Attach(newFakeStream())

	require.NoError(t, sub.Handle(Event{Kind: EventConnected}))
	require.NoError(t, sub.Handle(Event{Kind: EventServerError, Message: "Invalid authentication"}))

	assert.Equal(t, Connected, sub.State())
	assert.Equal(t, []string{"Invalid authentication"}, msgs)
}

func TestDisconnectTerminates(t *testing.T) {
	var states []State
	sub, _ := newSubscriber(Handlers{OnStateChange: func(s State) { states = append(states, s) }})
	sub.Attach(newFakeStream())

	require.NoError(t, sub.Handle(Event{Kind: EventConnected}))
	err := sub.Handle(Event{Kind: EventDisconnected, Err: errors.New("transport close")})
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Equal(t, Terminated, sub.State())

	// Terminal: nothing revives it
	assert.ErrorIs(t, sub.Handle(Event{Kind: EventConnected}), ErrDisconnected)
	assert.Equal(t, []State{Connected, Terminated}, states)
}

func TestRunWithFakeStream(t *testing.T) {
	var states []State
	sub, store := newSubscriber(Handlers{OnStateChange: func(s State) { states = append(states, s) }})
	stream := newFakeStream()

	stream.events <- Event{Kind: EventConnected}
	stream.events <- Event{Kind: EventSnapshot, Snapshot: &state.Snapshot{DataAvailable: true}}
	close(stream.events)

	err := sub.Run(context.Background(), stream.dialer())
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.True(t, stream.closed)
	assert.Equal(t, uint64(1), store.Updates())
	assert.Equal(t, []State{Connecting, Connected, Terminated}, states)
}

func TestRunDialFailure(t *testing.T) {
	sub, _ := newSubscriber(Handlers{})
	dial := func(ctx context.Context, addr string) (Stream, error) {
		return nil, errors.New("connection refused")
	}

	err := sub.Run(context.Background(), dial)
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, Disconnected, sub.State())
}

func TestRunStopsOnCancel(t *testing.T) {
	sub, _ := newSubscriber(Handlers{})
	stream := newFakeStream()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sub.Run(ctx, stream.dialer()), context.Canceled)
}

func TestRunOnlyOnce(t *testing.T) {
	sub, _ := newSubscriber(Handlers{})
	stream := newFakeStream()
	close(stream.events)

	sub.Run(context.Background(), stream.dialer())
	assert.Error(t, sub.Run(context.Background(), stream.dialer()))
}

func TestRunAgainstDevServer(t *testing.T) {
	srv, addr := startMock(t, mockserver.Config{Auth: "secret", GameID: "1234"})

	snapshots := make(chan *state.Snapshot, 8)
	store := state.NewStore()
	sub := NewSubscriber(Config{SocketAddress: addr, Auth: "secret", GameID: "1234"}, store, Handlers{
		OnSnapshot: func(snap *state.Snapshot) { snapshots <- snap },
	})

	done := make(chan error, 1)
	go func() { done <- sub.Run(context.Background(), WebSocketDialer(protocol.DefaultEngineIOVersion)) }()

	waitSnapshot := func() *state.Snapshot {
		select {
		case snap := <-snapshots:
			return snap
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot")
			return nil
		}
	}

	first := waitSnapshot()
	assert.Equal(t, "Brussels Qwaffles", first.Teams[state.SideB].Name)

	srv.Update(mockserver.Goal(state.SideB))
	second := waitSnapshot()
	assert.Equal(t, 10, second.Score[state.SideB].Total)

	cur, ok := store.Current()
	require.True(t, ok)
	assert.Same(t, second, cur)

	srv.DisconnectAll()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrDisconnected)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after disconnect")
	}
	assert.Equal(t, Terminated, sub.State())
}
