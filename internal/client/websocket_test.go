// ABOUTME: Tests for the stream transport
// ABOUTME: Dials a local Socket.IO server and checks decoded events
package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quidditchlive/overlay-feed/internal/mockserver"
	"github.com/quidditchlive/overlay-feed/internal/protocol"
	"github.com/quidditchlive/overlay-feed/internal/state"
)

func startMock(t *testing.T, config mockserver.Config) (*mockserver.Server, string) {
	t.Helper()
	srv := mockserver.New(config)
	srv.Update(mockserver.Reset(mockserver.DemoTeams))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts.URL + "/api"
}

func nextEvent(t *testing.T, conn *Conn) Event {
	t.Helper()
	select {
	case ev, ok := <-conn.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestDialReceivesSnapshot(t *testing.T) {
	_, addr := startMock(t, mockserver.Config{Auth: "secret"})

	conn, err := Dial(context.Background(), addr, protocol.DefaultEngineIOVersion)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, EventConnected, nextEvent(t, conn).Kind)

	require.NoError(t, conn.Emit(protocol.EventAuth, protocol.NewAuth("secret", "g1")))

	ev := nextEvent(t, conn)
	require.Equal(t, EventSnapshot, ev.Kind)
	require.NotNil(t, ev.Snapshot)
	assert.Equal(t, "Antwerp Quidditch Club", ev.Snapshot.Teams[state.SideA].Name)
}

func TestDialServerError(t *testing.T) {
	_, addr := startMock(t, mockserver.Config{Auth: "secret"})

	conn, err := Dial(context.Background(), addr, protocol.DefaultEngineIOVersion)
	require.NoError(t, err)
	defer conn.Close()

	nextEvent(t, conn)
	require.NoError(t, conn.Emit(protocol.EventAuth, protocol.NewAuth("nope", "g1")))

	ev := nextEvent(t, conn)
	assert.Equal(t, EventServerError, ev.Kind)
	assert.Equal(t, "Invalid authentication", ev.Message)
}

func TestServerDisconnectEndsEvents(t *testing.T) {
	srv, addr := startMock(t, mockserver.Config{})

	conn, err := Dial(context.Background(), addr, protocol.DefaultEngineIOVersion)
	require.NoError(t, err)
	defer conn.Close()

	nextEvent(t, conn)
	require.NoError(t, conn.Emit(protocol.EventAuth, protocol.NewAuth("x", "g1")))
	nextEvent(t, conn)

	srv.DisconnectAll()

	ev := nextEvent(t, conn)
	assert.Equal(t, EventDisconnected, ev.Kind)
	assert.Error(t, ev.Err)

	select {
	case _, ok := <-conn.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestDialUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL + "/api"
	ts.Close()

	_, err := Dial(context.Background(), addr, protocol.DefaultEngineIOVersion)
	assert.Error(t, err)
}

func TestPingIsAnswered(t *testing.T) {
	pong := make(chan string, 1)
	upgrader := websocket.Upgrader{}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		open, _ := protocol.EncodeOpen(protocol.OpenPayload{SID: "s1", PingInterval: 25000, PingTimeout: 20000})
		ws.WriteMessage(websocket.TextMessage, []byte(open))

		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		ws.WriteMessage(websocket.TextMessage, []byte("40/api,{\"sid\":\"x\"}"))
		ws.WriteMessage(websocket.TextMessage, []byte(protocol.PingFrame))

		_, data, err := ws.ReadMessage()
		if err == nil {
			pong <- string(data)
		}
		ws.ReadMessage()
	}))
	defer ts.Close()

	conn, err := Dial(context.Background(), ts.URL+"/api", protocol.DefaultEngineIOVersion)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, EventConnected, nextEvent(t, conn).Kind)

	select {
	case got := <-pong:
		assert.Equal(t, protocol.PongFrame, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no pong")
	}
}

func TestDecodeStreamEvent(t *testing.T) {
	decode := func(frame string) (Event, bool) {
		pkt, err := protocol.Decode(frame)
		require.NoError(t, err)
		ev, err := pkt.Event()
		require.NoError(t, err)
		return decodeStreamEvent(ev)
	}

	ev, ok := decode(`42/api,["err",{"msg":"Game not found"}]`)
	require.True(t, ok)
	assert.Equal(t, EventServerError, ev.Kind)
	assert.Equal(t, "Game not found", ev.Message)

	ev, ok = decode(`42/api,["err",{"msg":{"code":4}}]`)
	require.True(t, ok)
	assert.Equal(t, `{"code":4}`, ev.Message)

	_, ok = decode(`42/api,["err",{}]`)
	assert.False(t, ok)

	_, ok = decode(`42/api,["err","plain"]`)
	assert.False(t, ok)

	_, ok = decode(`42/api,["update",{}]`)
	assert.False(t, ok)

	ev, ok = decode(`42/api,["complete",{"data_available":false,"score":null}]`)
	require.True(t, ok)
	assert.Equal(t, EventSnapshot, ev.Kind)
	assert.False(t, ev.Snapshot.DataAvailable)
}
