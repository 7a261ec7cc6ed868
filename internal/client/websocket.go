// ABOUTME: WebSocket transport for the broadcast event stream
// ABOUTME: Speaks Engine.IO/Socket.IO and turns frames into subscriber events
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/quidditchlive/overlay-feed/internal/protocol"
	"github.com/quidditchlive/overlay-feed/internal/state"
)

const handshakeTimeout = 5 * time.Second

// Conn is one open stream connection
type Conn struct {
	ws        *websocket.Conn
	namespace string
	open      protocol.OpenPayload
	eio       int

	writeMu sync.Mutex
	events  chan Event

	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens the websocket, completes the Engine.IO handshake and requests
// the namespace. EventConnected follows once the server acknowledges it.
func Dial(ctx context.Context, socketAddress string, eioVersion int) (*Conn, error) {
	endpoint, err := protocol.ResolveEndpoint(socketAddress, eioVersion)
	if err != nil {
		return nil, err
	}

	log.Info().Str("url", endpoint.URL).Str("namespace", endpoint.Namespace).Msg("Establishing connection")

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout
	ws, _, err := dialer.DialContext(ctx, endpoint.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	c := &Conn{
		ws:        ws,
		namespace: endpoint.Namespace,
		eio:       eioVersion,
		events:    make(chan Event, 16),
		done:      make(chan struct{}),
	}

	if err := c.handshake(); err != nil {
		ws.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()
	if eioVersion == 3 {
		// Engine.IO v3 clients drive the heartbeat
		go c.pingLoop()
	}

	return c, nil
}

// handshake reads the Engine.IO open packet and asks for the namespace
func (c *Conn) handshake() error {
	c.ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read open packet: %w", err)
	}
	c.ws.SetReadDeadline(time.Time{})

	pkt, err := protocol.Decode(string(data))
	if err != nil {
		return err
	}
	if pkt.Engine != protocol.EngineOpen {
		return fmt.Errorf("expected open packet, got type %q", pkt.Engine)
	}
	if err := json.Unmarshal(pkt.Data, &c.open); err != nil {
		return fmt.Errorf("failed to parse open packet: %w", err)
	}

	log.Debug().Str("sid", c.open.SID).Int("ping_interval_ms", c.open.PingInterval).Msg("Engine.IO session opened")

	connect, err := protocol.EncodeConnect(c.namespace, nil)
	if err != nil {
		return err
	}
	return c.writeFrame(connect)
}

// Events delivers decoded stream events. It is closed after EventDisconnected.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Emit sends a Socket.IO event on the connection's namespace
func (c *Conn) Emit(name string, payload any) error {
	frame, err := protocol.EncodeEvent(c.namespace, name, payload)
	if err != nil {
		return err
	}
	return c.writeFrame(frame)
}

// Close tears the websocket down
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) writeFrame(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (c *Conn) push(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// readMessages decodes frames until the connection ends
func (c *Conn) readMessages() {
	defer close(c.events)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.push(Event{Kind: EventDisconnected, Err: fmt.Errorf("read: %w", err)})
			return
		}

		pkt, err := protocol.Decode(string(data))
		if err != nil {
			log.Warn().Err(err).Msg("Ignoring undecodable frame")
			continue
		}

		switch pkt.Engine {
		case protocol.EnginePing:
			if err := c.writeFrame(protocol.PongFrame); err != nil {
				log.Warn().Err(err).Msg("Failed to answer ping")
			}
		case protocol.EnginePong, protocol.EngineNoop:
		case protocol.EngineClose:
			c.push(Event{Kind: EventDisconnected, Err: fmt.Errorf("server closed the session")})
			return
		case protocol.EngineMessage:
			if ev, ok := c.socketEvent(pkt); ok {
				if !c.push(ev) {
					return
				}
				if ev.Kind == EventDisconnected {
					return
				}
			}
		default:
			log.Debug().Str("type", string(pkt.Engine)).Msg("Unhandled Engine.IO packet")
		}
	}
}

// socketEvent maps a Socket.IO packet on our namespace to a subscriber event
func (c *Conn) socketEvent(pkt protocol.Packet) (Event, bool) {
	if pkt.Namespace != c.namespace {
		log.Debug().Str("namespace", pkt.Namespace).Msg("Ignoring packet for foreign namespace")
		return Event{}, false
	}

	switch pkt.Socket {
	case protocol.SocketConnect:
		return Event{Kind: EventConnected}, true

	case protocol.SocketDisconnect:
		return Event{Kind: EventDisconnected, Err: fmt.Errorf("server disconnected namespace %s", c.namespace)}, true

	case protocol.SocketConnectError:
		var ce protocol.ConnectError
		json.Unmarshal(pkt.Data, &ce)
		return Event{Kind: EventDisconnected, Err: fmt.Errorf("connection refused: %s", ce.Message)}, true

	case protocol.SocketEvent:
		ev, err := pkt.Event()
		if err != nil {
			log.Warn().Err(err).Msg("Ignoring malformed event")
			return Event{}, false
		}
		return decodeStreamEvent(ev)

	default:
		log.Debug().Str("type", string(pkt.Socket)).Msg("Unhandled Socket.IO packet")
		return Event{}, false
	}
}

func decodeStreamEvent(ev protocol.Event) (Event, bool) {
	switch ev.Name {
	case protocol.EventComplete:
		var snap state.Snapshot
		if err := ev.Arg(0, &snap); err != nil {
			log.Error().Err(err).Msg("Could not decode snapshot")
			return Event{}, false
		}
		return Event{Kind: EventSnapshot, Snapshot: &snap}, true

	case protocol.EventErr:
		var se protocol.ServerError
		if err := ev.Arg(0, &se); err != nil {
			log.Debug().Err(err).Msg("Ignoring err event without object payload")
			return Event{}, false
		}
		msg, ok := se.Message()
		if !ok {
			return Event{}, false
		}
		return Event{Kind: EventServerError, Message: msg}, true

	default:
		log.Debug().Str("event", ev.Name).Msg("Ignoring unknown event")
		return Event{}, false
	}
}

func (c *Conn) pingLoop() {
	interval := time.Duration(c.open.PingInterval) * time.Millisecond
	if interval <= 0 {
		interval = 25 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.writeFrame(protocol.PingFrame); err != nil {
				log.Warn().Err(err).Msg("Ping failed")
				return
			}
		case <-c.done:
			return
		}
	}
}
