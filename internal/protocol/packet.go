// ABOUTME: Engine.IO and Socket.IO text framing over a websocket
// ABOUTME: Encodes and decodes the packet prefixes used by the stream
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Engine.IO packet types
const (
	EngineOpen    byte = '0'
	EngineClose   byte = '1'
	EnginePing    byte = '2'
	EnginePong    byte = '3'
	EngineMessage byte = '4'
	EngineUpgrade byte = '5'
	EngineNoop    byte = '6'
)

// Socket.IO packet types, carried inside an Engine.IO message
const (
	SocketConnect      byte = '0'
	SocketDisconnect   byte = '1'
	SocketEvent        byte = '2'
	SocketAck          byte = '3'
	SocketConnectError byte = '4'
)

// DefaultNamespace is the root Socket.IO namespace
const DefaultNamespace = "/"

// DefaultEngineIOVersion is the Engine.IO revision spoken by current servers
const DefaultEngineIOVersion = 4

var (
	ErrEmptyFrame  = errors.New("empty frame")
	ErrNotAnEvent  = errors.New("packet is not an event")
	ErrEmptyEvent  = errors.New("event without a name")
	ErrBadEngineIO = errors.New("unsupported Engine.IO version")
)

// Packet is one decoded text frame
type Packet struct {
	Engine    byte
	Socket    byte // Zero unless Engine is EngineMessage
	Namespace string
	AckID     string
	Data      []byte // Remaining JSON payload, possibly empty
}

// Event is a decoded Socket.IO event
type Event struct {
	Name string
	Args []json.RawMessage
}

// Endpoint describes where and how to open the websocket
type Endpoint struct {
	URL       string // ws:// or wss:// URL including the Engine.IO query
	Namespace string
}

// ResolveEndpoint turns a socket address such as https://host/api into the
// websocket URL and namespace, the way Socket.IO clients interpret it:
// the URL path names the namespace and the transport lives under /socket.io/.
func ResolveEndpoint(socketAddress string, eioVersion int) (Endpoint, error) {
	if eioVersion != 3 && eioVersion != 4 {
		return Endpoint{}, fmt.Errorf("%w: %d", ErrBadEngineIO, eioVersion)
	}

	u, err := url.Parse(socketAddress)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid socket address %q: %w", socketAddress, err)
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return Endpoint{}, fmt.Errorf("invalid socket address %q: unsupported scheme", socketAddress)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("invalid socket address %q: missing host", socketAddress)
	}

	namespace := strings.TrimRight(u.Path, "/")
	if namespace == "" {
		namespace = DefaultNamespace
	}

	q := url.Values{}
	q.Set("EIO", fmt.Sprint(eioVersion))
	q.Set("transport", "websocket")

	u.Path = "/socket.io/"
	u.RawQuery = q.Encode()
	u.Fragment = ""

	return Endpoint{URL: u.String(), Namespace: namespace}, nil
}

// Decode parses one text frame
func Decode(frame string) (Packet, error) {
	if frame == "" {
		return Packet{}, ErrEmptyFrame
	}

	p := Packet{Engine: frame[0]}
	rest := frame[1:]

	if p.Engine != EngineMessage {
		p.Data = []byte(rest)
		return p, nil
	}

	if rest == "" {
		return Packet{}, fmt.Errorf("message frame without socket packet type")
	}
	p.Socket = rest[0]
	rest = rest[1:]

	// Binary attachment counts ("51-") are not used by this stream
	p.Namespace = DefaultNamespace
	if strings.HasPrefix(rest, "/") {
		end := strings.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = rest
			rest = ""
		} else {
			p.Namespace = rest[:end]
			rest = rest[end+1:]
		}
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	p.AckID = rest[:i]
	p.Data = []byte(rest[i:])

	return p, nil
}

// Event decodes the payload of a Socket.IO event packet
func (p Packet) Event() (Event, error) {
	if p.Engine != EngineMessage || p.Socket != SocketEvent {
		return Event{}, ErrNotAnEvent
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(p.Data, &raw); err != nil {
		return Event{}, fmt.Errorf("malformed event payload: %w", err)
	}
	if len(raw) == 0 {
		return Event{}, ErrEmptyEvent
	}

	var ev Event
	if err := json.Unmarshal(raw[0], &ev.Name); err != nil {
		return Event{}, fmt.Errorf("malformed event name: %w", err)
	}
	ev.Args = raw[1:]
	return ev, nil
}

// Arg decodes the i-th event argument into v
func (e Event) Arg(i int, v any) error {
	if i >= len(e.Args) {
		return fmt.Errorf("event %q has no argument %d", e.Name, i)
	}
	return json.Unmarshal(e.Args[i], v)
}

// EncodeEvent builds "42<ns>,[name,args...]"
func EncodeEvent(namespace, name string, args ...any) (string, error) {
	payload := make([]any, 0, len(args)+1)
	payload = append(payload, name)
	payload = append(payload, args...)

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode event %q: %w", name, err)
	}
	return socketFrame(SocketEvent, namespace, data), nil
}

// EncodeConnect builds the namespace connect request (or, server side, the ack)
func EncodeConnect(namespace string, payload any) (string, error) {
	if payload == nil {
		return socketFrame(SocketConnect, namespace, nil), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return socketFrame(SocketConnect, namespace, data), nil
}

// EncodeDisconnect builds a namespace disconnect
func EncodeDisconnect(namespace string) string {
	return socketFrame(SocketDisconnect, namespace, nil)
}

// EncodeOpen builds the Engine.IO handshake frame
func EncodeOpen(open OpenPayload) (string, error) {
	data, err := json.Marshal(open)
	if err != nil {
		return "", err
	}
	return string(EngineOpen) + string(data), nil
}

// Ping and Pong frames carry no payload
const (
	PingFrame = string(EnginePing)
	PongFrame = string(EnginePong)
)

func socketFrame(kind byte, namespace string, data []byte) string {
	var b strings.Builder
	b.WriteByte(EngineMessage)
	b.WriteByte(kind)
	if namespace != "" && namespace != DefaultNamespace {
		b.WriteString(namespace)
		b.WriteByte(',')
	}
	b.Write(data)
	return b.String()
}
