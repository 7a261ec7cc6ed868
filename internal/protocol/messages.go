// ABOUTME: Broadcast stream message definitions
// ABOUTME: Event names and payloads exchanged over the Socket.IO channel
package protocol

import "encoding/json"

// Event names
const (
	EventAuth     = "auth"
	EventComplete = "complete"
	EventErr      = "err"
)

// Auth is sent right after the namespace connects.
// NoDelta must stay true: every push has to be a complete state.
type Auth struct {
	Auth    string   `json:"auth"`
	Games   []string `json:"games"`
	NoDelta bool     `json:"no_delta"`
}

// NewAuth builds the auth payload for one match
func NewAuth(credential, gameID string) Auth {
	return Auth{
		Auth:    credential,
		Games:   []string{gameID},
		NoDelta: true,
	}
}

// ServerError is the payload of an "err" event
type ServerError struct {
	Msg json.RawMessage `json:"msg,omitempty"`
}

// Message returns the error text and whether a msg field was present
func (e ServerError) Message() (string, bool) {
	if len(e.Msg) == 0 || string(e.Msg) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(e.Msg, &s); err == nil {
		return s, true
	}
	return string(e.Msg), true
}

// OpenPayload is the Engine.IO handshake sent by the server
type OpenPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // Milliseconds
	PingTimeout  int      `json:"pingTimeout"`  // Milliseconds
	MaxPayload   int      `json:"maxPayload,omitempty"`
}

// ConnectError is the payload of a namespace connect refusal
type ConnectError struct {
	Message string `json:"message"`
}
