// ABOUTME: Local stand-in for the broadcast service
// ABOUTME: Serves the PHP endpoints and a Socket.IO stream for one scripted match
package mockserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/quidditchlive/overlay-feed/internal/protocol"
	"github.com/quidditchlive/overlay-feed/internal/remote"
	"github.com/quidditchlive/overlay-feed/internal/state"
)

// Config holds server configuration
type Config struct {
	Auth         string        // Accepted credential; empty accepts any
	GameID       string        // Accepted game id; empty accepts any
	Namespace    string        // Socket.IO namespace, "/api" like production
	Skew         time.Duration // Server clock minus real clock
	PingInterval time.Duration
	Clock        clockwork.Clock
}

// Server is a single-match broadcast server
type Server struct {
	config   Config
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	match    state.Snapshot
	sessions map[string]*session
}

type session struct {
	id     string
	ws     *websocket.Conn
	authed bool

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// New creates a server with an empty, stopped match
func New(config Config) *Server {
	if config.Namespace == "" {
		config.Namespace = "/api"
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 25 * time.Second
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			// Development server for trusted local networks
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		match: state.Snapshot{
			GameTime:      &state.GameTime{},
			Score:         map[state.Side]state.TeamScore{state.SideA: {}, state.SideB: {}},
			Teams:         map[state.Side]state.Team{},
			DataAvailable: true,
		},
		sessions: make(map[string]*session),
	}
}

// Handler returns the HTTP handler for all endpoints
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(remote.ServerTimePath, s.handleServerTime)
	mux.HandleFunc(remote.StreamingSettingsPath, s.handleStreamingSettings)
	mux.HandleFunc("/socket.io/", s.handleSocket)
	mux.HandleFunc("/src/img/logo/", s.handleLogo)
	mux.HandleFunc("/src/svg/jerseys/", s.handleJersey)
	return mux
}

// Now returns the server clock in milliseconds
func (s *Server) Now() int64 {
	return s.config.Clock.Now().Add(s.config.Skew).UnixMilli()
}

// Snapshot returns a copy of the current match state
func (s *Server) Snapshot() state.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.match)
}

// Update mutates the match and pushes the complete state to every
// authenticated session
func (s *Server) Update(mutate func(snap *state.Snapshot, nowMs int64)) {
	s.mu.Lock()
	mutate(&s.match, s.Now())
	snap := clone(s.match)
	targets := s.authedSessions()
	s.mu.Unlock()

	for _, sess := range targets {
		s.sendSnapshot(sess, snap)
	}
}

// SendError emits an "err" event to every authenticated session
func (s *Server) SendError(msg string) {
	s.mu.RLock()
	targets := s.authedSessions()
	s.mu.RUnlock()

	for _, sess := range targets {
		s.emit(sess, protocol.EventErr, map[string]string{"msg": msg})
	}
}

// DisconnectAll disconnects every session from the namespace
func (s *Server) DisconnectAll() {
	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.Unlock()

	for _, sess := range targets {
		s.write(sess, protocol.EncodeDisconnect(s.config.Namespace))
		s.closeSession(sess)
	}
}

// Subscribers returns the number of authenticated sessions
func (s *Server) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.authedSessions())
}

func (s *Server) handleServerTime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, remote.ServerTime{Timestamp: s.Now()})
}

func (s *Server) handleStreamingSettings(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	writeJSON(w, remote.StreamingSettings{
		SocketAddress: fmt.Sprintf("%s://%s%s", scheme, r.Host, s.config.Namespace),
	})
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "only the websocket transport is supported", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sess := &session{id: uuid.New().String(), ws: ws, done: make(chan struct{})}

	open, _ := protocol.EncodeOpen(protocol.OpenPayload{
		SID:          sess.id,
		Upgrades:     []string{},
		PingInterval: int(s.config.PingInterval.Milliseconds()),
		PingTimeout:  20000,
		MaxPayload:   1000000,
	})
	if err := s.write(sess, open); err != nil {
		ws.Close()
		return
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	log.Info().Str("sid", sess.id).Str("remote", r.RemoteAddr).Msg("Client connected")

	if r.URL.Query().Get("EIO") != "3" {
		go s.pingLoop(sess)
	}
	s.readLoop(sess)
}

func (s *Server) readLoop(sess *session) {
	defer s.closeSession(sess)

	for {
		_, data, err := sess.ws.ReadMessage()
		if err != nil {
			log.Info().Str("sid", sess.id).Msg("Client disconnected")
			return
		}

		pkt, err := protocol.Decode(string(data))
		if err != nil {
			continue
		}

		switch pkt.Engine {
		case protocol.EnginePing:
			s.write(sess, protocol.PongFrame)
		case protocol.EngineClose:
			return
		case protocol.EngineMessage:
			s.handleSocketPacket(sess, pkt)
		}
	}
}

func (s *Server) handleSocketPacket(sess *session, pkt protocol.Packet) {
	if pkt.Namespace != s.config.Namespace {
		s.write(sess, fmt.Sprintf("44%s,{\"message\":\"Invalid namespace\"}", pkt.Namespace))
		return
	}

	switch pkt.Socket {
	case protocol.SocketConnect:
		ack, _ := protocol.EncodeConnect(s.config.Namespace, map[string]string{"sid": sess.id})
		s.write(sess, ack)

	case protocol.SocketDisconnect:
		s.closeSession(sess)

	case protocol.SocketEvent:
		ev, err := pkt.Event()
		if err != nil || ev.Name != protocol.EventAuth {
			return
		}
		var auth protocol.Auth
		if err := ev.Arg(0, &auth); err != nil {
			s.emit(sess, protocol.EventErr, map[string]string{"msg": "Malformed auth"})
			return
		}
		s.authenticate(sess, auth)
	}
}

func (s *Server) authenticate(sess *session, auth protocol.Auth) {
	switch {
	case s.config.Auth != "" && auth.Auth != s.config.Auth:
		s.emit(sess, protocol.EventErr, map[string]string{"msg": "Invalid authentication"})
		return
	case len(auth.Games) == 0 || (s.config.GameID != "" && auth.Games[0] != s.config.GameID):
		s.emit(sess, protocol.EventErr, map[string]string{"msg": "Unknown game"})
		return
	case !auth.NoDelta:
		s.emit(sess, protocol.EventErr, map[string]string{"msg": "Delta updates are not supported"})
		return
	}

	s.mu.Lock()
	sess.authed = true
	snap := clone(s.match)
	s.mu.Unlock()

	log.Info().Str("sid", sess.id).Strs("games", auth.Games).Msg("Client authenticated")
	s.sendSnapshot(sess, snap)
}

func (s *Server) sendSnapshot(sess *session, snap state.Snapshot) {
	s.emit(sess, protocol.EventComplete, snap)
}

func (s *Server) emit(sess *session, name string, payload any) {
	frame, err := protocol.EncodeEvent(s.config.Namespace, name, payload)
	if err != nil {
		log.Error().Err(err).Str("event", name).Msg("Failed to encode event")
		return
	}
	s.write(sess, frame)
}

func (s *Server) write(sess *session, frame string) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sess.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (s *Server) pingLoop(sess *session) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.write(sess, protocol.PingFrame); err != nil {
				return
			}
		case <-sess.done:
			return
		}
	}
}

func (s *Server) closeSession(sess *session) {
	sess.once.Do(func() {
		close(sess.done)
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
		sess.ws.Close()
	})
}

// authedSessions must be called with s.mu held
func (s *Server) authedSessions() []*session {
	out := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.authed {
			out = append(out, sess)
		}
	}
	return out
}

func clone(snap state.Snapshot) state.Snapshot {
	out := snap
	if snap.GameTime != nil {
		gt := *snap.GameTime
		out.GameTime = &gt
	}
	if snap.AliveTimestamp != nil {
		alive := *snap.AliveTimestamp
		out.AliveTimestamp = &alive
	}
	out.Score = make(map[state.Side]state.TeamScore, len(snap.Score))
	for k, v := range snap.Score {
		out.Score[k] = v
	}
	out.Teams = make(map[state.Side]state.Team, len(snap.Teams))
	for k, v := range snap.Teams {
		out.Teams[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
