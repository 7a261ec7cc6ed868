// ABOUTME: Main feed application orchestration
// ABOUTME: Wires time sync, stream, game clock, assets, files and UI together
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/quidditchlive/overlay-feed/internal/alert"
	"github.com/quidditchlive/overlay-feed/internal/assets"
	"github.com/quidditchlive/overlay-feed/internal/client"
	"github.com/quidditchlive/overlay-feed/internal/discovery"
	"github.com/quidditchlive/overlay-feed/internal/gameclock"
	"github.com/quidditchlive/overlay-feed/internal/metrics"
	"github.com/quidditchlive/overlay-feed/internal/remote"
	"github.com/quidditchlive/overlay-feed/internal/score"
	"github.com/quidditchlive/overlay-feed/internal/sink"
	"github.com/quidditchlive/overlay-feed/internal/state"
	"github.com/quidditchlive/overlay-feed/internal/timesync"
	"github.com/quidditchlive/overlay-feed/internal/ui"
)

// Config holds feed configuration
type Config struct {
	Server          string // Host, optionally with port
	Secure          bool
	Discover        bool
	DiscoverTimeout time.Duration

	Auth   string
	GameID string

	OutputDir string
	Tick      time.Duration
	EngineIO  int
	Markers   score.Markers

	NTPServer   string
	AlertSound  string
	MetricsAddr string
}

// Option customizes a Feed
type Option func(*Feed)

// WithStatus routes status updates to fn, typically the TUI
func WithStatus(fn func(ui.StatusMsg)) Option {
	return func(f *Feed) { f.status = fn }
}

// WithDialer replaces the websocket transport
func WithDialer(dial client.Dialer) Option {
	return func(f *Feed) { f.dial = dial }
}

// WithClock replaces the real clock
func WithClock(clock clockwork.Clock) Option {
	return func(f *Feed) { f.clock = clock }
}

// WithMetrics records into m instead of a fresh registry
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Feed) { f.metrics = m }
}

// Feed follows one match and mirrors it into files
type Feed struct {
	config  Config
	status  func(ui.StatusMsg)
	dial    client.Dialer
	clock   clockwork.Clock
	metrics *metrics.Metrics
}

// New creates a feed
func New(config Config, opts ...Option) *Feed {
	if config.Markers == (score.Markers{}) {
		config.Markers = score.DefaultMarkers()
	}
	if config.EngineIO == 0 {
		config.EngineIO = 4
	}

	f := &Feed{
		config: config,
		status: func(ui.StatusMsg) {},
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.dial == nil {
		f.dial = client.WebSocketDialer(config.EngineIO)
	}
	if f.metrics == nil {
		f.metrics = metrics.New()
	}
	return f
}

// Run performs startup and follows the stream until it ends. The returned
// error is never nil: client.ErrDisconnected after a normal loss of the
// stream, ctx.Err() on shutdown, or the startup failure.
func (f *Feed) Run(ctx context.Context) error {
	rc, err := f.remote(ctx)
	if err != nil {
		return err
	}
	f.status(ui.StatusMsg{Server: rc.BaseURL(), GameID: f.config.GameID})
	log.Info().Str("server", rc.BaseURL()).Msg("Remote server selected")

	settings, err := rc.StreamingSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to get streaming settings: %w", err)
	}

	if f.config.NTPServer != "" {
		if _, err := timesync.CheckNTP(f.config.NTPServer, timesync.DefaultNTPThreshold); err != nil {
			log.Warn().Err(err).Msg("NTP check failed")
		}
	}

	offset, err := timesync.NewSynchronizer(rc, f.clock).Synchronize(ctx)
	if err != nil {
		return fmt.Errorf("time synchronization failed: %w", err)
	}
	offsetMs := int64(offset)
	f.metrics.SetOffset(offset)
	f.status(ui.StatusMsg{OffsetMs: &offsetMs})

	out, err := sink.New(f.config.OutputDir)
	if err != nil {
		return err
	}
	defer out.Close()
	out.SetObserver(f.metrics.ObserveWrite)

	// Stale files from an earlier session must not look live
	if err := out.Clear(); err != nil {
		log.Warn().Err(err).Msg("Could not remove every old output file")
	}
	f.status(ui.StatusMsg{OutputDir: out.Dir()})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	store := state.NewStore()

	engine := gameclock.NewEngine(gameclock.Config{
		Interval:   f.config.Tick,
		Clock:      f.clock,
		OnDisplay:  func(display string) { f.status(ui.StatusMsg{GameTime: display}) },
		OnLiveness: f.livenessObserver(),
		OnError:    f.metrics.TickError,
	}, store, offset, out)

	syncer := assets.NewSyncer(rc, out)

	wg.Add(2)
	go func() {
		defer wg.Done()
		engine.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		syncer.Run(runCtx)
	}()

	if f.config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.metrics.Serve(runCtx, f.config.MetricsAddr); err != nil {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	sub := client.NewSubscriber(client.Config{
		SocketAddress: settings.SocketAddress,
		Auth:          f.config.Auth,
		GameID:        f.config.GameID,
	}, store, client.Handlers{
		OnSnapshot: func(snap *state.Snapshot) {
			f.onSnapshot(snap, out, syncer, store.Updates())
		},
		OnServerError: func(msg string) {
			f.metrics.ServerError(msg)
			f.status(ui.StatusMsg{ServerError: msg})
		},
		OnStateChange: func(s client.State) {
			f.status(ui.StatusMsg{Stream: s.String()})
		},
	})

	err = sub.Run(runCtx, f.dial)

	cancel()
	wg.Wait()
	return err
}

// remote picks the broadcast server, browsing mDNS when asked to
func (f *Feed) remote(ctx context.Context) (*remote.Client, error) {
	if !f.config.Discover {
		return remote.New(f.config.Server, f.config.Secure), nil
	}

	timeout := f.config.DiscoverTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	findCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info().Str("service", discovery.ServiceType).Msg("Browsing for a server")
	server, err := discovery.FindServer(findCtx, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("server discovery failed: %w", err)
	}
	// Development servers speak plain http
	return remote.New(server.Address(), false), nil
}

// onSnapshot runs on the subscriber goroutine for every complete push
func (f *Feed) onSnapshot(snap *state.Snapshot, out sink.Writer, syncer *assets.Syncer, updates uint64) {
	f.metrics.SnapshotReceived()

	status := ui.StatusMsg{Snapshots: updates}

	assets.SyncNames(out, snap)
	syncer.Submit(snap)
	if a, ok := snap.Teams[state.SideA]; ok {
		status.TeamA = a.Name
	}
	if b, ok := snap.Teams[state.SideB]; ok {
		status.TeamB = b.Name
	}

	if display, ok := score.Derive(snap, f.config.Markers); ok {
		for _, side := range state.Sides {
			out.WriteIfChanged(sink.ScoreField(side), display.Side(side))
		}
		status.ScoreA = display.A
		status.ScoreB = display.B
		log.Info().Str("score", display.String()).Msg("Score updated")
	} else {
		log.Debug().Msg("Snapshot carries no score data")
	}

	f.status(status)
}

func (f *Feed) livenessObserver() func(bool) {
	var sound *alert.Alert
	if f.config.AlertSound != "" {
		var err error
		sound, err = alert.Load(f.config.AlertSound)
		if err != nil {
			log.Error().Err(err).Msg("Alert sound disabled")
		}
	}

	return func(connected bool) {
		f.metrics.SetTimekeeper(connected)
		f.status(ui.StatusMsg{Timekeeper: &connected})
		if sound != nil {
			sound.OnLiveness(connected)
		}
	}
}
