// ABOUTME: Entry point for the local development broadcast server
// ABOUTME: Plays a scripted match over the same endpoints as quidditch.live
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"github.com/quidditchlive/overlay-feed/internal/discovery"
	"github.com/quidditchlive/overlay-feed/internal/logging"
	"github.com/quidditchlive/overlay-feed/internal/mockserver"
)

var CLI struct {
	Port    int           `help:"HTTP and websocket port." default:"8080"`
	Name    string        `help:"Server friendly name (default: hostname-mock-server)."`
	Auth    string        `help:"Accepted credential; empty accepts any." env:"QL_AUTH"`
	Game    string        `help:"Accepted public game id; empty accepts any." env:"QL_GAME"`
	Skew    time.Duration `help:"Offset of the server clock from real time." default:"0s"`
	Beat    time.Duration `help:"Interval between scenario steps and heartbeats." default:"5s"`
	NoMDNS  bool          `name:"no-mdns" help:"Disable mDNS advertisement."`
	LogFile string        `help:"Log file path." default:"mock-server.log"`
	Debug   bool          `help:"Enable debug logging."`
}

func main() {
	kong.Parse(&CLI,
		kong.Name("mock-server"),
		kong.Description("Development stand-in for the quidditch.live broadcast service."),
		kong.UsageOnError())

	_, closer := logging.Setup(logging.Config{File: CLI.LogFile, Console: true, Debug: CLI.Debug})
	defer closer.Close()

	serverName := CLI.Name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-mock-server", hostname)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := mockserver.New(mockserver.Config{
		Auth:   CLI.Auth,
		GameID: CLI.Game,
		Skew:   CLI.Skew,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", CLI.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if !CLI.NoMDNS {
		mdns := discovery.NewManager(discovery.Config{ServiceName: serverName, Port: CLI.Port})
		if err := mdns.Advertise(); err != nil {
			log.Warn().Err(err).Msg("mDNS advertisement failed")
		}
		defer mdns.Stop()
	}

	scenario := mockserver.Demo()
	scenario.Beat = CLI.Beat
	go srv.Play(ctx, scenario)

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutdown signal received")
		srv.DisconnectAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Str("name", serverName).Int("port", CLI.Port).Dur("skew", CLI.Skew).Msg("Mock server listening")
	log.Info().Msgf("Run the feed with --server localhost:%d --insecure", CLI.Port)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Server error")
		os.Exit(1)
	}

	log.Info().Msg("Server stopped")
}
