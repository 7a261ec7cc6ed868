// ABOUTME: Entry point for the quidditch.live overlay feed
// ABOUTME: Parses configuration and runs the feed until the stream ends
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/quidditchlive/overlay-feed/internal/app"
	"github.com/quidditchlive/overlay-feed/internal/config"
	"github.com/quidditchlive/overlay-feed/internal/logging"
	"github.com/quidditchlive/overlay-feed/internal/ui"
	"github.com/quidditchlive/overlay-feed/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	// A missing .env is normal
	_ = godotenv.Load()

	cli, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return 2
	}

	useTUI := !cli.NoTUI

	// Prompts need the terminal, so the console logger stays on until the TUI starts
	session, closer := logging.Setup(logging.Config{
		File:    cli.LogFile,
		Console: true,
		Debug:   cli.Debug,
	})
	defer closer.Close()

	log.Info().Str("version", version.Version).Str("session", session).Msg("Starting overlay feed")

	creds, err := cli.Credentials(os.Stdin, os.Stdout)
	if err != nil {
		log.Error().Err(err).Msg("Both a public game id and authentication are required")
		return 1
	}

	if useTUI {
		logging.DetachConsole()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var tui *ui.TUI
	status := func(ui.StatusMsg) {}
	if useTUI {
		control := ui.NewControl()
		tui = ui.New(control)
		status = tui.Update

		go func() {
			if err := tui.Run(); err != nil {
				log.Error().Err(err).Msg("TUI failed")
			}
			cancel()
		}()
		go func() {
			select {
			case <-tui.QuitChan():
				log.Info().Msg("Received quit signal from TUI")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	feed := app.New(app.Config{
		Server:      cli.Server,
		Secure:      !cli.Insecure,
		Discover:    cli.Discover,
		Auth:        creds.Auth,
		GameID:      creds.GameID,
		OutputDir:   cli.OutputDir,
		Tick:        cli.Tick,
		EngineIO:    cli.EngineIO,
		Markers:     cli.Markers(),
		NTPServer:   cli.NTPServer,
		AlertSound:  cli.AlertSound,
		MetricsAddr: cli.MetricsAddr,
	}, app.WithStatus(status))

	err = feed.Run(ctx)

	if tui != nil {
		tui.Stop()
	}

	switch {
	case errors.Is(err, context.Canceled):
		log.Info().Msg("Feed stopped")
		return 0
	default:
		// The stream ending is fatal too: the operator must restart deliberately
		log.Error().Err(err).Msg("Exiting")
		if tui != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
}
