// ABOUTME: Diagnostic tool for clock offset estimation
// ABOUTME: Measures the offset to a broadcast server and optionally to NTP
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jonboulle/clockwork"

	"github.com/quidditchlive/overlay-feed/internal/logging"
	"github.com/quidditchlive/overlay-feed/internal/remote"
	"github.com/quidditchlive/overlay-feed/internal/timesync"
)

var CLI struct {
	Server    string `help:"Broadcast server host." default:"quidditch.live" env:"QL_SERVER"`
	Insecure  bool   `help:"Use plain http."`
	Samples   int    `help:"Number of measurements." default:"5"`
	NTPServer string `name:"ntp-server" help:"Also compare the local clock with this NTP server."`
	Debug     bool   `help:"Enable debug logging."`
}

func main() {
	kong.Parse(&CLI,
		kong.Name("clock-check"),
		kong.Description("Shows how far the local clock is from the broadcast server."),
		kong.UsageOnError())

	logging.Setup(logging.Config{Console: true, Debug: CLI.Debug})
	if CLI.Samples < 1 {
		CLI.Samples = 1
	}

	fmt.Println("=== Clock Offset Check ===")
	fmt.Println("Positive offsets mean the local clock is ahead of the server.")
	fmt.Println()

	rc := remote.New(CLI.Server, !CLI.Insecure)
	sync := timesync.NewSynchronizer(rc, clockwork.NewRealClock())

	var offsets []timesync.Offset
	for i := 0; i < CLI.Samples; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		offset, err := sync.Synchronize(ctx)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "sample %d failed: %v\n", i+1, err)
			os.Exit(1)
		}
		offsets = append(offsets, offset)
		fmt.Printf("sample %d: %+dms\n", i+1, int64(offset))
	}

	lo, hi := offsets[0], offsets[0]
	for _, o := range offsets {
		lo = min(lo, o)
		hi = max(hi, o)
	}
	fmt.Printf("\nspread: %dms (min %+dms, max %+dms)\n", int64(hi-lo), int64(lo), int64(hi))

	if CLI.NTPServer != "" {
		drift, err := timesync.CheckNTP(CLI.NTPServer, timesync.DefaultNTPThreshold)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ntp check failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("ntp offset: %s\n", drift)
	}
}
