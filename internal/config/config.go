// ABOUTME: Command line, environment and YAML configuration
// ABOUTME: Parses flags with kong and resolves the credential and game id
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/quidditchlive/overlay-feed/internal/score"
	"github.com/quidditchlive/overlay-feed/internal/version"
)

var (
	ErrMissingAuth = errors.New("no authentication provided")
	ErrMissingGame = errors.New("no public game id provided")
)

// CLI is the full command line of the feed
type CLI struct {
	Server    string `help:"Broadcast server host." default:"quidditch.live" env:"QL_SERVER"`
	Insecure  bool   `help:"Use plain http and ws (local debugging only)." env:"QL_INSECURE"`
	Discover  bool   `help:"Find a development server via mDNS instead of --server."`
	Auth      string `help:"Streaming credential." env:"QL_AUTH"`
	AuthFile  string `help:"File holding the streaming credential." default:"auth.txt" env:"QL_AUTH_FILE" type:"path"`
	Game      string `help:"Public game id to follow." env:"QL_GAME"`
	OutputDir string `help:"Directory the overlay files are written to." default:"." env:"QL_OUTPUT_DIR" type:"path"`

	Tick           time.Duration `help:"Game clock refresh interval." default:"10ms" env:"QL_TICK"`
	EngineIO       int           `name:"engine-io" help:"Engine.IO revision spoken by the server." default:"4" enum:"3,4"`
	CaughtMarker   string        `help:"Suffix for the side that caught the snitch." default:"*"`
	OpponentMarker string        `help:"Suffix for the side whose opponent caught the snitch." default:"°"`

	NTPServer   string `name:"ntp-server" help:"Compare the local clock with this NTP server before starting."`
	AlertSound  string `help:"MP3 played when the timekeeper heartbeat is lost." type:"existingfile"`
	MetricsAddr string `help:"Serve Prometheus metrics on this address, e.g. :9090."`

	LogFile string `help:"Log file path." default:"overlay-feed.log" env:"QL_LOG_FILE"`
	NoTUI   bool   `name:"no-tui" help:"Disable the status panel and log to stdout."`
	Debug   bool   `help:"Enable debug logging."`

	Config  kong.ConfigFlag  `help:"YAML configuration file."`
	Version kong.VersionFlag `help:"Print version information and exit." short:"v"`
}

// Validate is called by kong after parsing
func (c *CLI) Validate() error {
	if c.Tick <= 0 {
		return fmt.Errorf("--tick must be positive, got %s", c.Tick)
	}
	return nil
}

// Markers returns the configured score suffixes
func (c *CLI) Markers() score.Markers {
	return score.Markers{Caught: c.CaughtMarker, Opponent: c.OpponentMarker}
}

// Parse reads args (without the program name). Extra options are for tests.
func Parse(args []string, opts ...kong.Option) (*CLI, error) {
	var cli CLI

	options := []kong.Option{
		kong.Name(version.Product),
		kong.Description("Mirrors a quidditch.live match into files for broadcast overlays."),
		kong.UsageOnError(),
		kong.Configuration(YAMLLoader),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		kong.Vars{"version": fmt.Sprintf("%s %s (%s)", version.Product, version.Version, version.Manufacturer)},
	}

	parser, err := kong.New(&cli, append(options, opts...)...)
	if err != nil {
		return nil, err
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, err
	}
	if err := cli.Validate(); err != nil {
		return nil, err
	}
	return &cli, nil
}

// YAMLLoader resolves flags from a YAML mapping. Keys may use the flag
// name (tick, output-dir) or its snake_case form (output_dir).
func YAMLLoader(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	var resolver kong.ResolverFunc = func(context *kong.Context, parent *kong.Path, flag *kong.Flag) (any, error) {
		for _, key := range []string{flag.Name, strings.ReplaceAll(flag.Name, "-", "_")} {
			if v, ok := values[key]; ok {
				return v, nil
			}
		}
		return nil, nil
	}
	return resolver, nil
}

// Credentials identify the match to follow
type Credentials struct {
	Auth   string
	GameID string
}

// Credentials resolves the credential from the flag, the auth file or a
// prompt, and the game id from the flag or a prompt.
func (c *CLI) Credentials(in io.Reader, out io.Writer) (Credentials, error) {
	reader := bufio.NewReader(in)

	auth := strings.TrimSpace(c.Auth)
	source := "flag"
	if auth == "" {
		if fromFile, err := readFirstLine(c.AuthFile); err == nil {
			auth = fromFile
			source = "file"
		} else {
			log.Warn().Str("file", c.AuthFile).Msg("You can skip this prompt by putting your authentication code in the auth file")
			auth = prompt(reader, out, "Auth? ")
			source = "prompt"
		}
	}
	if auth == "" {
		return Credentials{}, ErrMissingAuth
	}
	log.Info().Str("source", source).Msg("Authentication read")

	game := strings.TrimSpace(c.Game)
	if game == "" {
		game = prompt(reader, out, "Public Game ID? ")
		log.Info().Str("game", game).Msg("Game id entered")
	}
	if game == "" {
		return Credentials{}, ErrMissingGame
	}

	return Credentials{Auth: auth, GameID: game}, nil
}

func readFirstLine(path string) (string, error) {
	if path == "" {
		return "", os.ErrNotExist
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimSpace(line), nil
}

func prompt(reader *bufio.Reader, out io.Writer, question string) string {
	fmt.Fprint(out, question)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	return strings.TrimSpace(line)
}
