// ABOUTME: HTTP client for the broadcast service's PHP endpoints
// ABOUTME: Server time, streaming settings and team asset downloads
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	ServerTimePath        = "/getServerTime.php"
	StreamingSettingsPath = "/getStreamingSettings.php"

	logoFolder   = "/src/img/logo/"
	jerseyFolder = "/src/svg/jerseys/"
)

// AssetKind selects the remote folder a team asset lives in
type AssetKind string

const (
	AssetLogo   AssetKind = "logo"
	AssetJersey AssetKind = "jersey"
)

// ServerTime is the body of getServerTime.php
type ServerTime struct {
	Timestamp int64 `json:"timestamp"` // Milliseconds, server clock
}

// StreamingSettings is the body of getStreamingSettings.php
type StreamingSettings struct {
	SocketAddress string `json:"socket_address"`
}

// Client talks to one broadcast server
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for host. secure selects https over http.
func New(host string, secure bool) *Client {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return NewWithBaseURL(scheme + "://" + host)
}

// NewWithBaseURL creates a client for a full base URL such as an httptest server
func NewWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// BaseURL returns the scheme and host requests are sent to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ServerTime asks the time authority for its current clock in milliseconds
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	var st ServerTime
	if err := c.getJSON(ctx, ServerTimePath, &st); err != nil {
		return 0, fmt.Errorf("server time: %w", err)
	}
	return st.Timestamp, nil
}

// StreamingSettings locates the event stream endpoint
func (c *Client) StreamingSettings(ctx context.Context) (StreamingSettings, error) {
	var settings StreamingSettings
	if err := c.getJSON(ctx, StreamingSettingsPath, &settings); err != nil {
		return settings, fmt.Errorf("streaming settings: %w", err)
	}
	if settings.SocketAddress == "" {
		return settings, fmt.Errorf("streaming settings: empty socket_address")
	}
	return settings, nil
}

// AssetURL builds the download URL for a team's logo or jersey.
// Jerseys are referenced by bare name and always served as SVG.
func (c *Client) AssetURL(kind AssetKind, name string) string {
	switch kind {
	case AssetJersey:
		return c.baseURL + jerseyFolder + url.PathEscape(name) + ".svg"
	default:
		return c.baseURL + logoFolder + url.PathEscape(name)
	}
}

// Fetch downloads an arbitrary URL into memory
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	log.Debug().Str("url", rawURL).Msg("fetching")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: HTTP %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	body, err := c.Fetch(ctx, c.baseURL+path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
