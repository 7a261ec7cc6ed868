// ABOUTME: Tests for the broadcast service HTTP client
// ABOUTME: Uses httptest servers for the PHP endpoints
package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, body := range routes {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
		})
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestServerTime(t *testing.T) {
	server := newTestServer(t, map[string]string{
		ServerTimePath: `{"timestamp": 1700000000123}`,
	})

	ts, err := NewWithBaseURL(server.URL).ServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), ts)
}

func TestServerTimeHTTPError(t *testing.T) {
	server := newTestServer(t, map[string]string{})

	_, err := NewWithBaseURL(server.URL).ServerTime(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestServerTimeMalformed(t *testing.T) {
	server := newTestServer(t, map[string]string{
		ServerTimePath: `not json`,
	})

	_, err := NewWithBaseURL(server.URL).ServerTime(context.Background())
	assert.Error(t, err)
}

func TestStreamingSettings(t *testing.T) {
	server := newTestServer(t, map[string]string{
		StreamingSettingsPath: `{"socket_address": "https://quidditch.live/api", "socket_port": 443}`,
	})

	settings, err := NewWithBaseURL(server.URL).StreamingSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://quidditch.live/api", settings.SocketAddress)
}

func TestStreamingSettingsMissingAddress(t *testing.T) {
	server := newTestServer(t, map[string]string{
		StreamingSettingsPath: `{}`,
	})

	_, err := NewWithBaseURL(server.URL).StreamingSettings(context.Background())
	assert.Error(t, err)
}

func TestNewSchemes(t *testing.T) {
	assert.Equal(t, "https://quidditch.live", New("quidditch.live", true).BaseURL())
	assert.Equal(t, "http://localhost:8080", New("localhost:8080", false).BaseURL())
}

func TestAssetURL(t *testing.T) {
	c := NewWithBaseURL("https://quidditch.live/")

	tests := []struct {
		kind     AssetKind
		name     string
		expected string
	}{
		{AssetLogo, "owls.png", "https://quidditch.live/src/img/logo/owls.png"},
		{AssetLogo, "owls.svg", "https://quidditch.live/src/img/logo/owls.svg"},
		{AssetJersey, "stripes", "https://quidditch.live/src/svg/jerseys/stripes.svg"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, c.AssetURL(tt.kind, tt.name))
	}
}

func TestFetch(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"/src/img/logo/a.png": "png bytes",
	})

	c := NewWithBaseURL(server.URL)
	body, err := c.Fetch(context.Background(), c.AssetURL(AssetLogo, "a.png"))
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(body))
}
