// ABOUTME: Tests for team asset mirroring
// ABOUTME: Serves logos and jerseys over httptest and checks the written files
package assets

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quidditchlive/overlay-feed/internal/remote"
	"github.com/quidditchlive/overlay-feed/internal/sink"
	"github.com/quidditchlive/overlay-feed/internal/state"
)

const redSquare = `<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10" viewBox="0 0 10 10"><rect x="0" y="0" width="10" height="10" fill="#ff0000"/></svg>`

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func rgb(img image.Image, x, y int) (uint32, uint32, uint32) {
	r, g, b, _ := img.At(x, y).RGBA()
	return r >> 8, g >> 8, b >> 8
}

func TestRasterizeSVG(t *testing.T) {
	data, err := RasterizeSVG([]byte(redSquare), 32, 32)
	require.NoError(t, err)

	img := decodePNG(t, data)
	assert.Equal(t, image.Rect(0, 0, 32, 32), img.Bounds())
	r, g, b := rgb(img, 16, 16)
	assert.Equal(t, uint32(255), r)
	assert.Equal(t, uint32(0), g)
	assert.Equal(t, uint32(0), b)
}

const maintenancePage = `<html><body>maintenance</body></html>`

func TestRasterizeSVGRejectsGarbage(t *testing.T) {
	_, err := RasterizeSVG([]byte("not svg at all"), 8, 8)
	assert.ErrorIs(t, err, ErrEmptySVG)

	_, err = RasterizeSVG([]byte(maintenancePage), 8, 8)
	assert.Error(t, err)

	_, err = RasterizeSVG([]byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"></svg>`), 8, 8)
	assert.ErrorIs(t, err, ErrEmptySVG)
}

func TestSwatch(t *testing.T) {
	data, err := Swatch("#003da5", SwatchWidth, SwatchHeight)
	require.NoError(t, err)

	img := decodePNG(t, data)
	assert.Equal(t, image.Rect(0, 0, 100, 300), img.Bounds())
	r, g, b := rgb(img, 50, 299)
	assert.Equal(t, []uint32{0x00, 0x3d, 0xa5}, []uint32{r, g, b})
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#fff")
	require.NoError(t, err)
	r, g, b, _ := c.RGBA()
	assert.Equal(t, []uint32{0xffff, 0xffff, 0xffff}, []uint32{r, g, b})

	c, err = ParseColor("red")
	require.NoError(t, err)
	r, g, b, _ = c.RGBA()
	assert.Equal(t, []uint32{0xffff, 0, 0}, []uint32{r, g, b})

	_, err = ParseColor("not-a-color")
	assert.Error(t, err)
}

func TestAssetExt(t *testing.T) {
	assert.Equal(t, ".png", assetExt("https://quidditch.live/src/img/logo/ghent.png"))
	assert.Equal(t, ".svg", assetExt("https://quidditch.live/src/svg/jerseys/stripes.svg?v=2"))
	assert.Equal(t, ".png", assetExt("https://quidditch.live/src/img/logo/GHENT.PNG"))
	assert.Equal(t, "", assetExt("https://quidditch.live/src/img/logo/ghent"))
}

type assetServer struct {
	*httptest.Server
	logoHits   atomic.Int32
	failLogo   atomic.Bool
	jerseyHits atomic.Int32
	jerseyDown atomic.Bool
}

func newAssetServer(t *testing.T) *assetServer {
	t.Helper()
	logo, err := Swatch("#00ff00", 4, 4)
	require.NoError(t, err)

	as := &assetServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/src/img/logo/ghent.png", func(w http.ResponseWriter, r *http.Request) {
		as.logoHits.Add(1)
		if as.failLogo.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write(logo)
	})
	mux.HandleFunc("/src/svg/jerseys/stripes.svg", func(w http.ResponseWriter, r *http.Request) {
		as.jerseyHits.Add(1)
		if as.jerseyDown.Load() {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(maintenancePage))
			return
		}
		w.Write([]byte(redSquare))
	})
	as.Server = httptest.NewServer(mux)
	t.Cleanup(as.Close)
	return as
}

func newSink(t *testing.T) *sink.Sink {
	t.Helper()
	s, err := sink.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func match(logo, jersey, color string) *state.Snapshot {
	return &state.Snapshot{
		DataAvailable: true,
		Teams: map[state.Side]state.Team{
			state.SideA: {Name: "Ghent Gargoyles", Logo: logo, Jersey: jersey, JerseyPrimaryColor: color},
		},
	}
}

func TestApplyWritesImages(t *testing.T) {
	as := newAssetServer(t)
	out := newSink(t)
	syncer := NewSyncer(remote.NewWithBaseURL(as.URL), out)

	syncer.Apply(context.Background(), match("ghent.png", "stripes", "#123456"))

	logo, err := os.ReadFile(out.Path(sink.LogoA))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 4), decodePNG(t, logo).Bounds())

	jersey, err := os.ReadFile(out.Path(sink.JerseyA))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, ImageSize, ImageSize), decodePNG(t, jersey).Bounds())

	color, err := os.ReadFile(out.Path(sink.ColorA))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, SwatchWidth, SwatchHeight), decodePNG(t, color).Bounds())

	_, err = os.Stat(out.Path(sink.LogoB))
	assert.True(t, os.IsNotExist(err))
}

func TestApplySkipsUnchangedNames(t *testing.T) {
	as := newAssetServer(t)
	syncer := NewSyncer(remote.NewWithBaseURL(as.URL), newSink(t))

	syncer.Apply(context.Background(), match("ghent.png", "", ""))
	syncer.Apply(context.Background(), match("ghent.png", "", ""))
	assert.Equal(t, int32(1), as.logoHits.Load())
}

func TestApplyRetriesFailedDownload(t *testing.T) {
	as := newAssetServer(t)
	out := newSink(t)
	syncer := NewSyncer(remote.NewWithBaseURL(as.URL), out)

	as.failLogo.Store(true)
	syncer.Apply(context.Background(), match("ghent.png", "", ""))
	_, err := os.Stat(out.Path(sink.LogoA))
	assert.True(t, os.IsNotExist(err))

	as.failLogo.Store(false)
	syncer.Apply(context.Background(), match("ghent.png", "", ""))
	_, err = os.Stat(out.Path(sink.LogoA))
	assert.NoError(t, err)
	assert.Equal(t, int32(2), as.logoHits.Load())
}

func TestApplyRetriesJerseyServedAsHTML(t *testing.T) {
	as := newAssetServer(t)
	out := newSink(t)
	syncer := NewSyncer(remote.NewWithBaseURL(as.URL), out)

	as.jerseyDown.Store(true)
	syncer.Apply(context.Background(), match("", "stripes", ""))
	syncer.Apply(context.Background(), match("", "stripes", ""))
	_, err := os.Stat(out.Path(sink.JerseyA))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, int32(2), as.jerseyHits.Load())

	as.jerseyDown.Store(false)
	syncer.Apply(context.Background(), match("", "stripes", ""))
	jersey, err := os.ReadFile(out.Path(sink.JerseyA))
	require.NoError(t, err)
	r, g, b := rgb(decodePNG(t, jersey), ImageSize/2, ImageSize/2)
	assert.Equal(t, []uint32{255, 0, 0}, []uint32{r, g, b})
	assert.Equal(t, int32(3), as.jerseyHits.Load())
}

func TestApplyUnsupportedFormat(t *testing.T) {
	as := newAssetServer(t)
	out := newSink(t)
	syncer := NewSyncer(remote.NewWithBaseURL(as.URL), out)

	syncer.Apply(context.Background(), match("ghent.gif", "", ""))
	_, err := os.Stat(out.Path(sink.LogoA))
	assert.True(t, os.IsNotExist(err))
}

func TestRunAppliesLatestSubmission(t *testing.T) {
	as := newAssetServer(t)
	out := newSink(t)
	syncer := NewSyncer(remote.NewWithBaseURL(as.URL), out)

	syncer.Submit(match("", "", "#ff0000"))
	syncer.Submit(match("", "", "#0000ff"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go syncer.Run(ctx)

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(out.Path(sink.ColorA))
		if err != nil {
			return false
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return false
		}
		r, _, b := rgb(img, 0, 0)
		return r == 0 && b == 255
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSyncNames(t *testing.T) {
	out := newSink(t)
	snap := &state.Snapshot{Teams: map[state.Side]state.Team{
		state.SideA: {Name: "Ghent Gargoyles"},
		state.SideB: {Name: "Leuven Lions"},
	}}

	SyncNames(out, snap)

	require.Eventually(t, func() bool {
		a, errA := os.ReadFile(out.Path(sink.TeamNameA))
		b, errB := os.ReadFile(out.Path(sink.TeamNameB))
		return errA == nil && errB == nil && string(a) == "Ghent Gargoyles" && string(b) == "Leuven Lions"
	}, 2*time.Second, 10*time.Millisecond)
}
