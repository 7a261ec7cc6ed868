// ABOUTME: Image rendering for team assets
// ABOUTME: Rasterizes SVG files and paints solid jersey color swatches as PNG
package assets

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Output sizes expected by the overlay layouts
const (
	ImageSize    = 1024
	SwatchWidth  = 100
	SwatchHeight = 300
)

// ErrEmptySVG is returned for documents with nothing to draw
var ErrEmptySVG = errors.New("svg has no drawable content")

// RasterizeSVG renders an SVG document into a width x height PNG.
// Unknown elements are an error, so an HTML error page served with a 200
// status is rejected instead of turning into a blank image.
func RasterizeSVG(data []byte, width, height int) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.StrictErrorMode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse svg: %w", err)
	}
	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 || len(icon.SVGPaths) == 0 {
		return nil, ErrEmptySVG
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1.0)

	return encodePNG(img)
}

// ParseColor accepts #rgb and #rrggbb as well as SVG color names
func ParseColor(s string) (color.Color, error) {
	if c, err := colorful.Hex(s); err == nil {
		r, g, b := c.RGB255()
		return color.RGBA{R: r, G: g, B: b, A: 0xff}, nil
	}

	c, err := oksvg.ParseSVGColor(s)
	if err != nil {
		return nil, fmt.Errorf("invalid color %q: %w", s, err)
	}
	if c == nil {
		return nil, fmt.Errorf("invalid color %q", s)
	}
	return c, nil
}

// Swatch paints a solid width x height PNG in the given color
func Swatch(colorStr string, width, height int) ([]byte, error) {
	c, err := ParseColor(colorStr)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)

	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
