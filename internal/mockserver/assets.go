// ABOUTME: Team logo and jersey files served by the development server
// ABOUTME: Logos are generated PNG swatches and jerseys a plain SVG shirt
package mockserver

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"path"
	"strings"

	"github.com/quidditchlive/overlay-feed/internal/assets"
)

const jerseySVG = `<svg xmlns="http://www.w3.org/2000/svg" width="200" height="200" viewBox="0 0 200 200">
<path d="M60 20 L20 50 L40 90 L60 80 L60 180 L140 180 L140 80 L160 90 L180 50 L140 20 L120 35 L80 35 Z" fill="%s" stroke="#222222" stroke-width="4"/>
</svg>`

func (s *Server) handleLogo(w http.ResponseWriter, r *http.Request) {
	name := path.Base(r.URL.Path)
	if !strings.HasSuffix(name, ".png") {
		http.NotFound(w, r)
		return
	}

	data, err := assets.Swatch(colorFor(name), 128, 128)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

func (s *Server) handleJersey(w http.ResponseWriter, r *http.Request) {
	name := path.Base(r.URL.Path)
	if !strings.HasSuffix(name, ".svg") {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	fmt.Fprintf(w, jerseySVG, colorFor(name))
}

// colorFor picks a stable color per file name
func colorFor(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	return fmt.Sprintf("#%06x", h.Sum32()&0xffffff)
}
