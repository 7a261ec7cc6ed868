// ABOUTME: Mirrors team names, logos, jerseys and colors into output files
// ABOUTME: Downloads run on their own goroutine and keep only the latest snapshot
package assets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/quidditchlive/overlay-feed/internal/remote"
	"github.com/quidditchlive/overlay-feed/internal/sink"
	"github.com/quidditchlive/overlay-feed/internal/state"
)

// ErrUnsupported is returned for assets that are neither PNG nor SVG
var ErrUnsupported = errors.New("unsupported asset format")

// Fetcher resolves and downloads team assets
type Fetcher interface {
	AssetURL(kind remote.AssetKind, name string) string
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// SyncNames writes both team names. Unchanged names cost nothing.
func SyncNames(out sink.Writer, snap *state.Snapshot) {
	for _, side := range state.Sides {
		team, ok := snap.Teams[side]
		if !ok {
			continue
		}
		field := sink.TeamNameField(side)
		name := team.Name
		done := out.WriteIfChanged(field, name)
		go func() {
			res := <-done
			if res.Err != nil {
				log.Error().Err(res.Err).Str("file", string(field)).Msg("Failed to save team name")
			} else if res.Written {
				log.Info().Str("team", string(side)).Str("name", name).Str("file", string(field)).Msg("Team name saved")
			}
		}()
	}
}

// Syncer applies the image assets of the newest submitted snapshot
type Syncer struct {
	fetch   Fetcher
	out     sink.Writer
	pending chan *state.Snapshot

	// Owned by the goroutine calling Apply
	applied map[sink.Field]string
}

// NewSyncer creates a syncer writing into out
func NewSyncer(fetch Fetcher, out sink.Writer) *Syncer {
	return &Syncer{
		fetch:   fetch,
		out:     out,
		pending: make(chan *state.Snapshot, 1),
		applied: make(map[sink.Field]string),
	}
}

// Submit queues snap, replacing any snapshot not yet picked up.
// Call from a single goroutine.
func (s *Syncer) Submit(snap *state.Snapshot) {
	if snap == nil {
		return
	}
	select {
	case <-s.pending:
	default:
	}
	s.pending <- snap
}

// Run applies submitted snapshots until ctx is done
func (s *Syncer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-s.pending:
			s.Apply(ctx, snap)
		}
	}
}

// Apply brings every image file in line with snap. A failed asset is not
// remembered, so the next snapshot retries it.
func (s *Syncer) Apply(ctx context.Context, snap *state.Snapshot) {
	for _, side := range state.Sides {
		team, ok := snap.Teams[side]
		if !ok {
			continue
		}

		s.applyImage(ctx, side, team, remote.AssetLogo, team.Logo)
		s.applyImage(ctx, side, team, remote.AssetJersey, team.Jersey)
		s.applyColor(side, team)
	}
}

func (s *Syncer) applyImage(ctx context.Context, side state.Side, team state.Team, kind remote.AssetKind, name string) {
	field := sink.ImageField(string(kind), side)
	if name == "" || s.applied[field] == name {
		return
	}

	data, err := s.load(ctx, kind, name)
	if err != nil {
		log.Warn().Err(err).Str("asset", string(kind)).Str("team", team.Name).Msg("Could not load asset")
		return
	}

	if s.commit(field, data) {
		s.applied[field] = name
		log.Info().Str("asset", string(kind)).Str("team", team.Name).Str("file", string(field)).Msg("Asset saved")
	}
}

func (s *Syncer) applyColor(side state.Side, team state.Team) {
	field := sink.ImageField("color", side)
	c := team.JerseyPrimaryColor
	if c == "" || s.applied[field] == c {
		return
	}

	data, err := Swatch(c, SwatchWidth, SwatchHeight)
	if err != nil {
		log.Warn().Err(err).Str("team", team.Name).Msg("Could not render jersey color")
		return
	}

	if s.commit(field, data) {
		s.applied[field] = c
		log.Info().Str("color", c).Str("team", team.Name).Str("file", string(field)).Msg("Color saved")
	}
}

func (s *Syncer) commit(field sink.Field, data []byte) bool {
	res := <-s.out.WriteBytesIfChanged(field, data)
	if res.Err != nil {
		log.Error().Err(res.Err).Str("file", string(field)).Msg("Failed to save asset")
		return false
	}
	return true
}

// load downloads an asset and returns it as PNG
func (s *Syncer) load(ctx context.Context, kind remote.AssetKind, name string) ([]byte, error) {
	rawURL := s.fetch.AssetURL(kind, name)

	switch ext := assetExt(rawURL); ext {
	case ".png":
		return s.fetch.Fetch(ctx, rawURL)
	case ".svg":
		data, err := s.fetch.Fetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		return RasterizeSVG(data, ImageSize, ImageSize)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, name)
	}
}

func assetExt(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}
