// ABOUTME: Audible alert when the timekeeper heartbeat is lost
// ABOUTME: Decodes an MP3 clip once and plays it through oto on demand
package alert

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
	"github.com/rs/zerolog/log"
)

// Clip is decoded 16-bit little-endian stereo PCM
type Clip struct {
	PCM        []byte
	SampleRate int
}

// Duration returns the playback length
func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	frames := len(c.PCM) / 4
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Decode reads a whole MP3 stream into memory
func Decode(r io.Reader) (*Clip, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode error: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("mp3 stream has no audio")
	}

	return &Clip{PCM: pcm, SampleRate: decoder.SampleRate()}, nil
}

// Alert plays one clip, never overlapping itself
type Alert struct {
	clip    *Clip
	otoCtx  *oto.Context
	playing atomic.Bool
}

// Load decodes path and opens the audio device
func Load(path string) (*Alert, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open alert sound: %w", err)
	}
	defer f.Close()

	clip, err := Decode(f)
	if err != nil {
		return nil, err
	}

	op := &oto.NewContextOptions{
		SampleRate:   clip.SampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}
	otoCtx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	log.Info().Str("file", path).Dur("length", clip.Duration()).Int("sample_rate", clip.SampleRate).Msg("Alert sound loaded")

	return &Alert{clip: clip, otoCtx: otoCtx}, nil
}

// Play starts the clip unless it is already sounding. It does not block.
func (a *Alert) Play() {
	if !a.playing.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer a.playing.Store(false)

		player := a.otoCtx.NewPlayer(bytes.NewReader(a.clip.PCM))
		defer player.Close()

		player.Play()
		for player.IsPlaying() {
			time.Sleep(50 * time.Millisecond)
		}
	}()
}

// OnLiveness plays the clip when the timekeeper drops off
func (a *Alert) OnLiveness(connected bool) {
	if !connected {
		log.Warn().Msg("Timekeeper lost, sounding alert")
		a.Play()
	}
}
