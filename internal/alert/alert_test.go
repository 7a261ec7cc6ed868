// ABOUTME: Tests for the timekeeper alert
// ABOUTME: Covers decoding failures without touching the audio device
package alert

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.mp3"))
	assert.ErrorContains(t, err, "failed to open alert sound")
}

func TestDecodeRejectsNonMP3(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("definitely not an mp3 stream")))
	assert.Error(t, err)
}

func TestDecodeEmpty(t *testing.T) {
	_, err := Decode(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestClipDuration(t *testing.T) {
	clip := &Clip{PCM: make([]byte, 44100*4), SampleRate: 44100}
	assert.Equal(t, time.Second, clip.Duration())
	assert.Equal(t, time.Duration(0), (&Clip{}).Duration())
}
