package wav_test

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/patchbay/engine"
	"github.com/pipelined/patchbay/wav"
)

// tone returns a buffer with a sine in every channel.
func tone(sampleRate, numChannels, frames int) *engine.Buffer {
	buf := &engine.Buffer{SampleRate: sampleRate, Channels: make([][]float64, numChannels)}
	for c := range buf.Channels {
		buf.Channels[c] = make([]float64, frames)
		for i := range buf.Channels[c] {
			buf.Channels[c][i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)) / float64(c+1)
		}
	}
	return buf
}

func TestRoundTrip(t *testing.T) {
	var tests = []struct {
		bitDepth    int
		sampleRate  int
		numChannels int
		frames      int
		delta       float64
	}{
		{bitDepth: 16, sampleRate: 44100, numChannels: 2, frames: 1000, delta: 1e-4},
		{bitDepth: 24, sampleRate: 48000, numChannels: 1, frames: 480, delta: 1e-6},
		{bitDepth: 32, sampleRate: 22050, numChannels: 2, frames: 300, delta: 1e-8},
	}
	dir := t.TempDir()
	for _, test := range tests {
		in := tone(test.sampleRate, test.numChannels, test.frames)
		path := filepath.Join(dir, "tone.wav")
		require.NoError(t, wav.EncodeFile(path, in, test.bitDepth))

		out, err := wav.DecodeFile(path)
		require.NoError(t, err)
		assert.Equal(t, test.sampleRate, out.SampleRate)
		require.Len(t, out.Channels, test.numChannels)
		assert.Equal(t, test.frames, out.Frames())
		for c := range in.Channels {
			assert.InDeltaSlice(t, in.Channels[c], out.Channels[c], test.delta)
		}
	}
}

func TestUnsupportedBitDepth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	err := wav.EncodeFile(path, tone(44100, 1, 10), 12)
	assert.True(t, errors.Is(err, wav.ErrUnsupportedBitDepth))
}

func TestInvalidFile(t *testing.T) {
	_, err := wav.Decode(bytes.NewReader([]byte("definitely not a riff file")))
	assert.Equal(t, wav.ErrInvalidFile, err)

	_, err = wav.DecodeFile(filepath.Join(t.TempDir(), "missing.wav"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
