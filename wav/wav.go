// Package wav decodes wav data into engine buffers for file-input nodes and
// encodes buffers back into wav files.
package wav

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/pipelined/patchbay/engine"
)

var (
	// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
	ErrUnsupportedBitDepth = errors.New("only 16, 24 and 32 bit depth is supported")
	// ErrInvalidFile is returned when data is not a valid wav file.
	ErrInvalidFile = errors.New("wav is not valid")
)

const pcmFormat = 1

func supported(bitDepth int) bool {
	return bitDepth == 16 || bitDepth == 24 || bitDepth == 32
}

// Decode reads the whole wav stream into a buffer with samples
// normalized to [-1, 1].
func Decode(r io.ReadSeeker) (*engine.Buffer, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidFile
	}
	bitDepth := int(decoder.BitDepth)
	if !supported(bitDepth) {
		return nil, fmt.Errorf("%d bits: %w", bitDepth, ErrUnsupportedBitDepth)
	}

	ib, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode pcm: %w", err)
	}
	numChannels := int(decoder.NumChans)
	if numChannels == 0 {
		return nil, ErrInvalidFile
	}
	frames := len(ib.Data) / numChannels
	channels := make([][]float64, numChannels)
	for c := range channels {
		channels[c] = make([]float64, frames)
	}
	scale := float64(int64(1) << uint(bitDepth-1))
	for i := 0; i < frames*numChannels; i++ {
		channels[i%numChannels][i/numChannels] = float64(ib.Data[i]) / scale
	}
	return &engine.Buffer{
		SampleRate: int(decoder.SampleRate),
		Channels:   channels,
	}, nil
}

// DecodeFile decodes the wav file at path.
func DecodeFile(path string) (*engine.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Encode writes buf as pcm wav with provided bit depth.
func Encode(w io.WriteSeeker, buf *engine.Buffer, bitDepth int) error {
	if !supported(bitDepth) {
		return fmt.Errorf("%d bits: %w", bitDepth, ErrUnsupportedBitDepth)
	}
	numChannels := len(buf.Channels)
	e := wav.NewEncoder(w, buf.SampleRate, bitDepth, numChannels, pcmFormat)

	frames := buf.Frames()
	max := float64(int64(1)<<uint(bitDepth-1) - 1)
	data := make([]int, frames*numChannels)
	for i := range data {
		v := buf.Channels[i%numChannels][i/numChannels]
		switch {
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		data[i] = int(v * max)
	}
	ib := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  buf.SampleRate,
		},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := e.Write(ib); err != nil {
		return err
	}
	return e.Close()
}

// EncodeFile writes buf into a new wav file at path.
func EncodeFile(path string, buf *engine.Buffer, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, buf, bitDepth); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
