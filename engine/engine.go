// Package engine defines the capabilities patchbay consumes from a real-time
// audio engine and manages the lifecycle of the single engine instance.
//
// The engine is an opaque provider: it constructs processing units of fixed
// kinds, connects and disconnects them, and owns a shared activation clock
// that can be suspended, resumed and closed. Effect algorithms are the
// engine's business.
package engine

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned when an operation is attempted after the
	// engine was closed.
	ErrClosed = errors.New("engine closed")
	// ErrNotStartable is returned when Start is called on a unit that does
	// not generate signal on its own.
	ErrNotStartable = errors.New("unit is not startable")
	// ErrUnsupported is returned by optional capabilities the engine
	// instance cannot provide.
	ErrUnsupported = errors.New("unsupported by engine")
)

// Kind identifies the kind of processing unit.
type Kind int

// Unit kinds.
const (
	Generator Kind = iota
	Gain
	DelayLine
	ConvolutionReverb
	DynamicsCompressor
	BandFilter
	SpectrumAnalyser
	BufferSource
	StreamSource
	Output
)

var kindNames = [...]string{
	Generator:          "generator",
	Gain:               "gain",
	DelayLine:          "delay-line",
	ConvolutionReverb:  "convolution-reverb",
	DynamicsCompressor: "dynamics-compressor",
	BandFilter:         "band-filter",
	SpectrumAnalyser:   "spectrum-analyser",
	BufferSource:       "buffer-source",
	StreamSource:       "stream-source",
	Output:             "output",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Startable reports whether units of the kind must be started to produce
// signal.
func (k Kind) Startable() bool {
	return k == Generator || k == BufferSource
}

// Shape selects the response of a band filter.
type Shape int

// Band filter shapes.
const (
	Lowpass Shape = iota
	Highpass
	Bandpass
	LowShelf
	Peaking
	HighShelf
	Notch
	Allpass
)

var shapeNames = [...]string{
	Lowpass:   "lowpass",
	Highpass:  "highpass",
	Bandpass:  "bandpass",
	LowShelf:  "lowshelf",
	Peaking:   "peaking",
	HighShelf: "highshelf",
	Notch:     "notch",
	Allpass:   "allpass",
}

func (s Shape) String() string {
	if s >= 0 && int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return "unknown"
}

// Waveform is the periodic shape of a generator.
type Waveform int

// Generator waveforms.
const (
	Sine Waveform = iota
	Square
	Sawtooth
	Triangle
)

// Waveforms is the fixed selector table of generator waveforms.
var Waveforms = [4]Waveform{Sine, Square, Sawtooth, Triangle}

// WaveformAt returns the waveform at index i of the selector table. Out of
// range indices are clamped.
func WaveformAt(i int) Waveform {
	switch {
	case i < 0:
		i = 0
	case i >= len(Waveforms):
		i = len(Waveforms) - 1
	}
	return Waveforms[i]
}

func (w Waveform) String() string {
	switch w {
	case Sine:
		return "sine"
	case Square:
		return "square"
	case Sawtooth:
		return "sawtooth"
	case Triangle:
		return "triangle"
	}
	return "unknown"
}

// Control names understood by units. Kinds ignore controls they don't have.
const (
	ControlWaveform  = "waveform"
	ControlFrequency = "frequency"
	ControlDetune    = "detune"
	ControlGain      = "gain"
	ControlQ         = "Q"
	ControlDelayTime = "delayTime"
	ControlFeedback  = "feedback"
	ControlDecay     = "decay"
	ControlPreDelay  = "preDelay"
	ControlThreshold = "threshold"
	ControlRatio     = "ratio"
	ControlAttack    = "attack"
	ControlRelease   = "release"
	ControlFFTSize   = "fftSize"
	ControlSmoothing = "smoothingTimeConstant"
	ControlMinDB     = "minDecibels"
	ControlMaxDB     = "maxDecibels"
	ControlLoop      = "loop"
)

// Buffer is decoded audio, one slice of samples per channel.
type Buffer struct {
	SampleRate int
	Channels   [][]float64
}

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback duration of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Stream is a live capture stream handed out by the host once the user
// granted access to an input device.
type Stream interface {
	ID() string
}

// UnitSpec describes a unit to construct.
type UnitSpec struct {
	Kind     Kind
	Shape    Shape
	Controls map[string]float64
	// Buffer is played by BufferSource units.
	Buffer *Buffer
	// Stream is captured by StreamSource units.
	Stream Stream
}

// Unit is a processing unit instance living in an engine.
type Unit interface {
	ID() string
	Kind() Kind
	// SetControl sets the named control value immediately.
	SetControl(name string, value float64) error
	// Start starts signal generation of startable units.
	Start() error
}

// State is the state of the engine activation clock.
type State int

// Engine states.
const (
	Uninitialized State = iota
	Suspended
	Running
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Suspended:
		return "suspended"
	case Running:
		return "running"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Context is a live engine instance.
type Context interface {
	State() State
	// Resume requests the activation clock to run and waits until it does.
	Resume(ctx context.Context) error
	// Suspend pauses the activation clock.
	Suspend(ctx context.Context) error
	// Close releases the engine. Every later call fails with ErrClosed.
	Close() error

	// Create constructs a unit.
	Create(spec UnitSpec) (Unit, error)
	// Destination returns the shared device output unit.
	Destination() Unit
	// Connect routes the output of src into the input of dst.
	Connect(src, dst Unit) error
	// Disconnect removes every outgoing connection of src.
	Disconnect(src Unit) error
	// Release destroys the unit.
	Release(u Unit) error
}

// EdgeDisconnecter is implemented by engines able to remove a single
// connection between two units.
type EdgeDisconnecter interface {
	DisconnectEdge(src, dst Unit) error
}

// Describer is implemented by engines reporting their stream settings.
type Describer interface {
	SampleRate() int
	LatencyHint() string
}

// OpenFunc constructs a new engine instance.
type OpenFunc func() (Context, error)
