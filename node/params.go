package node

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownParam is returned when a parameter name is not part of the
// node type schema.
var ErrUnknownParam = errors.New("unknown parameter")

// Params is a per-type parameter variant. Every implementation carries a
// fixed set of fields; the name based accessors exist for the presentation
// layer. Values are immutable: With returns an updated copy.
type Params interface {
	// Type returns the node type the variant belongs to.
	Type() Type
	// Get returns the value of the named parameter.
	Get(name string) (float64, bool)
	// With returns a copy with the named parameter replaced.
	With(name string, value float64) (Params, error)
	// Values returns all parameters mapped by name.
	Values() map[string]float64
}

type (
	// OscillatorParams configures an oscillator. Waveform is an index into
	// the sine, square, sawtooth, triangle table.
	OscillatorParams struct {
		Waveform  float64
		Frequency float64
		Detune    float64
		Gain      float64
	}

	// FileInputParams configures playback of a decoded file. Loop is 0 or 1.
	FileInputParams struct {
		Gain float64
		Loop float64
	}

	// DelayParams configures a feedback delay line.
	DelayParams struct {
		DelayTime float64
		Feedback  float64
	}

	// ReverbParams configures a convolution reverb.
	ReverbParams struct {
		Decay    float64
		PreDelay float64
	}

	// CompressorParams configures a dynamics compressor.
	CompressorParams struct {
		Threshold float64
		Ratio     float64
		Attack    float64
		Release   float64
	}

	// FilterParams configures a lowpass band filter.
	FilterParams struct {
		Frequency float64
		Q         float64
		Gain      float64
	}

	// EqualizerParams configures the three bands of an equalizer.
	EqualizerParams struct {
		LowFrequency  float64
		LowGain       float64
		MidFrequency  float64
		MidGain       float64
		MidQ          float64
		HighFrequency float64
		HighGain      float64
	}

	// VisualizerParams configures a spectrum analyser.
	VisualizerParams struct {
		FFTSize     float64
		Smoothing   float64
		MinDecibels float64
		MaxDecibels float64
	}

	// NoParams is the variant of node types without parameters.
	NoParams struct {
		t Type
	}
)

// field binds a schema entry to the struct field holding its value.
type field[P any] struct {
	Param
	ref func(*P) *float64
}

// fields is an accessor table of a parameter variant.
type fields[P any] []field[P]

func (fs fields[P]) get(p P, name string) (float64, bool) {
	for _, f := range fs {
		if f.Name == name {
			return *f.ref(&p), true
		}
	}
	return 0, false
}

func (fs fields[P]) with(p P, name string, value float64) (P, error) {
	for _, f := range fs {
		if f.Name == name {
			*f.ref(&p) = value
			return p, nil
		}
	}
	return p, fmt.Errorf("%w: %q", ErrUnknownParam, name)
}

func (fs fields[P]) values(p P) map[string]float64 {
	m := make(map[string]float64, len(fs))
	for _, f := range fs {
		m[f.Name] = *f.ref(&p)
	}
	return m
}

func (fs fields[P]) defaults() P {
	var p P
	for _, f := range fs {
		*f.ref(&p) = f.Default
	}
	return p
}

func (fs fields[P]) params() []Param {
	ps := make([]Param, 0, len(fs))
	for _, f := range fs {
		ps = append(ps, f.Param)
	}
	return ps
}

// Type implements Params.
func (OscillatorParams) Type() Type { return Oscillator }

// Get implements Params.
func (p OscillatorParams) Get(name string) (float64, bool) { return oscillatorFields.get(p, name) }

// With implements Params.
func (p OscillatorParams) With(name string, v float64) (Params, error) {
	return oscillatorFields.with(p, name, v)
}

// Values implements Params.
func (p OscillatorParams) Values() map[string]float64 { return oscillatorFields.values(p) }

// Type implements Params.
func (FileInputParams) Type() Type { return FileInput }

// Get implements Params.
func (p FileInputParams) Get(name string) (float64, bool) { return fileInputFields.get(p, name) }

// With implements Params.
func (p FileInputParams) With(name string, v float64) (Params, error) {
	return fileInputFields.with(p, name, v)
}

// Values implements Params.
func (p FileInputParams) Values() map[string]float64 { return fileInputFields.values(p) }

// Type implements Params.
func (DelayParams) Type() Type { return Delay }

// Get implements Params.
func (p DelayParams) Get(name string) (float64, bool) { return delayFields.get(p, name) }

// With implements Params.
func (p DelayParams) With(name string, v float64) (Params, error) {
	return delayFields.with(p, name, v)
}

// Values implements Params.
func (p DelayParams) Values() map[string]float64 { return delayFields.values(p) }

// Type implements Params.
func (ReverbParams) Type() Type { return Reverb }

// Get implements Params.
func (p ReverbParams) Get(name string) (float64, bool) { return reverbFields.get(p, name) }

// With implements Params.
func (p ReverbParams) With(name string, v float64) (Params, error) {
	return reverbFields.with(p, name, v)
}

// Values implements Params.
func (p ReverbParams) Values() map[string]float64 { return reverbFields.values(p) }

// Type implements Params.
func (CompressorParams) Type() Type { return Compressor }

// Get implements Params.
func (p CompressorParams) Get(name string) (float64, bool) { return compressorFields.get(p, name) }

// With implements Params.
func (p CompressorParams) With(name string, v float64) (Params, error) {
	return compressorFields.with(p, name, v)
}

// Values implements Params.
func (p CompressorParams) Values() map[string]float64 { return compressorFields.values(p) }

// Type implements Params.
func (FilterParams) Type() Type { return Filter }

// Get implements Params.
func (p FilterParams) Get(name string) (float64, bool) { return filterFields.get(p, name) }

// With implements Params.
func (p FilterParams) With(name string, v float64) (Params, error) {
	return filterFields.with(p, name, v)
}

// Values implements Params.
func (p FilterParams) Values() map[string]float64 { return filterFields.values(p) }

// Type implements Params.
func (EqualizerParams) Type() Type { return Equalizer }

// Get implements Params.
func (p EqualizerParams) Get(name string) (float64, bool) { return equalizerFields.get(p, name) }

// With implements Params.
func (p EqualizerParams) With(name string, v float64) (Params, error) {
	return equalizerFields.with(p, name, v)
}

// Values implements Params.
func (p EqualizerParams) Values() map[string]float64 { return equalizerFields.values(p) }

// Type implements Params.
func (VisualizerParams) Type() Type { return Visualizer }

// Get implements Params.
func (p VisualizerParams) Get(name string) (float64, bool) { return visualizerFields.get(p, name) }

// With implements Params.
func (p VisualizerParams) With(name string, v float64) (Params, error) {
	return visualizerFields.with(p, name, v)
}

// Values implements Params.
func (p VisualizerParams) Values() map[string]float64 { return visualizerFields.values(p) }

// Type implements Params.
func (p NoParams) Type() Type { return p.t }

// Get implements Params.
func (NoParams) Get(string) (float64, bool) { return 0, false }

// With implements Params.
func (NoParams) With(name string, _ float64) (Params, error) {
	return nil, fmt.Errorf("%w: %q", ErrUnknownParam, name)
}

// Values implements Params.
func (NoParams) Values() map[string]float64 { return map[string]float64{} }

// Defaults returns the default parameter variant of type t. Unknown types
// get an empty variant.
func Defaults(t Type) Params {
	if s, ok := schemas[t]; ok {
		return s.defaults()
	}
	return NoParams{t: t}
}

// Apply returns p with every known entry of values replaced. Names missing
// from the schema are returned as unknown and left out.
func Apply(p Params, values map[string]float64) (Params, []string) {
	var unknown []string
	for _, name := range sortedKeys(values) {
		updated, err := p.With(name, values[name])
		if err != nil {
			unknown = append(unknown, name)
			continue
		}
		p = updated
	}
	return p, unknown
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
