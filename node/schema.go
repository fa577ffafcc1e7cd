package node

// Unit is the semantic unit of a parameter value.
type Unit string

// Parameter units.
const (
	Hertz    Unit = "Hz"
	Seconds  Unit = "s"
	Decibels Unit = "dB"
	Cents    Unit = "cents"
	Linear   Unit = "linear"
	Ratio    Unit = "ratio"
	Index    Unit = "index"
	Toggle   Unit = "toggle"
	Samples  Unit = "samples"
)

// Param describes a single parameter of a node type. Min, Max and Step
// are presentation hints: the graph stores whatever value it is given.
type Param struct {
	Name    string
	Label   string
	Unit    Unit
	Default float64
	Min     float64
	Max     float64
	Step    float64
}

// Clamp limits v to the parameter range.
func (p Param) Clamp(v float64) float64 {
	switch {
	case v < p.Min:
		return p.Min
	case v > p.Max:
		return p.Max
	}
	return v
}

type schema struct {
	label    string
	inputs   []string
	outputs  []string
	params   func() []Param
	defaults func() Params
}

var (
	in   = []string{InputPort}
	out  = []string{OutputPort}
	none = []string{}
)

var oscillatorFields = fields[OscillatorParams]{
	{Param{Name: "type", Label: "Waveform", Unit: Index, Default: 0, Min: 0, Max: 3, Step: 1},
		func(p *OscillatorParams) *float64 { return &p.Waveform }},
	{Param{Name: "frequency", Label: "Frequency (Hz)", Unit: Hertz, Default: 440, Min: 20, Max: 20000, Step: 1},
		func(p *OscillatorParams) *float64 { return &p.Frequency }},
	{Param{Name: "detune", Label: "Detune (cents)", Unit: Cents, Default: 0, Min: -1200, Max: 1200, Step: 1},
		func(p *OscillatorParams) *float64 { return &p.Detune }},
	{Param{Name: "gain", Label: "Gain", Unit: Linear, Default: 0.5, Min: 0, Max: 1, Step: 0.01},
		func(p *OscillatorParams) *float64 { return &p.Gain }},
}

var fileInputFields = fields[FileInputParams]{
	{Param{Name: "gain", Label: "Gain", Unit: Linear, Default: 1, Min: 0, Max: 1, Step: 0.01},
		func(p *FileInputParams) *float64 { return &p.Gain }},
	{Param{Name: "loop", Label: "Loop", Unit: Toggle, Default: 0, Min: 0, Max: 1, Step: 1},
		func(p *FileInputParams) *float64 { return &p.Loop }},
}

var delayFields = fields[DelayParams]{
	{Param{Name: "delayTime", Label: "Delay Time (s)", Unit: Seconds, Default: 0.5, Min: 0, Max: 2, Step: 0.01},
		func(p *DelayParams) *float64 { return &p.DelayTime }},
	{Param{Name: "feedback", Label: "Feedback", Unit: Linear, Default: 0.5, Min: 0, Max: 0.95, Step: 0.01},
		func(p *DelayParams) *float64 { return &p.Feedback }},
}

var reverbFields = fields[ReverbParams]{
	{Param{Name: "decay", Label: "Decay (s)", Unit: Seconds, Default: 2, Min: 0.1, Max: 10, Step: 0.1},
		func(p *ReverbParams) *float64 { return &p.Decay }},
	{Param{Name: "preDelay", Label: "Pre-Delay (s)", Unit: Seconds, Default: 0.01, Min: 0, Max: 0.1, Step: 0.001},
		func(p *ReverbParams) *float64 { return &p.PreDelay }},
}

var compressorFields = fields[CompressorParams]{
	{Param{Name: "threshold", Label: "Threshold (dB)", Unit: Decibels, Default: -24, Min: -60, Max: 0, Step: 1},
		func(p *CompressorParams) *float64 { return &p.Threshold }},
	{Param{Name: "ratio", Label: "Ratio", Unit: Ratio, Default: 4, Min: 1, Max: 20, Step: 0.5},
		func(p *CompressorParams) *float64 { return &p.Ratio }},
	{Param{Name: "attack", Label: "Attack (s)", Unit: Seconds, Default: 0.003, Min: 0, Max: 1, Step: 0.001},
		func(p *CompressorParams) *float64 { return &p.Attack }},
	{Param{Name: "release", Label: "Release (s)", Unit: Seconds, Default: 0.25, Min: 0, Max: 1, Step: 0.01},
		func(p *CompressorParams) *float64 { return &p.Release }},
}

var filterFields = fields[FilterParams]{
	{Param{Name: "frequency", Label: "Frequency (Hz)", Unit: Hertz, Default: 1000, Min: 20, Max: 20000, Step: 1},
		func(p *FilterParams) *float64 { return &p.Frequency }},
	{Param{Name: "Q", Label: "Q", Unit: Ratio, Default: 1, Min: 0.1, Max: 20, Step: 0.1},
		func(p *FilterParams) *float64 { return &p.Q }},
	{Param{Name: "gain", Label: "Gain (dB)", Unit: Decibels, Default: 0, Min: -30, Max: 30, Step: 0.5},
		func(p *FilterParams) *float64 { return &p.Gain }},
}

var equalizerFields = fields[EqualizerParams]{
	{Param{Name: "lowFrequency", Label: "Low (Hz)", Unit: Hertz, Default: 320, Min: 20, Max: 1000, Step: 1},
		func(p *EqualizerParams) *float64 { return &p.LowFrequency }},
	{Param{Name: "lowGain", Label: "Low Gain (dB)", Unit: Decibels, Default: 0, Min: -30, Max: 30, Step: 0.5},
		func(p *EqualizerParams) *float64 { return &p.LowGain }},
	{Param{Name: "midFrequency", Label: "Mid (Hz)", Unit: Hertz, Default: 1000, Min: 200, Max: 5000, Step: 1},
		func(p *EqualizerParams) *float64 { return &p.MidFrequency }},
	{Param{Name: "midGain", Label: "Mid Gain (dB)", Unit: Decibels, Default: 0, Min: -30, Max: 30, Step: 0.5},
		func(p *EqualizerParams) *float64 { return &p.MidGain }},
	{Param{Name: "midQ", Label: "Mid Q", Unit: Ratio, Default: 0.5, Min: 0.1, Max: 20, Step: 0.1},
		func(p *EqualizerParams) *float64 { return &p.MidQ }},
	{Param{Name: "highFrequency", Label: "High (Hz)", Unit: Hertz, Default: 3200, Min: 1000, Max: 20000, Step: 1},
		func(p *EqualizerParams) *float64 { return &p.HighFrequency }},
	{Param{Name: "highGain", Label: "High Gain (dB)", Unit: Decibels, Default: 0, Min: -30, Max: 30, Step: 0.5},
		func(p *EqualizerParams) *float64 { return &p.HighGain }},
}

var visualizerFields = fields[VisualizerParams]{
	{Param{Name: "fftSize", Label: "FFT Size", Unit: Samples, Default: 2048, Min: 32, Max: 32768, Step: 32},
		func(p *VisualizerParams) *float64 { return &p.FFTSize }},
	{Param{Name: "smoothingTimeConstant", Label: "Smoothing", Unit: Linear, Default: 0.8, Min: 0, Max: 1, Step: 0.01},
		func(p *VisualizerParams) *float64 { return &p.Smoothing }},
	{Param{Name: "minDecibels", Label: "Min (dB)", Unit: Decibels, Default: -100, Min: -140, Max: -30, Step: 1},
		func(p *VisualizerParams) *float64 { return &p.MinDecibels }},
	{Param{Name: "maxDecibels", Label: "Max (dB)", Unit: Decibels, Default: -30, Min: -100, Max: 0, Step: 1},
		func(p *VisualizerParams) *float64 { return &p.MaxDecibels }},
}

// variant builds the schema entries backed by an accessor table.
func variant[P Params](label string, inputs, outputs []string, fs fields[P]) schema {
	return schema{
		label:    label,
		inputs:   inputs,
		outputs:  outputs,
		params:   fs.params,
		defaults: func() Params { return fs.defaults() },
	}
}

func empty(t Type, label string, inputs, outputs []string) schema {
	return schema{
		label:    label,
		inputs:   inputs,
		outputs:  outputs,
		params:   func() []Param { return nil },
		defaults: func() Params { return NoParams{t: t} },
	}
}

var schemas = map[Type]schema{
	SourceInput: empty(SourceInput, "Audio Source", none, out),
	Destination: empty(Destination, "Output", in, none),
	Oscillator:  variant("Oscillator", none, out, oscillatorFields),
	FileInput:   variant("File Input", none, out, fileInputFields),
	Delay:       variant("Delay", in, out, delayFields),
	Reverb:      variant("Reverb", in, out, reverbFields),
	Compressor:  variant("Compressor", in, out, compressorFields),
	Filter:      variant("Filter", in, out, filterFields),
	Equalizer:   variant("Parametric EQ", in, out, equalizerFields),
	Visualizer:  variant("Visualizer", in, out, visualizerFields),
}

// Schema returns the parameter table of type t in declaration order. The
// presentation layer uses it to render controls and clamp values.
func Schema(t Type) []Param {
	if s, ok := schemas[t]; ok {
		return s.params()
	}
	return nil
}

// Lookup returns the schema entry of the named parameter of type t.
func Lookup(t Type, name string) (Param, bool) {
	for _, p := range Schema(t) {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}
