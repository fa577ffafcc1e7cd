package binding

import (
	"fmt"

	"github.com/pipelined/patchbay/engine"
	"github.com/pipelined/patchbay/node"
)

// Factory builds the binding of a node.
type Factory func(e engine.Context, n node.Node, gates Gates) (*Binding, error)

// control routes a node parameter into a unit control.
type control struct {
	role    Role
	name    string
	convert func(float64) float64
}

func same(v float64) float64 { return v }

// waveform maps the selector index to the waveform the generator expects.
func waveform(v float64) float64 { return float64(engine.WaveformAt(int(v))) }

var controls = map[node.Type]map[string]control{
	node.Oscillator: {
		"type":      {RoleGenerator, engine.ControlWaveform, waveform},
		"frequency": {RoleGenerator, engine.ControlFrequency, same},
		"detune":    {RoleGenerator, engine.ControlDetune, same},
		"gain":      {RoleGain, engine.ControlGain, same},
	},
	node.FileInput: {
		"gain": {RoleGain, engine.ControlGain, same},
		"loop": {RolePlayer, engine.ControlLoop, same},
	},
	node.Delay: {
		"delayTime": {RoleDelay, engine.ControlDelayTime, same},
		"feedback":  {RoleDelay, engine.ControlFeedback, same},
	},
	node.Reverb: {
		"decay":    {RoleReverb, engine.ControlDecay, same},
		"preDelay": {RoleReverb, engine.ControlPreDelay, same},
	},
	node.Compressor: {
		"threshold": {RoleCompressor, engine.ControlThreshold, same},
		"ratio":     {RoleCompressor, engine.ControlRatio, same},
		"attack":    {RoleCompressor, engine.ControlAttack, same},
		"release":   {RoleCompressor, engine.ControlRelease, same},
	},
	node.Filter: {
		"frequency": {RoleFilter, engine.ControlFrequency, same},
		"Q":         {RoleFilter, engine.ControlQ, same},
		"gain":      {RoleFilter, engine.ControlGain, same},
	},
	node.Equalizer: {
		"lowFrequency":  {RoleLow, engine.ControlFrequency, same},
		"lowGain":       {RoleLow, engine.ControlGain, same},
		"midFrequency":  {RoleMid, engine.ControlFrequency, same},
		"midGain":       {RoleMid, engine.ControlGain, same},
		"midQ":          {RoleMid, engine.ControlQ, same},
		"highFrequency": {RoleHigh, engine.ControlFrequency, same},
		"highGain":      {RoleHigh, engine.ControlGain, same},
	},
	node.Visualizer: {
		"fftSize":               {RoleAnalyser, engine.ControlFFTSize, same},
		"smoothingTimeConstant": {RoleAnalyser, engine.ControlSmoothing, same},
		"minDecibels":           {RoleAnalyser, engine.ControlMinDB, same},
		"maxDecibels":           {RoleAnalyser, engine.ControlMaxDB, same},
	},
}

// Control returns the stage role and unit control driven by the named
// parameter of node type t.
func Control(t node.Type, param string) (Role, string, bool) {
	c, ok := controls[t][param]
	if !ok {
		return "", "", false
	}
	return c.role, c.name, true
}

// feed supplies external input of a stage.
type feed func(nodeID string, gates Gates, spec *engine.UnitSpec) error

type stage struct {
	role   Role
	kind   engine.Kind
	shape  engine.Shape
	start  bool
	shared bool
	feed   feed
}

type recipe struct {
	stages []stage
	in     int
	out    int
	// chain connects consecutive stages at construction.
	chain bool
}

var recipes = map[node.Type]recipe{
	node.SourceInput: {
		stages: []stage{{role: RoleStream, kind: engine.StreamSource, feed: stream}},
		in:     -1,
		out:    0,
	},
	node.Destination: {
		stages: []stage{{role: RoleDestination, kind: engine.Output, shared: true}},
		in:     0,
		out:    -1,
	},
	node.Oscillator: {
		stages: []stage{
			{role: RoleGenerator, kind: engine.Generator, start: true},
			{role: RoleGain, kind: engine.Gain},
		},
		in:    -1,
		out:   1,
		chain: true,
	},
	node.FileInput: {
		stages: []stage{
			{role: RolePlayer, kind: engine.BufferSource, start: true, feed: buffer},
			{role: RoleGain, kind: engine.Gain},
		},
		in:    -1,
		out:   1,
		chain: true,
	},
	node.Delay:      single(stage{role: RoleDelay, kind: engine.DelayLine}),
	node.Reverb:     single(stage{role: RoleReverb, kind: engine.ConvolutionReverb}),
	node.Compressor: single(stage{role: RoleCompressor, kind: engine.DynamicsCompressor}),
	node.Filter:     single(stage{role: RoleFilter, kind: engine.BandFilter, shape: engine.Lowpass}),
	node.Visualizer: single(stage{role: RoleAnalyser, kind: engine.SpectrumAnalyser}),
	node.Equalizer: {
		stages: []stage{
			{role: RoleLow, kind: engine.BandFilter, shape: engine.LowShelf},
			{role: RoleMid, kind: engine.BandFilter, shape: engine.Peaking},
			{role: RoleHigh, kind: engine.BandFilter, shape: engine.HighShelf},
		},
		in:    0,
		out:   2,
		chain: true,
	},
}

// single is a recipe of one unit acting as both input and output.
func single(s stage) recipe {
	return recipe{
		stages: []stage{s},
		in:     0,
		out:    0,
	}
}

func stream(nodeID string, gates Gates, spec *engine.UnitSpec) error {
	s, err := gates.Stream(nodeID)
	if err != nil {
		return fmt.Errorf("%w: %s awaits capture permission: %w", ErrNotReady, nodeID, err)
	}
	spec.Stream = s
	return nil
}

func buffer(nodeID string, gates Gates, spec *engine.UnitSpec) error {
	b, err := gates.Buffer(nodeID)
	if err != nil {
		return fmt.Errorf("%w: %s awaits decoded audio: %w", ErrNotReady, nodeID, err)
	}
	spec.Buffer = b
	return nil
}

// Build constructs the units of node n in engine e. Parameters missing from
// the node fall back to the defaults of its type. Units created before a
// failure are released.
func Build(e engine.Context, n node.Node, gates Gates) (*Binding, error) {
	r, ok := recipes[n.Type]
	if !ok {
		return nil, fmt.Errorf("build %s: unknown node type %q", n.ID, n.Type)
	}
	params := n.Params
	if params == nil {
		params = node.Defaults(n.Type)
	}
	values := params.Values()

	b := &Binding{
		Node: n.ID,
		Type: n.Type,
		In:   r.in,
		Out:  r.out,
	}
	for _, s := range r.stages {
		u, err := create(e, n, s, values, gates)
		if err != nil {
			release(e, b)
			return nil, err
		}
		b.Stages = append(b.Stages, Stage{Role: s.role, Unit: u, Shared: s.shared})
	}

	if r.chain {
		for i := 1; i < len(b.Stages); i++ {
			prev, next := b.Stages[i-1], b.Stages[i]
			if err := e.Connect(prev.Unit, next.Unit); err != nil {
				release(e, b)
				return nil, fmt.Errorf("chain %s %s to %s: %w", n.ID, prev.Role, next.Role, err)
			}
		}
	}

	for i, s := range r.stages {
		if !s.start {
			continue
		}
		if err := b.Stages[i].Unit.Start(); err != nil {
			release(e, b)
			return nil, fmt.Errorf("start %s %s: %w", n.ID, s.role, err)
		}
	}
	return b, nil
}

func create(e engine.Context, n node.Node, s stage, values map[string]float64, gates Gates) (engine.Unit, error) {
	if s.shared {
		return e.Destination(), nil
	}
	spec := engine.UnitSpec{
		Kind:     s.kind,
		Shape:    s.shape,
		Controls: stageControls(n.Type, s.role, values),
	}
	if s.feed != nil {
		if err := s.feed(n.ID, gates, &spec); err != nil {
			return nil, err
		}
	}
	u, err := e.Create(spec)
	if err != nil {
		return nil, fmt.Errorf("create %s %s: %w", n.ID, s.role, err)
	}
	return u, nil
}

// stageControls returns initial control values of the stage with role.
func stageControls(t node.Type, role Role, values map[string]float64) map[string]float64 {
	m := make(map[string]float64)
	for param, c := range controls[t] {
		if c.role != role {
			continue
		}
		v, ok := values[param]
		if !ok {
			p, _ := node.Lookup(t, param)
			v = p.Default
		}
		m[c.name] = c.convert(v)
	}
	return m
}

// release destroys owned stages of a binding in reverse order.
func release(e engine.Context, b *Binding) error {
	var errs stageErrors
	for i := len(b.Stages) - 1; i >= 0; i-- {
		s := b.Stages[i]
		if s.Shared {
			continue
		}
		if err := e.Disconnect(s.Unit); err != nil {
			errs = append(errs, fmt.Errorf("disconnect %s %s: %w", b.Node, s.Role, err))
		}
		if err := e.Release(s.Unit); err != nil {
			errs = append(errs, fmt.Errorf("release %s %s: %w", b.Node, s.Role, err))
		}
	}
	return errs.ret()
}
