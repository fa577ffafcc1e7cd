package patchbay_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pipelined/patchbay"
	"github.com/pipelined/patchbay/binding"
	"github.com/pipelined/patchbay/engine"
	"github.com/pipelined/patchbay/engine/memory"
	"github.com/pipelined/patchbay/node"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mic string

func (m mic) ID() string { return string(m) }

// sequence returns identities like filter1, connection2.
func sequence() func(string) string {
	var mu sync.Mutex
	counts := make(map[string]int)
	return func(prefix string) string {
		mu.Lock()
		defer mu.Unlock()
		counts[prefix]++
		return prefix + strconv.Itoa(counts[prefix])
	}
}

// newGraph returns a graph bound to the provided engine.
func newGraph(e *memory.Engine, options ...patchbay.Option) *patchbay.Graph {
	options = append([]patchbay.Option{patchbay.WithIDs(sequence())}, options...)
	return patchbay.New(func() (engine.Context, error) { return e, nil }, options...)
}

func unit(t *testing.T, u engine.Unit) *memory.Unit {
	t.Helper()
	mu, ok := u.(*memory.Unit)
	require.True(t, ok)
	return mu
}

func input(t *testing.T, g *patchbay.Graph, id string) *memory.Unit {
	t.Helper()
	b, ok := g.Binding(id)
	require.True(t, ok, id)
	u, ok := b.Input()
	require.True(t, ok, id)
	return unit(t, u)
}

func output(t *testing.T, g *patchbay.Graph, id string) *memory.Unit {
	t.Helper()
	b, ok := g.Binding(id)
	require.True(t, ok, id)
	u, ok := b.Output()
	require.True(t, ok, id)
	return unit(t, u)
}

func connect(t *testing.T, g *patchbay.Graph, source, target string) node.Connection {
	t.Helper()
	c, err := g.AddConnection(context.Background(), source, node.OutputPort, target, node.InputPort)
	require.NoError(t, err)
	return c
}

func addNode(t *testing.T, g *patchbay.Graph, typ node.Type, params map[string]float64) string {
	t.Helper()
	id, err := g.AddNode(typ, params)
	require.NoError(t, err)
	return id
}

func TestNew(t *testing.T) {
	g := newGraph(memory.New())
	nodes := g.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, node.SourceID, nodes[0].ID)
	assert.Equal(t, node.SourceInput, nodes[0].Type)
	assert.Equal(t, node.DestinationID, nodes[1].ID)
	assert.Equal(t, node.Destination, nodes[1].Type)
	assert.Empty(t, g.Connections())
	assert.Equal(t, engine.Uninitialized, g.EngineState())
	require.NoError(t, g.Close())
}

func TestRemoveDistinguished(t *testing.T) {
	g := newGraph(memory.New())
	assert.False(t, g.RemoveNode(node.SourceID))
	assert.False(t, g.RemoveNode(node.DestinationID))
	assert.False(t, g.RemoveNode("missing"))
	assert.Len(t, g.Nodes(), 2)

	n, ok := g.Node(node.DestinationID)
	assert.True(t, ok)
	assert.Equal(t, []string{node.InputPort}, n.Inputs)
	assert.Empty(t, n.Outputs)
	require.NoError(t, g.Close())
}

func TestAddNode(t *testing.T) {
	e := memory.New()
	g := newGraph(e)

	id := addNode(t, g, node.Oscillator, map[string]float64{"frequency": 220, "volume": 1})
	assert.Equal(t, "oscillator1", id)
	n, ok := g.Node(id)
	require.True(t, ok)
	v, _ := n.Param("frequency")
	assert.Equal(t, 220.0, v)
	v, _ = n.Param("gain")
	assert.Equal(t, 0.5, v)
	_, ok = n.Param("volume")
	assert.False(t, ok)

	_, err := g.AddNode(node.SourceInput, nil)
	assert.True(t, errors.Is(err, patchbay.ErrReservedType))
	assert.True(t, errors.Is(err, patchbay.ErrRejected))
	_, err = g.AddNode(node.Type("theremin"), nil)
	assert.True(t, errors.Is(err, patchbay.ErrUnknownType))

	// adding nodes commits no engine resources
	assert.Equal(t, engine.Uninitialized, g.EngineState())
	assert.Len(t, e.Units(), 1)
	_, ok = g.Binding(id)
	assert.False(t, ok)
	require.NoError(t, g.Close())
}

func TestAddConnectionDuplicate(t *testing.T) {
	g := newGraph(memory.New())
	osc := addNode(t, g, node.Oscillator, nil)

	connect(t, g, osc, node.DestinationID)
	_, err := g.AddConnection(context.Background(), osc, node.OutputPort, node.DestinationID, node.InputPort)
	assert.True(t, errors.Is(err, patchbay.ErrDuplicate))
	assert.Len(t, g.Connections(), 1)
	require.NoError(t, g.Close())
}

func TestAddConnectionSelfLoop(t *testing.T) {
	e := memory.New()
	g := newGraph(e)
	for _, typ := range node.Types() {
		var id string
		switch typ {
		case node.SourceInput:
			id = node.SourceID
		case node.Destination:
			id = node.DestinationID
		default:
			id = addNode(t, g, typ, nil)
		}
		_, err := g.AddConnection(context.Background(), id, node.OutputPort, id, node.InputPort)
		assert.True(t, errors.Is(err, patchbay.ErrSelfLoop), string(typ))
	}
	assert.Empty(t, g.Connections())
	// rejections never reach the engine
	assert.Equal(t, engine.Uninitialized, g.EngineState())
	require.NoError(t, g.Close())
}

func TestAddConnectionRejected(t *testing.T) {
	g := newGraph(memory.New())
	delay := addNode(t, g, node.Delay, nil)
	tests := []struct {
		description  string
		source       string
		sourceOutput string
		target       string
		targetInput  string
		err          error
	}{
		{
			description:  "missing source",
			source:       "missing",
			sourceOutput: node.OutputPort,
			target:       delay,
			targetInput:  node.InputPort,
			err:          patchbay.ErrMissingNode,
		},
		{
			description:  "missing target",
			source:       delay,
			sourceOutput: node.OutputPort,
			target:       "missing",
			targetInput:  node.InputPort,
			err:          patchbay.ErrMissingNode,
		},
		{
			description:  "destination has no output",
			source:       node.DestinationID,
			sourceOutput: node.OutputPort,
			target:       delay,
			targetInput:  node.InputPort,
			err:          patchbay.ErrMissingPort,
		},
		{
			description:  "source has no input",
			source:       delay,
			sourceOutput: node.OutputPort,
			target:       node.SourceID,
			targetInput:  node.InputPort,
			err:          patchbay.ErrMissingPort,
		},
		{
			description:  "unknown port",
			source:       delay,
			sourceOutput: "sidechain",
			target:       node.DestinationID,
			targetInput:  node.InputPort,
			err:          patchbay.ErrMissingPort,
		},
	}
	for _, test := range tests {
		_, err := g.AddConnection(context.Background(), test.source, test.sourceOutput, test.target, test.targetInput)
		assert.True(t, errors.Is(err, test.err), test.description)
		assert.True(t, errors.Is(err, patchbay.ErrRejected), test.description)
	}
	assert.Empty(t, g.Connections())
	require.NoError(t, g.Close())
}

func TestRemoveNodeCascade(t *testing.T) {
	tests := []struct {
		description string
		options     []memory.Option
	}{
		{description: "selective disconnect"},
		{description: "rebuild", options: []memory.Option{memory.WithoutEdgeDisconnect()}},
	}
	for _, test := range tests {
		e := memory.New(test.options...)
		g := newGraph(e)
		osc := addNode(t, g, node.Oscillator, nil)
		filter := addNode(t, g, node.Filter, nil)
		delay := addNode(t, g, node.Delay, nil)

		oscFilter := connect(t, g, osc, filter)
		filterDelay := connect(t, g, filter, delay)
		delayDest := connect(t, g, delay, node.DestinationID)
		oscDest := connect(t, g, osc, node.DestinationID)
		filterUnit := input(t, g, filter)

		assert.True(t, g.RemoveNode(filter), test.description)
		var remaining []string
		for _, c := range g.Connections() {
			remaining = append(remaining, c.ID)
		}
		assert.Equal(t, []string{delayDest.ID, oscDest.ID}, remaining, test.description)
		assert.NotContains(t, remaining, oscFilter.ID)
		assert.NotContains(t, remaining, filterDelay.ID)
		_, ok := g.Node(filter)
		assert.False(t, ok, test.description)
		_, ok = g.Binding(filter)
		assert.False(t, ok, test.description)

		// engine state follows the graph
		assert.True(t, filterUnit.Released(), test.description)
		assert.Empty(t, e.Dangling(), test.description)
		oscOut := output(t, g, osc)
		assert.True(t, e.Connected(oscOut, e.Destination()), test.description)
		assert.True(t, e.Connected(output(t, g, delay), e.Destination()), test.description)
		require.NoError(t, g.Close())
	}
}

func TestRemoveConnection(t *testing.T) {
	tests := []struct {
		description string
		options     []memory.Option
	}{
		{description: "selective disconnect"},
		{description: "rebuild", options: []memory.Option{memory.WithoutEdgeDisconnect()}},
	}
	for _, test := range tests {
		e := memory.New(test.options...)
		g := newGraph(e)
		osc := addNode(t, g, node.Oscillator, nil)
		delay := addNode(t, g, node.Delay, nil)
		reverb := addNode(t, g, node.Reverb, nil)

		toDelay := connect(t, g, osc, delay)
		connect(t, g, osc, reverb)

		assert.True(t, g.RemoveConnection(toDelay.ID), test.description)
		assert.False(t, g.RemoveConnection(toDelay.ID), test.description)
		assert.Len(t, g.Connections(), 1, test.description)

		oscOut := output(t, g, osc)
		assert.False(t, e.Connected(oscOut, input(t, g, delay)), test.description)
		assert.True(t, e.Connected(oscOut, input(t, g, reverb)), test.description)
		// bindings outlive connections
		_, ok := g.Binding(delay)
		assert.True(t, ok, test.description)
		require.NoError(t, g.Close())
	}
}

func TestUpdateParam(t *testing.T) {
	e := memory.New()
	g := newGraph(e)
	filter := addNode(t, g, node.Filter, nil)

	// unbound node stores the value only
	require.NoError(t, g.UpdateParam(filter, "Q", 4))
	connect(t, g, filter, node.DestinationID)
	u := input(t, g, filter)
	v, _ := u.Control(engine.ControlQ)
	assert.Equal(t, 4.0, v)

	// bound node is updated without reconnect
	require.NoError(t, g.UpdateParam(filter, "frequency", 250))
	v, _ = u.Control(engine.ControlFrequency)
	assert.Equal(t, 250.0, v)
	n, _ := g.Node(filter)
	v, _ = n.Param("frequency")
	assert.Equal(t, 250.0, v)

	// values are not clamped
	require.NoError(t, g.UpdateParam(filter, "frequency", 99999))
	v, _ = u.Control(engine.ControlFrequency)
	assert.Equal(t, 99999.0, v)

	err := g.UpdateParam(filter, "cutoff", 1)
	assert.True(t, errors.Is(err, patchbay.ErrUnknownParam))
	assert.True(t, errors.Is(err, node.ErrUnknownParam))
	err = g.UpdateParam("missing", "frequency", 1)
	assert.True(t, errors.Is(err, patchbay.ErrMissingNode))
	err = g.UpdateParam(node.DestinationID, "gain", 1)
	assert.True(t, errors.Is(err, patchbay.ErrUnknownParam))
	require.NoError(t, g.Close())
}

func TestUpdateParamEqualizerBands(t *testing.T) {
	g := newGraph(memory.New())
	eq := addNode(t, g, node.Equalizer, nil)
	connect(t, g, eq, node.DestinationID)

	require.NoError(t, g.UpdateParam(eq, "midGain", -6))
	b, _ := g.Binding(eq)
	mid, ok := b.Stage(binding.RoleMid)
	require.True(t, ok)
	v, _ := unit(t, mid).Control(engine.ControlGain)
	assert.Equal(t, -6.0, v)
	require.NoError(t, g.Close())
}

func TestScenarioOscillatorToDestination(t *testing.T) {
	g := newGraph(memory.New())
	osc := addNode(t, g, node.Oscillator, map[string]float64{"frequency": 440})

	connect(t, g, osc, node.DestinationID)
	assert.Len(t, g.Connections(), 1)
	assert.Equal(t, engine.Running, g.EngineState())

	gen, ok := mustBinding(t, g, osc).Stage(binding.RoleGenerator)
	require.True(t, ok)
	assert.True(t, unit(t, gen).Started())
	v, _ := unit(t, gen).Control(engine.ControlFrequency)
	assert.Equal(t, 440.0, v)
	require.NoError(t, g.Close())
}

func TestScenarioSourceToDestination(t *testing.T) {
	e := memory.New()
	g := newGraph(e)
	require.NoError(t, g.GrantSource(mic("default")))

	connect(t, g, node.SourceID, node.DestinationID)
	assert.Len(t, g.Connections(), 1)
	out := output(t, g, node.SourceID)
	assert.Equal(t, mic("default"), out.Stream())
	assert.True(t, e.Connected(out, e.Destination()))
	require.NoError(t, g.Close())
}

func TestScenarioFilter(t *testing.T) {
	e := memory.New()
	g := newGraph(e)
	require.NoError(t, g.GrantSource(mic("default")))
	f1 := addNode(t, g, node.Filter, nil)

	n, _ := g.Node(f1)
	assert.Equal(t, map[string]float64{"frequency": 1000, "Q": 1, "gain": 0}, n.Params.Values())

	connect(t, g, node.SourceID, f1)
	first := mustBinding(t, g, f1)
	connect(t, g, f1, node.DestinationID)
	assert.Len(t, g.Connections(), 2)
	assert.Same(t, first, mustBinding(t, g, f1))
	// destination, stream and filter
	assert.Len(t, e.Units(), 3)
	assert.Equal(t, engine.Lowpass, input(t, g, f1).Shape())
	require.NoError(t, g.Close())
}

func TestScenarioEqualizer(t *testing.T) {
	e := memory.New()
	g := newGraph(e)
	require.NoError(t, g.GrantSource(mic("default")))
	eq1 := addNode(t, g, node.Equalizer, nil)

	connect(t, g, node.SourceID, eq1)
	b := mustBinding(t, g, eq1)
	require.Len(t, b.Stages, 3)
	low, _ := b.Stage(binding.RoleLow)
	high, _ := b.Stage(binding.RoleHigh)
	assert.Equal(t, engine.LowShelf, unit(t, low).Shape())
	assert.Equal(t, engine.HighShelf, unit(t, high).Shape())
	assert.True(t, e.Connected(output(t, g, node.SourceID), low))

	connect(t, g, eq1, node.DestinationID)
	assert.True(t, e.Connected(high, e.Destination()))
	assert.False(t, e.Connected(low, e.Destination()))

	// removal releases all three stages
	require.True(t, g.RemoveNode(eq1))
	for _, s := range b.Stages {
		assert.True(t, unit(t, s.Unit).Released(), string(s.Role))
	}
	assert.Empty(t, e.Dangling())
	require.NoError(t, g.Close())
}

func TestScenarioSourceNotReady(t *testing.T) {
	e := memory.New()
	g := newGraph(e)

	_, err := g.AddConnection(context.Background(), node.SourceID, node.OutputPort, node.DestinationID, node.InputPort)
	assert.True(t, errors.Is(err, patchbay.ErrNotReady))
	assert.Empty(t, g.Connections())
	_, ok := g.Binding(node.SourceID)
	assert.False(t, ok)

	require.NoError(t, g.DenySource(errors.New("permission denied")))
	_, err = g.AddConnection(context.Background(), node.SourceID, node.OutputPort, node.DestinationID, node.InputPort)
	assert.True(t, errors.Is(err, patchbay.ErrNotReady))
	assert.Empty(t, g.Connections())

	// retry after grant
	require.NoError(t, g.GrantSource(mic("default")))
	connect(t, g, node.SourceID, node.DestinationID)
	assert.Len(t, g.Connections(), 1)
	require.NoError(t, g.Close())
}

func TestScenarioRemoveMissingConnection(t *testing.T) {
	g := newGraph(memory.New())
	osc := addNode(t, g, node.Oscillator, nil)
	connect(t, g, osc, node.DestinationID)

	assert.False(t, g.RemoveConnection("missing"))
	assert.Len(t, g.Connections(), 1)
	require.NoError(t, g.Close())
}

func TestEngineFailure(t *testing.T) {
	failure := errors.New("graph is full")
	e := memory.New(memory.WithFaults(memory.Faults{
		Connect: func(_, dst engine.Unit) error {
			if dst.Kind() == engine.Output {
				return failure
			}
			return nil
		},
	}))
	g := newGraph(e)
	osc := addNode(t, g, node.Oscillator, nil)

	_, err := g.AddConnection(context.Background(), osc, node.OutputPort, node.DestinationID, node.InputPort)
	var engineErr *patchbay.EngineError
	require.True(t, errors.As(err, &engineErr))
	assert.Equal(t, "connect", engineErr.Op)
	assert.Equal(t, osc, engineErr.Node)
	assert.True(t, errors.Is(err, failure))
	assert.Empty(t, g.Connections())
	// only the internal generator to gain edge
	assert.Len(t, e.Edges(), 1)

	e.SetFaults(memory.Faults{})
	connect(t, g, osc, node.DestinationID)
	assert.Len(t, g.Connections(), 1)
	require.NoError(t, g.Close())
}

func TestEngineBindFailure(t *testing.T) {
	failure := errors.New("no convolver")
	e := memory.New(memory.WithFaults(memory.Faults{
		Create: func(spec engine.UnitSpec) error {
			if spec.Kind == engine.ConvolutionReverb {
				return failure
			}
			return nil
		},
	}))
	g := newGraph(e)
	reverb := addNode(t, g, node.Reverb, nil)

	_, err := g.AddConnection(context.Background(), reverb, node.OutputPort, node.DestinationID, node.InputPort)
	var engineErr *patchbay.EngineError
	require.True(t, errors.As(err, &engineErr))
	assert.Equal(t, "bind", engineErr.Op)
	assert.Equal(t, reverb, engineErr.Node)
	assert.Empty(t, g.Connections())
	_, ok := g.Binding(reverb)
	assert.False(t, ok)
	require.NoError(t, g.Close())
}

func TestEngineResumeFailure(t *testing.T) {
	denied := errors.New("not allowed to start")
	e := memory.New(memory.WithFaults(memory.Faults{
		Resume: func(context.Context) error { return denied },
	}))
	g := newGraph(e)
	osc := addNode(t, g, node.Oscillator, nil)

	_, err := g.AddConnection(context.Background(), osc, node.OutputPort, node.DestinationID, node.InputPort)
	var engineErr *patchbay.EngineError
	require.True(t, errors.As(err, &engineErr))
	assert.Equal(t, "resume", engineErr.Op)
	assert.True(t, errors.Is(err, denied))
	assert.Empty(t, g.Connections())
	// nothing was bound while the engine was suspended
	assert.Len(t, e.Units(), 1)
	require.NoError(t, g.Close())
}

func TestResumeOnEveryConnection(t *testing.T) {
	e := memory.New()
	g := newGraph(e)
	osc := addNode(t, g, node.Oscillator, nil)
	delay := addNode(t, g, node.Delay, nil)

	connect(t, g, osc, delay)
	require.NoError(t, g.Suspend(context.Background()))
	assert.Equal(t, engine.Suspended, g.EngineState())

	connect(t, g, delay, node.DestinationID)
	assert.Equal(t, engine.Running, g.EngineState())
	assert.Equal(t, 2, e.Resumes())
	require.NoError(t, g.Close())
}

func TestConcurrentConnections(t *testing.T) {
	const oscillators = 8
	var opens int32
	g := patchbay.New(func() (engine.Context, error) {
		atomic.AddInt32(&opens, 1)
		return memory.New(), nil
	})
	ids := make([]string, oscillators)
	for i := range ids {
		ids[i] = addNode(t, g, node.Oscillator, nil)
	}

	var wg sync.WaitGroup
	errs := make([]error, oscillators)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = g.AddConnection(context.Background(), ids[i], node.OutputPort, node.DestinationID, node.InputPort)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, g.Connections(), oscillators)
	assert.Equal(t, int32(1), atomic.LoadInt32(&opens))
	require.NoError(t, g.Close())
}

func TestConcurrentConnectionsCancel(t *testing.T) {
	var (
		entered = make(chan struct{})
		release = make(chan struct{})
		once    sync.Once
	)
	e := memory.New(memory.WithFaults(memory.Faults{
		Resume: func(ctx context.Context) error {
			once.Do(func() { close(entered) })
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}))
	g := newGraph(e)
	first := addNode(t, g, node.Oscillator, nil)
	second := addNode(t, g, node.Oscillator, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		_, err := g.AddConnection(ctx, first, node.OutputPort, node.DestinationID, node.InputPort)
		cancelled <- err
	}()
	<-entered

	live := make(chan error, 1)
	go func() {
		_, err := g.AddConnection(context.Background(), second, node.OutputPort, node.DestinationID, node.InputPort)
		live <- err
	}()

	cancel()
	err := <-cancelled
	assert.True(t, errors.Is(err, context.Canceled))
	var engineErr *patchbay.EngineError
	assert.False(t, errors.As(err, &engineErr))

	close(release)
	require.NoError(t, <-live)
	connections := g.Connections()
	require.Len(t, connections, 1)
	assert.Equal(t, second, connections[0].SourceID)
	assert.Equal(t, engine.Running, g.EngineState())
	require.NoError(t, g.Close())
}

func TestClose(t *testing.T) {
	e := memory.New()
	g := newGraph(e)
	osc := addNode(t, g, node.Oscillator, nil)
	connect(t, g, osc, node.DestinationID)

	require.NoError(t, g.Close())
	assert.Equal(t, patchbay.ErrClosed, g.Close())
	assert.Equal(t, engine.Closed, g.EngineState())
	assert.Equal(t, engine.Closed, e.State())
	_, ok := g.Binding(osc)
	assert.False(t, ok)

	delay := addNode(t, g, node.Delay, nil)
	_, err := g.AddConnection(context.Background(), delay, node.OutputPort, node.DestinationID, node.InputPort)
	assert.True(t, errors.Is(err, patchbay.ErrClosed))
	// teardown is reported before endpoint validation
	_, err = g.AddConnection(context.Background(), delay, "sidechain", "missing", node.InputPort)
	assert.True(t, errors.Is(err, patchbay.ErrClosed))
	assert.False(t, errors.Is(err, patchbay.ErrRejected))
	_, err = g.AddConnection(context.Background(), delay, node.OutputPort, delay, node.InputPort)
	assert.True(t, errors.Is(err, patchbay.ErrClosed))
	// graph data stays readable and removable
	assert.Len(t, g.Connections(), 1)
	assert.True(t, g.RemoveNode(osc))
	assert.Empty(t, g.Connections())
}

func TestEvents(t *testing.T) {
	var kinds []patchbay.EventKind
	g := newGraph(memory.New(), patchbay.WithListener(func(e patchbay.Event) {
		kinds = append(kinds, e.Kind)
	}))
	osc := addNode(t, g, node.Oscillator, nil)
	require.NoError(t, g.UpdateParam(osc, "detune", 7))
	connect(t, g, osc, node.DestinationID)
	require.NoError(t, g.GrantSource(mic("default")))
	require.True(t, g.RemoveNode(osc))

	// rejected mutations are silent
	g.RemoveNode(node.SourceID)
	_, _ = g.AddNode(node.Destination, nil)

	assert.Equal(t, []patchbay.EventKind{
		patchbay.NodeAdded,
		patchbay.ParamUpdated,
		patchbay.ConnectionAdded,
		patchbay.SourceGranted,
		patchbay.ConnectionRemoved,
		patchbay.NodeRemoved,
	}, kinds)
	require.NoError(t, g.Close())
}

func mustBinding(t *testing.T, g *patchbay.Graph, id string) *binding.Binding {
	t.Helper()
	b, ok := g.Binding(id)
	require.True(t, ok, id)
	return b
}
