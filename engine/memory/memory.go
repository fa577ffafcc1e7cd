// Package memory provides an in-process engine. It keeps track of units,
// their controls and the connections between them without producing
// sound, which makes it suitable for headless hosts and tests. Faults can
// be injected into every engine call.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/xid"

	"github.com/pipelined/patchbay/engine"
)

const defaultSampleRate = 44100

var (
	// ErrForeignUnit is returned when a unit of another engine is used.
	ErrForeignUnit = errors.New("unit belongs to another engine")
	// ErrReleased is returned when a released unit is used.
	ErrReleased = errors.New("unit released")
	// ErrNotConnected is returned when a missing edge is disconnected.
	ErrNotConnected = errors.New("units are not connected")
)

type (
	// Engine is an in-process engine.Context.
	Engine struct {
		mu         sync.Mutex
		sampleRate int
		latency    string
		selective  bool
		state      engine.State
		faults     Faults
		units      map[string]*Unit
		order      []string
		edges      []Edge
		dest       *Unit
		resumes    int
	}

	// Unit is a unit constructed by the in-process engine.
	Unit struct {
		engine   *Engine
		id       string
		spec     engine.UnitSpec
		controls map[string]float64
		started  bool
		released bool
	}

	// Edge is a connection between two units, identified by unit ids.
	Edge struct {
		From string
		To   string
	}

	// Faults are hooks invoked before the corresponding engine call. A
	// non-nil error is returned by the call and the call has no effect.
	Faults struct {
		Resume     func(ctx context.Context) error
		Create     func(spec engine.UnitSpec) error
		Connect    func(src, dst engine.Unit) error
		Disconnect func(src engine.Unit) error
	}

	// Option configures the engine.
	Option func(*Engine)
)

// WithSampleRate sets the sample rate reported by the engine.
func WithSampleRate(sampleRate int) Option {
	return func(e *Engine) {
		if sampleRate > 0 {
			e.sampleRate = sampleRate
		}
	}
}

// WithLatencyHint sets the latency category reported by the engine.
func WithLatencyHint(hint string) Option {
	return func(e *Engine) {
		e.latency = hint
	}
}

// WithoutEdgeDisconnect makes DisconnectEdge return engine.ErrUnsupported,
// like engines that only disconnect all outputs of a unit at once.
func WithoutEdgeDisconnect() Option {
	return func(e *Engine) {
		e.selective = false
	}
}

// WithFaults sets fault hooks.
func WithFaults(f Faults) Option {
	return func(e *Engine) {
		e.faults = f
	}
}

// New returns a suspended engine.
func New(options ...Option) *Engine {
	e := &Engine{
		sampleRate: defaultSampleRate,
		latency:    "interactive",
		selective:  true,
		state:      engine.Suspended,
		units:      make(map[string]*Unit),
	}
	for _, option := range options {
		option(e)
	}
	e.dest = e.newUnit(engine.UnitSpec{Kind: engine.Output})
	return e
}

// Open returns an engine.OpenFunc constructing engines with options.
func Open(options ...Option) engine.OpenFunc {
	return func() (engine.Context, error) {
		return New(options...), nil
	}
}

// SetFaults replaces fault hooks.
func (e *Engine) SetFaults(f Faults) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faults = f
}

// SampleRate implements engine.Describer.
func (e *Engine) SampleRate() int {
	return e.sampleRate
}

// LatencyHint implements engine.Describer.
func (e *Engine) LatencyHint() string {
	return e.latency
}

// State implements engine.Context.
func (e *Engine) State() engine.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Resume implements engine.Context.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	if e.state == engine.Closed {
		e.mu.Unlock()
		return engine.ErrClosed
	}
	fault := e.faults.Resume
	e.mu.Unlock()

	// hook runs unlocked, it might block to simulate slow activation
	if fault != nil {
		if err := fault(ctx); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == engine.Closed {
		return engine.ErrClosed
	}
	e.state = engine.Running
	e.resumes++
	return nil
}

// Suspend implements engine.Context.
func (e *Engine) Suspend(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == engine.Closed {
		return engine.ErrClosed
	}
	e.state = engine.Suspended
	return nil
}

// Close implements engine.Context.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == engine.Closed {
		return engine.ErrClosed
	}
	e.state = engine.Closed
	for _, u := range e.units {
		u.released = true
	}
	e.edges = nil
	return nil
}

// Create implements engine.Context.
func (e *Engine) Create(spec engine.UnitSpec) (engine.Unit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == engine.Closed {
		return nil, engine.ErrClosed
	}
	if spec.Kind == engine.Output {
		return nil, fmt.Errorf("create %v: output is provided by the engine", spec.Kind)
	}
	if e.faults.Create != nil {
		if err := e.faults.Create(spec); err != nil {
			return nil, err
		}
	}
	return e.newUnit(spec), nil
}

func (e *Engine) newUnit(spec engine.UnitSpec) *Unit {
	controls := make(map[string]float64, len(spec.Controls))
	for k, v := range spec.Controls {
		controls[k] = v
	}
	u := &Unit{
		engine:   e,
		id:       xid.New().String(),
		spec:     spec,
		controls: controls,
	}
	e.units[u.id] = u
	e.order = append(e.order, u.id)
	return u
}

// Destination implements engine.Context.
func (e *Engine) Destination() engine.Unit {
	return e.dest
}

// Connect implements engine.Context. Connecting already connected units has
// no effect.
func (e *Engine) Connect(src, dst engine.Unit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	from, to, err := e.pair(src, dst)
	if err != nil {
		return err
	}
	if e.faults.Connect != nil {
		if err := e.faults.Connect(src, dst); err != nil {
			return err
		}
	}
	if e.connected(from.id, to.id) {
		return nil
	}
	e.edges = append(e.edges, Edge{From: from.id, To: to.id})
	return nil
}

// Disconnect implements engine.Context.
func (e *Engine) Disconnect(src engine.Unit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	from, err := e.own(src)
	if err != nil {
		return err
	}
	if e.faults.Disconnect != nil {
		if err := e.faults.Disconnect(src); err != nil {
			return err
		}
	}
	e.removeEdges(func(edge Edge) bool { return edge.From == from.id })
	return nil
}

// DisconnectEdge implements engine.EdgeDisconnecter.
func (e *Engine) DisconnectEdge(src, dst engine.Unit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.selective {
		return engine.ErrUnsupported
	}
	from, to, err := e.pair(src, dst)
	if err != nil {
		return err
	}
	if e.faults.Disconnect != nil {
		if err := e.faults.Disconnect(src); err != nil {
			return err
		}
	}
	if !e.connected(from.id, to.id) {
		return ErrNotConnected
	}
	e.removeEdges(func(edge Edge) bool { return edge.From == from.id && edge.To == to.id })
	return nil
}

// Release implements engine.Context. Outgoing edges of the unit are
// removed, incoming edges are left dangling until their sources are
// disconnected.
func (e *Engine) Release(u engine.Unit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	unit, err := e.own(u)
	if err != nil {
		return err
	}
	if unit == e.dest {
		return fmt.Errorf("release %v: output is owned by the engine", unit.spec.Kind)
	}
	unit.released = true
	unit.started = false
	e.removeEdges(func(edge Edge) bool { return edge.From == unit.id })
	return nil
}

// Units returns live units in creation order. The destination is included.
func (e *Engine) Units() []*Unit {
	e.mu.Lock()
	defer e.mu.Unlock()
	units := make([]*Unit, 0, len(e.order))
	for _, id := range e.order {
		if u := e.units[id]; !u.released {
			units = append(units, u)
		}
	}
	return units
}

// Lookup returns unit by id.
func (e *Engine) Lookup(id string) (*Unit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	u, ok := e.units[id]
	return u, ok
}

// Edges returns all connections in the order they were made.
func (e *Engine) Edges() []Edge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Edge(nil), e.edges...)
}

// Dangling returns edges that lead into released units.
func (e *Engine) Dangling() []Edge {
	e.mu.Lock()
	defer e.mu.Unlock()
	var dangling []Edge
	for _, edge := range e.edges {
		if e.units[edge.To].released {
			dangling = append(dangling, edge)
		}
	}
	return dangling
}

// Connected returns true if output of src is routed into dst.
func (e *Engine) Connected(src, dst engine.Unit) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected(src.ID(), dst.ID())
}

// Resumes returns the number of successful resume calls.
func (e *Engine) Resumes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resumes
}

func (e *Engine) connected(from, to string) bool {
	for _, edge := range e.edges {
		if edge.From == from && edge.To == to {
			return true
		}
	}
	return false
}

func (e *Engine) removeEdges(match func(Edge) bool) {
	kept := e.edges[:0]
	for _, edge := range e.edges {
		if !match(edge) {
			kept = append(kept, edge)
		}
	}
	e.edges = kept
}

// own checks that unit is alive and belongs to this engine.
func (e *Engine) own(u engine.Unit) (*Unit, error) {
	if e.state == engine.Closed {
		return nil, engine.ErrClosed
	}
	unit, ok := u.(*Unit)
	if !ok || unit.engine != e {
		return nil, ErrForeignUnit
	}
	if unit.released {
		return nil, fmt.Errorf("%v %s: %w", unit.spec.Kind, unit.id, ErrReleased)
	}
	return unit, nil
}

func (e *Engine) pair(src, dst engine.Unit) (*Unit, *Unit, error) {
	from, err := e.own(src)
	if err != nil {
		return nil, nil, err
	}
	to, err := e.own(dst)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

// ID implements engine.Unit.
func (u *Unit) ID() string {
	return u.id
}

// Kind implements engine.Unit.
func (u *Unit) Kind() engine.Kind {
	return u.spec.Kind
}

// Shape returns the filter shape the unit was created with.
func (u *Unit) Shape() engine.Shape {
	return u.spec.Shape
}

// Buffer returns the buffer played by the unit.
func (u *Unit) Buffer() *engine.Buffer {
	return u.spec.Buffer
}

// Stream returns the stream captured by the unit.
func (u *Unit) Stream() engine.Stream {
	return u.spec.Stream
}

// SetControl implements engine.Unit.
func (u *Unit) SetControl(name string, value float64) error {
	u.engine.mu.Lock()
	defer u.engine.mu.Unlock()
	if u.released {
		return fmt.Errorf("set %s: %w", name, ErrReleased)
	}
	u.controls[name] = value
	return nil
}

// Control returns the current value of the named control.
func (u *Unit) Control(name string) (float64, bool) {
	u.engine.mu.Lock()
	defer u.engine.mu.Unlock()
	v, ok := u.controls[name]
	return v, ok
}

// Start implements engine.Unit.
func (u *Unit) Start() error {
	u.engine.mu.Lock()
	defer u.engine.mu.Unlock()
	if !u.spec.Kind.Startable() {
		return engine.ErrNotStartable
	}
	if u.released {
		return ErrReleased
	}
	u.started = true
	return nil
}

// Started returns true if the unit is generating signal.
func (u *Unit) Started() bool {
	u.engine.mu.Lock()
	defer u.engine.mu.Unlock()
	return u.started
}

// Released returns true if the unit was released.
func (u *Unit) Released() bool {
	u.engine.mu.Lock()
	defer u.engine.mu.Unlock()
	return u.released
}

func (u *Unit) String() string {
	return fmt.Sprintf("%v(%s)", u.spec.Kind, u.id)
}
