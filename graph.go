package patchbay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/pipelined/patchbay/binding"
	"github.com/pipelined/patchbay/engine"
	"github.com/pipelined/patchbay/log"
	"github.com/pipelined/patchbay/node"
)

// connectionPrefix prefixes identities of connections.
const connectionPrefix = "connection"

// newUID returns new unique id value.
func newUID(prefix string) string {
	return prefix + "-" + xid.New().String()
}

// Graph is the authoritative routing graph. It validates mutations and
// keeps the engine wiring in line with the connections it holds: a
// connection is recorded only after its engine wiring succeeded.
//
// Graph is safe for concurrent use, mutations are serialized.
type Graph struct {
	log               logrus.FieldLogger
	listeners         []Listener
	permissionTimeout time.Duration
	newID             func(prefix string) string

	life     *engine.Lifecycle
	registry *binding.Registry

	mu          sync.Mutex
	closed      bool
	nodes       map[string]node.Node
	order       []string
	connections []node.Connection
	source      *node.Gate[engine.Stream]
	buffers     map[string]*node.Gate[*engine.Buffer]
}

// New returns a graph holding the source and destination nodes. The engine
// is opened with open on the first connection attempt.
func New(open engine.OpenFunc, options ...Option) *Graph {
	g := &Graph{
		log:     log.Silent(),
		newID:   newUID,
		nodes:   make(map[string]node.Node),
		source:  node.NewGate[engine.Stream](),
		buffers: make(map[string]*node.Gate[*engine.Buffer]),
	}
	for _, option := range options {
		option(g)
	}
	g.life = engine.NewLifecycle(open, g.log)
	g.registry = binding.NewRegistry(g.log)

	source, _ := node.New(node.SourceID, node.SourceInput)
	destination, _ := node.New(node.DestinationID, node.Destination)
	g.insert(source)
	g.insert(destination)
	return g
}

func (g *Graph) insert(n node.Node) {
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	if n.Type == node.FileInput {
		g.buffers[n.ID] = node.NewGate[*engine.Buffer]()
	}
}

// Nodes returns a snapshot of all nodes in insertion order.
func (g *Graph) Nodes() []node.Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	nodes := make([]node.Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, snapshot(g.nodes[id]))
	}
	return nodes
}

// Node returns a snapshot of the node with provided id.
func (g *Graph) Node(id string) (node.Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return node.Node{}, false
	}
	return snapshot(n), true
}

// Connections returns a snapshot of all connections in creation order.
func (g *Graph) Connections() []node.Connection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]node.Connection(nil), g.connections...)
}

// Binding returns the live binding of node id. Nodes are bound on their
// first connection.
func (g *Graph) Binding(id string) (*binding.Binding, bool) {
	return g.registry.Lookup(id)
}

// EngineState returns the state of the engine.
func (g *Graph) EngineState() engine.State {
	return g.life.State()
}

func snapshot(n node.Node) node.Node {
	n.Inputs = append([]string(nil), n.Inputs...)
	n.Outputs = append([]string(nil), n.Outputs...)
	return n
}

// AddNode adds a node of type t with default parameters overridden by
// params. Parameters unknown to the type are ignored. Distinguished types
// can't be added.
func (g *Graph) AddNode(t node.Type, params map[string]float64) (string, error) {
	switch {
	case !t.Valid():
		return "", fmt.Errorf("add %q: %w", t, ErrUnknownType)
	case t.Reserved():
		return "", fmt.Errorf("add %q: %w", t, ErrReservedType)
	}

	g.mu.Lock()
	n, _ := node.New(g.newID(string(t)), t)
	var unknown []string
	n.Params, unknown = node.Apply(n.Params, params)
	g.insert(n)
	g.mu.Unlock()

	l := g.log.WithFields(logrus.Fields{"node": n.ID, "type": t})
	if len(unknown) > 0 {
		l.WithField("ignored", unknown).Debug("unknown params ignored")
	}
	l.Debug("node added")
	g.notify(Event{Kind: NodeAdded, Node: snapshot(n)})
	return n.ID, nil
}

// RemoveNode removes the node and every connection that references it.
// Bound units of the node are released. Distinguished nodes are never
// removed. Engine failures are logged: removal always succeeds.
func (g *Graph) RemoveNode(id string) bool {
	g.mu.Lock()
	n, ok := g.nodes[id]
	if !ok || n.Distinguished() {
		g.mu.Unlock()
		g.log.WithField("node", id).Debug("node not removed")
		return false
	}

	var kept, removed []node.Connection
	for _, c := range g.connections {
		if c.Touches(id) {
			removed = append(removed, c)
			continue
		}
		kept = append(kept, c)
	}
	g.connections = kept

	if e, ok := g.life.Context(); ok {
		for _, c := range removed {
			g.unwire(e, c)
		}
		if err := g.registry.Teardown(e, id); err != nil {
			g.log.WithField("node", id).WithError(err).Warn("teardown failed")
		}
	}

	delete(g.nodes, id)
	delete(g.buffers, id)
	for i, oid := range g.order {
		if oid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	g.mu.Unlock()

	g.log.WithFields(logrus.Fields{"node": id, "connections": len(removed)}).Debug("node removed")
	events := make([]Event, 0, len(removed)+1)
	for _, c := range removed {
		events = append(events, Event{Kind: ConnectionRemoved, Connection: c})
	}
	events = append(events, Event{Kind: NodeRemoved, Node: n})
	g.notify(events...)
	return true
}

// UpdateParam replaces a single parameter of a node. Values are stored as
// given: range policy belongs to the presentation layer. If the node is
// bound, the value is pushed into the live unit. An engine failure is
// returned as *EngineError but the value stays stored.
func (g *Graph) UpdateParam(id, name string, value float64) error {
	g.mu.Lock()
	n, ok := g.nodes[id]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("update %s: %w", id, ErrMissingNode)
	}
	params, err := n.Params.With(name, value)
	if err != nil {
		g.mu.Unlock()
		return fmt.Errorf("update %s: %w: %w", id, ErrUnknownParam, err)
	}
	n.Params = params
	g.nodes[id] = n

	var engineErr error
	if err := g.registry.Update(n, name, value); err != nil {
		g.log.WithFields(logrus.Fields{"node": id, "param": name}).WithError(err).Warn("update failed")
		engineErr = &EngineError{Op: "update", Node: id, Err: err}
	}
	g.mu.Unlock()

	g.notify(Event{Kind: ParamUpdated, Node: snapshot(n)})
	return engineErr
}

// AddConnection connects an output port of the source node to an input
// port of the target node. The engine is resumed and both nodes are bound
// before the connection is recorded: if any step fails, the graph is left
// unchanged. Rejections wrap ErrRejected, unbound gates return ErrNotReady,
// engine failures return *EngineError.
func (g *Graph) AddConnection(ctx context.Context, sourceID, sourceOutput, targetID, targetInput string) (node.Connection, error) {
	ep := node.Endpoints{
		SourceID:     sourceID,
		SourceOutput: sourceOutput,
		TargetID:     targetID,
		TargetInput:  targetInput,
	}
	l := g.log.WithFields(logrus.Fields{"source": sourceID, "target": targetID})

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return node.Connection{}, ErrClosed
	}
	err := g.validate(ep)
	g.mu.Unlock()
	if err != nil {
		l.WithError(err).Debug("connection rejected")
		return node.Connection{}, err
	}

	e, err := g.life.Ensure(ctx)
	if err != nil {
		if errors.Is(err, ErrClosed) || ctx.Err() != nil {
			return node.Connection{}, err
		}
		l.WithError(err).Warn("engine unavailable")
		return node.Connection{}, &EngineError{Op: "resume", Err: err}
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return node.Connection{}, ErrClosed
	}
	// graph might have changed while engine was resuming
	if err := g.validate(ep); err != nil {
		g.mu.Unlock()
		l.WithError(err).Debug("connection rejected")
		return node.Connection{}, err
	}
	c := node.Connection{
		ID:           g.newID(connectionPrefix),
		SourceID:     sourceID,
		SourceOutput: sourceOutput,
		TargetID:     targetID,
		TargetInput:  targetInput,
	}
	if err := g.wire(e, c); err != nil {
		g.mu.Unlock()
		l.WithError(err).Warn("connection failed")
		return node.Connection{}, err
	}
	g.connections = append(g.connections, c)
	g.mu.Unlock()

	l.WithField("connection", c.ID).Debug("connection added")
	g.notify(Event{Kind: ConnectionAdded, Connection: c})
	return c, nil
}

// validate checks endpoints against the graph. Must be called under lock.
func (g *Graph) validate(ep node.Endpoints) error {
	if ep.SourceID == ep.TargetID {
		return fmt.Errorf("connect %s: %w", ep.SourceID, ErrSelfLoop)
	}
	source, ok := g.nodes[ep.SourceID]
	if !ok {
		return fmt.Errorf("connect %s: %w", ep.SourceID, ErrMissingNode)
	}
	target, ok := g.nodes[ep.TargetID]
	if !ok {
		return fmt.Errorf("connect %s: %w", ep.TargetID, ErrMissingNode)
	}
	if !source.HasOutput(ep.SourceOutput) {
		return fmt.Errorf("connect %s.%s: %w", ep.SourceID, ep.SourceOutput, ErrMissingPort)
	}
	if !target.HasInput(ep.TargetInput) {
		return fmt.Errorf("connect %s.%s: %w", ep.TargetID, ep.TargetInput, ErrMissingPort)
	}
	for _, c := range g.connections {
		if c.Endpoints() == ep {
			return fmt.Errorf("connect %s to %s: %w", ep.SourceID, ep.TargetID, ErrDuplicate)
		}
	}
	return nil
}

// RemoveConnection removes the connection with provided id. Engine side
// disconnect is best-effort, failures are logged. It returns false if the
// connection doesn't exist.
func (g *Graph) RemoveConnection(id string) bool {
	g.mu.Lock()
	idx := -1
	for i, c := range g.connections {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		g.mu.Unlock()
		g.log.WithField("connection", id).Debug("connection not removed")
		return false
	}
	c := g.connections[idx]
	g.connections = append(g.connections[:idx], g.connections[idx+1:]...)
	if e, ok := g.life.Context(); ok {
		g.unwire(e, c)
	}
	g.mu.Unlock()

	g.log.WithField("connection", id).Debug("connection removed")
	g.notify(Event{Kind: ConnectionRemoved, Connection: c})
	return true
}

// Suspend pauses the engine. Connecting resumes it again.
func (g *Graph) Suspend(ctx context.Context) error {
	return g.life.Suspend(ctx)
}

// Close releases the engine and drops every binding. Graph data stays
// readable, but every later connection attempt fails with ErrClosed.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	g.closed = true
	g.registry.Reset()
	// pending permission requests have nothing to bind anymore
	_ = g.source.Fail(ErrClosed)
	return g.life.Close()
}
