package patchbay

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pipelined/patchbay/binding"
	"github.com/pipelined/patchbay/engine"
	"github.com/pipelined/patchbay/metric"
	"github.com/pipelined/patchbay/node"
)

// gates exposes readiness of the graph nodes to the factory. Its methods
// are called with the graph lock held.
type gates struct {
	g *Graph
}

func (gs gates) Stream(id string) (engine.Stream, error) {
	if id != node.SourceID {
		return nil, fmt.Errorf("%s has no capture gate", id)
	}
	return gs.g.source.Value()
}

func (gs gates) Buffer(id string) (*engine.Buffer, error) {
	gate, ok := gs.g.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%s has no buffer gate", id)
	}
	return gate.Value()
}

// endpoints resolves the output-facing unit of the source node and the
// input-facing unit of the target node of c, binding both if needed. Must
// be called under lock.
func (g *Graph) endpoints(e engine.Context, c node.Connection) (engine.Unit, engine.Unit, error) {
	source, target := g.nodes[c.SourceID], g.nodes[c.TargetID]
	from, err := g.registry.GetOrCreate(e, source, gates{g})
	if err != nil {
		return nil, nil, engineError("bind", source.ID, err)
	}
	to, err := g.registry.GetOrCreate(e, target, gates{g})
	if err != nil {
		return nil, nil, engineError("bind", target.ID, err)
	}
	out, ok := from.Output()
	if !ok {
		return nil, nil, fmt.Errorf("connect %s: no output unit: %w", source.ID, ErrMissingPort)
	}
	in, ok := to.Input()
	if !ok {
		return nil, nil, fmt.Errorf("connect %s: no input unit: %w", target.ID, ErrMissingPort)
	}
	return out, in, nil
}

// wire performs the engine connect of c. Must be called under lock.
func (g *Graph) wire(e engine.Context, c node.Connection) error {
	out, in, err := g.endpoints(e, c)
	if err != nil {
		return err
	}
	l := g.log.WithFields(logrus.Fields{
		"connection": c.ID,
		"from":       out.ID(),
		"to":         in.ID(),
	})
	if out.ID() == in.ID() {
		l.Debug("same unit, connect skipped")
		return nil
	}

	meter := metric.For(string(g.nodes[c.SourceID].Type))
	start := time.Now()
	if err := e.Connect(out, in); err != nil {
		meter.Failed()
		l.WithError(err).Warn("engine connect failed")
		return engineError("connect", c.SourceID, err)
	}
	meter.Connected(time.Since(start))
	return nil
}

// unwire removes the engine edge of c, which must be already removed from
// the graph connections. The edge is removed selectively if the engine
// supports it, otherwise all outgoing edges of the source unit are removed
// and the remaining connections of the source node are wired again.
// Failures are logged. Must be called under lock.
func (g *Graph) unwire(e engine.Context, c node.Connection) {
	from, ok := g.registry.Lookup(c.SourceID)
	if !ok {
		return
	}
	to, ok := g.registry.Lookup(c.TargetID)
	if !ok {
		return
	}
	out, okOut := from.Output()
	in, okIn := to.Input()
	if !okOut || !okIn || out.ID() == in.ID() {
		return
	}

	l := g.log.WithField("connection", c.ID)
	meter := metric.For(string(from.Type))
	if d, ok := e.(engine.EdgeDisconnecter); ok {
		err := d.DisconnectEdge(out, in)
		if err == nil {
			meter.Disconnected()
			return
		}
		if !errors.Is(err, engine.ErrUnsupported) {
			meter.Failed()
			l.WithError(err).Warn("engine disconnect failed")
			return
		}
	}

	if err := e.Disconnect(out); err != nil {
		meter.Failed()
		l.WithError(err).Warn("engine disconnect failed")
		return
	}
	meter.Disconnected()
	g.rewire(e, c.SourceID, out)
}

// rewire connects out to the input-facing units of every bound target of
// the remaining connections of node id.
func (g *Graph) rewire(e engine.Context, id string, out engine.Unit) {
	for _, c := range g.connections {
		if c.SourceID != id {
			continue
		}
		to, ok := g.registry.Lookup(c.TargetID)
		if !ok {
			continue
		}
		in, ok := to.Input()
		if !ok {
			continue
		}
		if err := e.Connect(out, in); err != nil {
			metric.For(string(to.Type)).Failed()
			g.log.WithField("connection", c.ID).WithError(err).Warn("engine reconnect failed")
		}
	}
}

// compile-time check
var _ binding.Gates = gates{}
