package patchbay

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pipelined/patchbay/engine"
	"github.com/pipelined/patchbay/node"
	"github.com/pipelined/patchbay/wav"
)

// PermissionFunc asks the host for an input capture stream. It should
// return once the user granted or denied access, or ctx is done.
type PermissionFunc func(ctx context.Context) (engine.Stream, error)

// RequestSource asynchronously asks for capture permission with fn and
// resolves the source gate with the result. The request is bounded by the
// permission timeout and ctx. The returned channel receives the outcome
// and is closed afterwards.
func (g *Graph) RequestSource(ctx context.Context, fn PermissionFunc) <-chan error {
	errc := make(chan error, 1)
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		errc <- ErrClosed
		close(errc)
		return errc
	}
	if _, err := g.source.Value(); err == nil {
		g.mu.Unlock()
		close(errc)
		return errc
	}
	g.mu.Unlock()

	if g.permissionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.permissionTimeout)
		go func() {
			defer cancel()
			g.awaitSource(ctx, fn, errc)
		}()
		return errc
	}
	go g.awaitSource(ctx, fn, errc)
	return errc
}

type permission struct {
	stream engine.Stream
	err    error
}

func (g *Graph) awaitSource(ctx context.Context, fn PermissionFunc, errc chan<- error) {
	defer close(errc)
	result := make(chan permission, 1)
	go func() {
		s, err := fn(ctx)
		result <- permission{stream: s, err: err}
	}()

	var err error
	select {
	case p := <-result:
		if p.err != nil {
			err = g.DenySource(p.err)
		} else {
			err = g.GrantSource(p.stream)
		}
		if err == nil {
			err = p.err
		}
	case <-ctx.Done():
		err = fmt.Errorf("request source: %w", ctx.Err())
		if denyErr := g.DenySource(err); denyErr != nil {
			err = denyErr
		}
	}
	if err != nil {
		errc <- err
	}
}

// GrantSource resolves the source gate with the capture stream. A denied
// gate is replaced, so permission can be granted after a denial.
func (g *Graph) GrantSource(s engine.Stream) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	if g.source.Failed() {
		g.source = node.NewGate[engine.Stream]()
	}
	if err := g.source.Resolve(s); err != nil {
		g.mu.Unlock()
		return fmt.Errorf("grant source: %w", err)
	}
	n := g.nodes[node.SourceID]
	g.mu.Unlock()

	g.log.WithFields(logrus.Fields{"node": n.ID, "stream": s.ID()}).Debug("source granted")
	g.notify(Event{Kind: SourceGranted, Node: snapshot(n)})
	return nil
}

// DenySource fails the source gate with err. Connections from the source
// keep failing with ErrNotReady until the source is granted.
func (g *Graph) DenySource(err error) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	if g.source.Failed() {
		g.source = node.NewGate[engine.Stream]()
	}
	if ferr := g.source.Fail(err); ferr != nil {
		g.mu.Unlock()
		return fmt.Errorf("deny source: %w", ferr)
	}
	n := g.nodes[node.SourceID]
	g.mu.Unlock()

	g.log.WithField("node", n.ID).WithError(err).Debug("source denied")
	g.notify(Event{Kind: SourceDenied, Node: snapshot(n)})
	return nil
}

// LoadBuffer resolves the decode gate of a file-input node with buf. If the
// node is already bound, its player is replaced with one playing buf.
func (g *Graph) LoadBuffer(id string, buf *engine.Buffer) error {
	g.mu.Lock()
	n, ok := g.nodes[id]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("load %s: %w", id, ErrMissingNode)
	}
	gate, ok := g.buffers[id]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("load %s: %v has no buffer: %w", id, n.Type, ErrRejected)
	}
	if err := gate.Resolve(buf); err != nil {
		// replace previously loaded or failed buffer
		gate = node.NewGate[*engine.Buffer]()
		_ = gate.Resolve(buf)
		g.buffers[id] = gate
	}

	var engineErr error
	if e, ok := g.life.Context(); ok {
		if err := g.registry.Inject(e, n, buf); err != nil {
			g.log.WithField("node", id).WithError(err).Warn("buffer injection failed")
			engineErr = &EngineError{Op: "inject", Node: id, Err: err}
		}
	}
	g.mu.Unlock()

	g.log.WithFields(logrus.Fields{"node": id, "duration": buf.Duration()}).Debug("buffer loaded")
	g.notify(Event{Kind: BufferLoaded, Node: snapshot(n)})
	return engineErr
}

// FailBuffer fails the decode gate of a file-input node, for example when
// decoding failed. A later LoadBuffer replaces the failed gate.
func (g *Graph) FailBuffer(id string, err error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	gate, ok := g.buffers[id]
	if !ok {
		return fmt.Errorf("fail %s: %w", id, ErrMissingNode)
	}
	if ferr := gate.Fail(err); ferr != nil {
		gate = node.NewGate[*engine.Buffer]()
		_ = gate.Fail(err)
		g.buffers[id] = gate
	}
	return nil
}

// LoadFile decodes the wav file at path and loads it into the file-input
// node. A decode failure fails the node's decode gate.
func (g *Graph) LoadFile(id, path string) error {
	buf, err := wav.DecodeFile(path)
	if err != nil {
		err = fmt.Errorf("decode %s: %w", path, err)
		if ferr := g.FailBuffer(id, err); ferr != nil {
			return ferr
		}
		return err
	}
	return g.LoadBuffer(id, buf)
}
