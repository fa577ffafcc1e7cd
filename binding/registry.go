package binding

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pipelined/patchbay/engine"
	"github.com/pipelined/patchbay/metric"
	"github.com/pipelined/patchbay/node"
)

// Registry caches one binding per node id.
type Registry struct {
	log   logrus.FieldLogger
	build Factory

	mu       sync.Mutex
	bindings map[string]*Binding
	// building holds ids of nodes whose binding is being built.
	building map[string]struct{}
}

// RegistryOption configures the registry.
type RegistryOption func(*Registry)

// WithFactory replaces the factory used to build bindings.
func WithFactory(f Factory) RegistryOption {
	return func(r *Registry) {
		r.build = f
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(log logrus.FieldLogger, options ...RegistryOption) *Registry {
	r := &Registry{
		log:      log,
		build:    Build,
		bindings: make(map[string]*Binding),
		building: make(map[string]struct{}),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// GetOrCreate returns the cached binding of node n or builds a new one. A
// failed build leaves nothing cached.
func (r *Registry) GetOrCreate(e engine.Context, n node.Node, gates Gates) (*Binding, error) {
	r.mu.Lock()
	if b, ok := r.bindings[n.ID]; ok {
		r.mu.Unlock()
		return b, nil
	}
	if _, ok := r.building[n.ID]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("bind %s: %w", n.ID, ErrReentrant)
	}
	r.building[n.ID] = struct{}{}
	r.mu.Unlock()

	b, err := r.build(e, n, gates)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.building, n.ID)
	meter := metric.For(string(n.Type))
	if err != nil {
		meter.Failed()
		return nil, err
	}
	r.bindings[n.ID] = b
	meter.Bound(b.owned())
	r.log.WithFields(logrus.Fields{
		"node":   n.ID,
		"type":   n.Type,
		"stages": len(b.Stages),
	}).Debug("node bound")
	return b, nil
}

// Lookup returns the binding of node id if it exists.
func (r *Registry) Lookup(id string) (*Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[id]
	return b, ok
}

// Len returns the number of live bindings.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}

// Update pushes a parameter value into the live unit of node n. It's a
// no-op if the node isn't bound or the parameter drives no unit control.
func (r *Registry) Update(n node.Node, name string, value float64) error {
	b, ok := r.Lookup(n.ID)
	if !ok {
		return nil
	}
	c, ok := controls[n.Type][name]
	if !ok {
		return nil
	}
	u, ok := b.Stage(c.role)
	if !ok {
		return nil
	}
	if err := u.SetControl(c.name, c.convert(value)); err != nil {
		metric.For(string(n.Type)).Failed()
		return fmt.Errorf("update %s %s: %w", n.ID, name, err)
	}
	return nil
}

// Teardown disconnects and releases every owned unit of the binding of node
// id, last stage first. The binding is evicted even if the engine fails.
// Teardown of an unbound node is a no-op.
func (r *Registry) Teardown(e engine.Context, id string) error {
	r.mu.Lock()
	b, ok := r.bindings[id]
	delete(r.bindings, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	meter := metric.For(string(b.Type))
	meter.Released(b.owned())
	if err := release(e, b); err != nil {
		meter.Failed()
		return err
	}
	r.log.WithField("node", id).Debug("node released")
	return nil
}

// Inject replaces the player of a bound file-input node with a new one
// playing buf. The new player is wired into the gain stage and started
// before the old one is released. The cached binding is replaced by a new
// value, bindings returned earlier keep their stages. It's a no-op if the
// node isn't bound.
func (r *Registry) Inject(e engine.Context, n node.Node, buf *engine.Buffer) error {
	b, ok := r.Lookup(n.ID)
	if !ok {
		return nil
	}
	idx := -1
	for i, s := range b.Stages {
		if s.Role == RolePlayer {
			idx = i
		}
	}
	gain, ok := b.Stage(RoleGain)
	if idx < 0 || !ok {
		return fmt.Errorf("inject %s: %v has no player", n.ID, n.Type)
	}

	params := n.Params
	if params == nil {
		params = node.Defaults(n.Type)
	}
	player, err := e.Create(engine.UnitSpec{
		Kind:     engine.BufferSource,
		Controls: stageControls(n.Type, RolePlayer, params.Values()),
		Buffer:   buf,
	})
	if err != nil {
		return fmt.Errorf("inject %s: %w", n.ID, err)
	}
	if err := e.Connect(player, gain); err != nil {
		_ = e.Release(player)
		return fmt.Errorf("inject %s: %w", n.ID, err)
	}
	if err := player.Start(); err != nil {
		_ = e.Disconnect(player)
		_ = e.Release(player)
		return fmt.Errorf("inject %s: %w", n.ID, err)
	}

	swapped := *b
	swapped.Stages = append([]Stage(nil), b.Stages...)
	swapped.Stages[idx].Unit = player
	old := b.Stages[idx].Unit

	r.mu.Lock()
	current, ok := r.bindings[n.ID]
	if ok && current == b {
		r.bindings[n.ID] = &swapped
	} else {
		// torn down meanwhile, the new player has no binding to join
		old = player
	}
	r.mu.Unlock()

	var errs stageErrors
	if err := e.Disconnect(old); err != nil {
		errs = append(errs, err)
	}
	if err := e.Release(old); err != nil {
		errs = append(errs, err)
	}
	return errs.ret()
}

// Reset evicts every binding without touching the engine. It's used when
// the engine itself goes away.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, b := range r.bindings {
		metric.For(string(b.Type)).Released(b.owned())
		delete(r.bindings, id)
	}
}
