// Package binding materializes graph nodes into engine units.
//
// A Factory builds the units of a node, the Registry caches one Binding per
// node id and tears bindings down when nodes go away. Bindings are created
// lazily: nothing in this package is invoked until a node takes part in a
// connection.
package binding

import (
	"errors"
	"strings"

	"github.com/pipelined/patchbay/engine"
	"github.com/pipelined/patchbay/node"
)

var (
	// ErrNotReady is returned when a node depends on an external event that
	// didn't happen yet, such as a permission grant or a finished decode.
	ErrNotReady = errors.New("node not ready")
	// ErrReentrant is returned when a binding is requested for a node whose
	// binding is being built.
	ErrReentrant = errors.New("binding in progress")
)

// Role names a stage inside a binding.
type Role string

// Stage roles.
const (
	RoleGenerator   Role = "generator"
	RoleGain        Role = "gain"
	RolePlayer      Role = "player"
	RoleStream      Role = "stream"
	RoleDestination Role = "destination"
	RoleDelay       Role = "delay"
	RoleReverb      Role = "reverb"
	RoleCompressor  Role = "compressor"
	RoleFilter      Role = "filter"
	RoleLow         Role = "low"
	RoleMid         Role = "mid"
	RoleHigh        Role = "high"
	RoleAnalyser    Role = "analyser"
)

// Stage is a single unit of a binding.
type Stage struct {
	Role Role
	Unit engine.Unit
	// Shared stages belong to the engine and are never released.
	Shared bool
}

// Binding is the live materialization of a node: an ordered chain of
// stages with designated input-facing and output-facing stages. In and Out
// are -1 when the node has no such side. A binding handed out by the
// registry is never modified.
type Binding struct {
	Node   string
	Type   node.Type
	Stages []Stage
	In     int
	Out    int
}

// Input returns the input-facing unit.
func (b *Binding) Input() (engine.Unit, bool) {
	return b.at(b.In)
}

// Output returns the output-facing unit.
func (b *Binding) Output() (engine.Unit, bool) {
	return b.at(b.Out)
}

// Stage returns the unit with provided role.
func (b *Binding) Stage(role Role) (engine.Unit, bool) {
	for _, s := range b.Stages {
		if s.Role == role {
			return s.Unit, true
		}
	}
	return nil, false
}

// Units returns all units in chain order.
func (b *Binding) Units() []engine.Unit {
	units := make([]engine.Unit, 0, len(b.Stages))
	for _, s := range b.Stages {
		units = append(units, s.Unit)
	}
	return units
}

// owned returns the number of stages released on teardown.
func (b *Binding) owned() int {
	n := 0
	for _, s := range b.Stages {
		if !s.Shared {
			n++
		}
	}
	return n
}

func (b *Binding) at(i int) (engine.Unit, bool) {
	if i < 0 || i >= len(b.Stages) {
		return nil, false
	}
	return b.Stages[i].Unit, true
}

// Gates exposes readiness of nodes that depend on external events.
type Gates interface {
	// Stream returns the granted capture stream of a source-input node.
	Stream(nodeID string) (engine.Stream, error)
	// Buffer returns the decoded buffer of a file-input node.
	Buffer(nodeID string) (*engine.Buffer, error)
}

// stageErrors wraps errors that occur when multiple stages fail.
type stageErrors []error

func (e stageErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Is checks if any of errors match provided sentinel error.
func (e stageErrors) Is(err error) bool {
	for _, se := range e {
		if errors.Is(se, err) {
			return true
		}
	}
	return false
}

// ret returns untyped nil if error list is empty.
func (e stageErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
