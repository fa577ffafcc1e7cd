// Package node defines the routing graph data model: typed nodes with fixed
// port arity, their parameter variants, connections between named ports and
// readiness gates for nodes that depend on external events.
package node

import "fmt"

// Type identifies the kind of audio-processing stage a node represents.
type Type string

// Node types. The set is closed.
const (
	SourceInput Type = "source-input"
	Destination Type = "destination"
	Oscillator  Type = "oscillator"
	FileInput   Type = "file-input"
	Delay       Type = "delay"
	Reverb      Type = "reverb"
	Compressor  Type = "compressor"
	Filter      Type = "filter"
	Equalizer   Type = "equalizer"
	Visualizer  Type = "visualizer"
)

// Identities of the two distinguished nodes every graph carries.
const (
	SourceID      = "source"
	DestinationID = "destination"
)

// Port names.
const (
	InputPort  = "input"
	OutputPort = "output"
)

// Types returns all node types in palette order.
func Types() []Type {
	return []Type{
		SourceInput,
		Destination,
		Oscillator,
		FileInput,
		Delay,
		Reverb,
		Compressor,
		Filter,
		Equalizer,
		Visualizer,
	}
}

// Valid reports whether t is one of the known node types.
func (t Type) Valid() bool {
	_, ok := schemas[t]
	return ok
}

// Reserved reports whether t is the type of a distinguished node. Reserved
// types cannot be added by the user.
func (t Type) Reserved() bool {
	return t == SourceInput || t == Destination
}

// Label returns a human readable title for the type.
func (t Type) Label() string {
	if s, ok := schemas[t]; ok {
		return s.label
	}
	return string(t)
}

// Inputs returns the input port names of the type.
func (t Type) Inputs() []string {
	return append([]string(nil), schemas[t].inputs...)
}

// Outputs returns the output port names of the type.
func (t Type) Outputs() []string {
	return append([]string(nil), schemas[t].outputs...)
}

// Node is a vertex of the routing graph. Values returned by the graph are
// snapshots and can be retained by the caller.
type Node struct {
	ID      string
	Type    Type
	Params  Params
	Inputs  []string
	Outputs []string
}

// New returns a node of type t with default parameters and the port arity of
// the type.
func New(id string, t Type) (Node, error) {
	if !t.Valid() {
		return Node{}, fmt.Errorf("unknown node type %q", t)
	}
	return Node{
		ID:      id,
		Type:    t,
		Params:  Defaults(t),
		Inputs:  t.Inputs(),
		Outputs: t.Outputs(),
	}, nil
}

// HasInput returns true if node has input port with provided name.
func (n Node) HasInput(port string) bool {
	return contains(n.Inputs, port)
}

// HasOutput returns true if node has output port with provided name.
func (n Node) HasOutput(port string) bool {
	return contains(n.Outputs, port)
}

// Distinguished reports whether the node is one of the two nodes that always
// exist in a graph.
func (n Node) Distinguished() bool {
	return n.ID == SourceID || n.ID == DestinationID
}

// Param returns the value of the named parameter.
func (n Node) Param(name string) (float64, bool) {
	if n.Params == nil {
		return 0, false
	}
	return n.Params.Get(name)
}

func contains(ports []string, port string) bool {
	for _, p := range ports {
		if p == port {
			return true
		}
	}
	return false
}
