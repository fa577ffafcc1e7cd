package patchbay

import "github.com/pipelined/patchbay/node"

// EventKind identifies the mutation that happened.
type EventKind int

// Event kinds.
const (
	NodeAdded EventKind = iota
	NodeRemoved
	ParamUpdated
	ConnectionAdded
	ConnectionRemoved
	SourceGranted
	SourceDenied
	BufferLoaded
)

func (k EventKind) String() string {
	switch k {
	case NodeAdded:
		return "node added"
	case NodeRemoved:
		return "node removed"
	case ParamUpdated:
		return "param updated"
	case ConnectionAdded:
		return "connection added"
	case ConnectionRemoved:
		return "connection removed"
	case SourceGranted:
		return "source granted"
	case SourceDenied:
		return "source denied"
	case BufferLoaded:
		return "buffer loaded"
	}
	return "unknown"
}

// Event describes a successful mutation. Node is set for node events,
// Connection for connection events.
type Event struct {
	Kind       EventKind
	Node       node.Node
	Connection node.Connection
}

// Listener receives events after the graph lock is released, so it may
// call back into the graph.
type Listener func(Event)

func (g *Graph) notify(events ...Event) {
	for _, e := range events {
		for _, l := range g.listeners {
			l(e)
		}
	}
}
