package patchbay

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Option configures the graph.
type Option func(*Graph)

// WithLogger sets the logger. Graphs are silent by default.
func WithLogger(l logrus.FieldLogger) Option {
	return func(g *Graph) {
		g.log = l
	}
}

// WithListener adds a listener notified after every successful mutation.
func WithListener(l Listener) Option {
	return func(g *Graph) {
		g.listeners = append(g.listeners, l)
	}
}

// WithPermissionTimeout bounds capture permission requests. Zero disables
// the timeout.
func WithPermissionTimeout(d time.Duration) Option {
	return func(g *Graph) {
		g.permissionTimeout = d
	}
}

// WithIDs replaces the identity generator of nodes and connections. The
// generator receives a prefix: the node type or "connection".
func WithIDs(fn func(prefix string) string) Option {
	return func(g *Graph) {
		g.newID = fn
	}
}
