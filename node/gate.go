package node

import (
	"errors"
	"sync"
)

var (
	// ErrPending is returned by a gate that has not been resolved yet.
	ErrPending = errors.New("gate pending")
	// ErrGateResolved is returned when a gate is resolved twice.
	ErrGateResolved = errors.New("gate already resolved")
)

// Gate is a one-shot readiness capability. It is resolved with a value or
// failed with an error by an external event, such as a permission grant or
// a finished decode. Consumers poll it with Value.
type Gate[T any] struct {
	mu    sync.Mutex
	done  chan struct{}
	value T
	err   error
}

// NewGate returns a pending gate.
func NewGate[T any]() *Gate[T] {
	return &Gate[T]{done: make(chan struct{})}
}

// Resolve opens the gate with value v.
func (g *Gate[T]) Resolve(v T) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resolved() {
		return ErrGateResolved
	}
	g.value = v
	close(g.done)
	return nil
}

// Fail closes the gate with err.
func (g *Gate[T]) Fail(err error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resolved() {
		return ErrGateResolved
	}
	g.err = err
	close(g.done)
	return nil
}

// Value returns the resolved value without blocking. ErrPending is returned
// while the gate is not resolved.
func (g *Gate[T]) Value() (T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var zero T
	if !g.resolved() {
		return zero, ErrPending
	}
	if g.err != nil {
		return zero, g.err
	}
	return g.value, nil
}

// Failed reports whether the gate was closed with an error.
func (g *Gate[T]) Failed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolved() && g.err != nil
}

func (g *Gate[T]) resolved() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}
