package patchbay

import (
	"errors"
	"fmt"

	"github.com/pipelined/patchbay/binding"
	"github.com/pipelined/patchbay/engine"
)

var (
	// ErrRejected is returned when a mutation is refused by graph
	// validation. The graph is left unchanged.
	ErrRejected = errors.New("rejected")
	// ErrSelfLoop is returned when a connection starts and ends at the
	// same node.
	ErrSelfLoop = fmt.Errorf("%w: self loop", ErrRejected)
	// ErrDuplicate is returned when an identical connection exists.
	ErrDuplicate = fmt.Errorf("%w: duplicate connection", ErrRejected)
	// ErrMissingNode is returned when a referenced node doesn't exist.
	ErrMissingNode = fmt.Errorf("%w: missing node", ErrRejected)
	// ErrMissingPort is returned when a referenced port doesn't exist.
	ErrMissingPort = fmt.Errorf("%w: missing port", ErrRejected)
	// ErrUnknownParam is returned when a parameter isn't part of the node
	// type schema.
	ErrUnknownParam = fmt.Errorf("%w: unknown parameter", ErrRejected)
	// ErrUnknownType is returned when a node type doesn't exist.
	ErrUnknownType = fmt.Errorf("%w: unknown node type", ErrRejected)
	// ErrReservedType is returned when a node of a distinguished type is
	// added.
	ErrReservedType = fmt.Errorf("%w: reserved node type", ErrRejected)

	// ErrNotReady is returned when a node awaits an external event, such as
	// capture permission or decoded audio. The operation can be retried.
	ErrNotReady = binding.ErrNotReady
	// ErrClosed is returned when an engine operation is attempted after
	// Close.
	ErrClosed = engine.ErrClosed
)

// EngineError is returned when the engine fails during construction,
// connection or disconnection of units.
type EngineError struct {
	Op   string
	Node string
	Err  error
}

func (e *EngineError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("engine %s %s: %v", e.Op, e.Node, e.Err)
}

// Unwrap returns the engine error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// engineError classifies err returned while binding or wiring node id.
// Readiness, reentrancy and lifecycle conditions are returned as is.
func engineError(op, id string, err error) error {
	switch {
	case errors.Is(err, ErrNotReady),
		errors.Is(err, binding.ErrReentrant),
		errors.Is(err, ErrClosed):
		return err
	}
	return &EngineError{Op: op, Node: id, Err: err}
}
