package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const resumeKey = "resume"

// Lifecycle owns the single engine instance. The instance is constructed
// once, on the first Ensure call, and every Ensure resumes it before
// returning: hosts commonly start engines suspended and only allow resuming
// from a user gesture.
//
//	Uninitialized -> Suspended -> Running -> Closed
//
// Lifecycle is safe for concurrent use. Overlapping Ensure calls share a
// single resume request.
type Lifecycle struct {
	open   OpenFunc
	log    logrus.FieldLogger
	resume singleflight.Group

	mu     sync.Mutex
	engine Context
	closed bool
}

// NewLifecycle returns a lifecycle that constructs its engine with open.
func NewLifecycle(open OpenFunc, log logrus.FieldLogger) *Lifecycle {
	return &Lifecycle{
		open: open,
		log:  log,
	}
}

// Ensure constructs the engine if needed, resumes it and waits until it
// runs. It fails with ErrClosed after Close. Cancelling ctx stops the wait
// of this caller only: the resume keeps going for the others.
func (l *Lifecycle) Ensure(ctx context.Context) (Context, error) {
	e, err := l.instance()
	if err != nil {
		return nil, err
	}

	// the flight is shared by every waiting caller and outlives the one
	// that started it
	detached := context.WithoutCancel(ctx)
	resumed := l.resume.DoChan(resumeKey, func() (interface{}, error) {
		return nil, e.Resume(detached)
	})
	select {
	case r := <-resumed:
		if r.Err != nil {
			return nil, fmt.Errorf("resume engine: %w", r.Err)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// engine might be closed while resume was in progress
	if l.closed {
		return nil, ErrClosed
	}
	return e, nil
}

// instance returns the engine, constructing it on first use.
func (l *Lifecycle) instance() (Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if l.engine != nil {
		return l.engine, nil
	}
	e, err := l.open()
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	l.engine = e
	fields := logrus.Fields{"state": e.State()}
	if d, ok := e.(Describer); ok {
		fields["sampleRate"] = d.SampleRate()
		fields["latency"] = d.LatencyHint()
	}
	l.log.WithFields(fields).Debug("engine opened")
	return e, nil
}

// Context returns the engine if it was constructed and is not closed. It
// never constructs nor resumes the engine.
func (l *Lifecycle) Context() (Context, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.engine == nil {
		return nil, false
	}
	return l.engine, true
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.closed:
		return Closed
	case l.engine == nil:
		return Uninitialized
	}
	return l.engine.State()
}

// Suspend pauses a constructed engine. It's a no-op if the engine was never
// constructed.
func (l *Lifecycle) Suspend(ctx context.Context) error {
	l.mu.Lock()
	e, closed := l.engine, l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if e == nil {
		return nil
	}
	return e.Suspend(ctx)
}

// Close releases the engine. Close can only be called once, consequent
// calls return ErrClosed.
func (l *Lifecycle) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.closed = true
	if l.engine == nil {
		return nil
	}
	err := l.engine.Close()
	l.engine = nil
	l.log.Debug("engine closed")
	return err
}
