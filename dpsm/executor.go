package dpsm

import (
	"context"
	"time"

	"go.uber.org/atomic"
)

const (
	registerTimeout = 1_000_000 * time.Millisecond
	statusTimeout   = 10_000 * time.Millisecond
	maxInFlight     = 2
)

// executor bounds concurrent step execution to maxInFlight and enforces a
// per-step timeout via a derived context, instead of a literal OS thread
// pool: a cancellable timed await gives the same guarantee a two-thread
// ExecutorService would, without owning any goroutines past the call that
// needed them.
type executor struct {
	sem      chan struct{}
	shutdown atomic.Bool
}

func newExecutor() *executor {
	return &executor{sem: make(chan struct{}, maxInFlight)}
}

// submit runs fn under a context bound to timeout, blocking until either fn
// returns or the timeout elapses. It never leaves fn's goroutine
// unaccounted for: fn is expected to respect ctx cancellation the way an
// HTTP call bound to ctx naturally does.
func (e *executor) submit(parent context.Context, step string, timeout time.Duration, fn func(ctx context.Context) (*RegistrationOperationStatus, error)) (*RegistrationOperationStatus, error) {
	if e.shutdown.Load() {
		return nil, &TransportError{Err: context.Canceled}
	}

	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	type result struct {
		status *RegistrationOperationStatus
		err    error
	}
	resultCh := make(chan result, 1)
	go func() {
		status, err := fn(ctx)
		resultCh <- result{status, err}
	}()

	select {
	case res := <-resultCh:
		return res.status, res.err
	case <-ctx.Done():
		return nil, &TimeoutError{Step: step, Elapsed: timeout}
	}
}

// shutdownNow marks the executor closed. Steps already admitted finish or
// time out on their own; no new step is admitted afterward.
func (e *executor) shutdownNow() {
	e.shutdown.Store(true)
}
