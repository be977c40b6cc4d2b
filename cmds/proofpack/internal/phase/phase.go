package phase

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Phase is a named step with its own deadline.
type Phase struct {
	Label   string
	Timeout time.Duration
}

// TimeoutError is the cancellation cause recorded when a phase deadline fires.
type TimeoutError struct {
	Label   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("phase:%s timed out after %dms", e.Label, e.Timeout.Milliseconds())
}

// PanicError carries a panic raised by a phase operation back to the caller.
type PanicError struct {
	Label string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("phase:%s panicked: %v", e.Label, e.Value)
}

type result[T any] struct {
	value T
	err   error
}

// Run executes op under the phase deadline and returns as soon as either op
// finishes or the deadline (or any enclosing one) fires. An abandoned op keeps
// running in its goroutine with a cancelled context.
//
// The deadline is installed as a context cause, so a nested Run whose parent
// phase expires first reports the parent's TimeoutError.
func Run[T any](ctx context.Context, phase Phase, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, context.Cause(ctx)
	}

	phaseCtx, cancel := context.WithTimeoutCause(ctx, phase.Timeout, &TimeoutError{
		Label:   phase.Label,
		Timeout: phase.Timeout,
	})
	defer cancel()

	results := make(chan result[T], 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				results <- result[T]{err: &PanicError{Label: phase.Label, Value: recovered}}
			}
		}()
		value, err := op(phaseCtx)
		results <- result[T]{value: value, err: err}
	}()

	select {
	case outcome := <-results:
		if outcome.err != nil && phaseCtx.Err() != nil {
			return zero, context.Cause(phaseCtx)
		}
		return outcome.value, outcome.err
	case <-phaseCtx.Done():
		return zero, context.Cause(phaseCtx)
	}
}

// Do is Run for operations without a result value.
func Do(ctx context.Context, phase Phase, op func(ctx context.Context) error) error {
	_, err := Run(ctx, phase, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// LabelOf returns the label of the phase whose deadline caused err.
func LabelOf(err error) (string, bool) {
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return timeoutErr.Label, true
	}
	return "", false
}
