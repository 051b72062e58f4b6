package pool

import (
	"context"
	"fmt"
	"sync"
)

// Result is the settled outcome of one concurrent call
type Result[T any] struct {
	Value T
	Err   error
}

// Failure returns the call's error
func (r *Result[T]) Failure() error {
	return r.Err
}

// Ok reports whether the call succeeded
func (r *Result[T]) Ok() bool {
	return r.Err == nil
}

// Or returns the value, or fallback when the call failed
func (r *Result[T]) Or(fallback T) T {
	if r.Err != nil {
		return fallback
	}
	return r.Value
}

// Settler waits for a set of calls that may fail independently. Every call
// runs to completion regardless of the others.
type Settler struct {
	wg sync.WaitGroup
}

// Settle starts fn and returns its result slot, filled once Wait returns
func Settle[T any](s *Settler, ctx context.Context, fn func(context.Context) (T, error)) *Result[T] {
	r := &Result[T]{}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.Err = fmt.Errorf("call panicked: %v", p)
			}
		}()
		r.Value, r.Err = fn(ctx)
	}()
	return r
}

// Wait blocks until every settled call has completed
func (s *Settler) Wait() {
	s.wg.Wait()
}

// Failer is a settled result
type Failer interface {
	Failure() error
}

// FirstErr returns the first failure in argument order, so the argument
// order sets error priority
func FirstErr(results ...Failer) error {
	for _, r := range results {
		if r == nil {
			continue
		}
		if err := r.Failure(); err != nil {
			return err
		}
	}
	return nil
}
