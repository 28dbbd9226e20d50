package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// InterruptedError is returned by Await when the caller's context ends before
// the result is available. The task itself keeps running.
type InterruptedError struct {
	Err error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("interrupted while awaiting result: %v", e.Err)
}

func (e *InterruptedError) Unwrap() error { return e.Err }

// AggregationError fails a combination step whose inputs did not all succeed.
// Cause joins every failed input.
type AggregationError struct {
	Step  string
	Cause error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("%s: dependency failed: %v", e.Step, e.Cause)
}

func (e *AggregationError) Unwrap() error { return e.Cause }

// PanicError carries a panic recovered inside a task.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Future is the handle of a task that resolves exactly once to a value or an error.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a future already resolved to v.
func Completed[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.complete(v, nil)
	return f
}

// Failed returns a future already resolved to err.
func Failed[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.complete(zero, err)
	return f
}

func (f *Future[T]) complete(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Done is closed once the future has resolved.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the future resolves or ctx ends.
// A future that has already resolved wins over a ctx that is already done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
	}
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, &InterruptedError{Err: ctx.Err()}
	}
}

func (f *Future[T]) wait() (T, error) {
	<-f.done
	return f.val, f.err
}

// Submit runs fn on the pool and returns its handle.
func Submit[T any](p *Pool, fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	if err := p.execute(func() { f.complete(call(fn)) }); err != nil {
		var zero T
		f.complete(zero, err)
	}
	return f
}

func call[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// Dispatch runs build on its own goroutine and resolves to the future build
// returns. Callers get a handle at once even when submitting blocks on a full pool.
func Dispatch[T any](build func() *Future[T]) *Future[T] {
	out := newFuture[T]()
	go func() {
		out.complete(call(func() (T, error) { return build().wait() }))
	}()
	return out
}

// Then schedules fn once every dep has resolved. It waits for all deps even
// after one fails and does not occupy a worker while waiting. If any dep failed
// the result is an *AggregationError; otherwise fn runs on the pool.
func Then[T, R any](p *Pool, step string, deps []*Future[T], fn func([]T) (R, error)) *Future[R] {
	out := newFuture[R]()
	go func() {
		vals := make([]T, len(deps))
		var errs []error
		for i, d := range deps {
			v, err := d.wait()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			vals[i] = v
		}
		if len(errs) > 0 {
			var zero R
			out.complete(zero, &AggregationError{Step: step, Cause: errors.Join(errs...)})
			return
		}
		out.complete(Submit(p, func() (R, error) { return fn(vals) }).wait())
	}()
	return out
}

// Then2 is Then for two inputs of different types.
func Then2[A, B, R any](p *Pool, step string, a *Future[A], b *Future[B], fn func(A, B) (R, error)) *Future[R] {
	out := newFuture[R]()
	go func() {
		av, aErr := a.wait()
		bv, bErr := b.wait()
		if aErr != nil || bErr != nil {
			var zero R
			out.complete(zero, &AggregationError{Step: step, Cause: errors.Join(aErr, bErr)})
			return
		}
		out.complete(Submit(p, func() (R, error) { return fn(av, bv) }).wait())
	}()
	return out
}
