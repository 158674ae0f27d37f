// Package pending correlates outbound requests with their eventual responses.
package pending

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tradestream/pkg/core"
)

// ErrPending is returned by Result while the handle has not completed.
var ErrPending = errors.New("response still pending")

// Completer is the type-erased side of a Handle held by the Table.
type Completer interface {
	// Resolve completes the handle with a response value. It reports whether this
	// call completed the handle.
	Resolve(v any) bool
	// Fail completes the handle with an error. It reports whether this call
	// completed the handle.
	Fail(err error) bool
}

// Handle is a single-assignment response cell. It completes exactly once, either
// with a value of type T or with an error.
type Handle[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewHandle returns an incomplete handle.
func NewHandle[T any]() *Handle[T] {
	return &Handle[T]{done: make(chan struct{})}
}

// Failed returns a handle already completed with err.
func Failed[T any](err error) *Handle[T] {
	h := NewHandle[T]()
	h.Fail(err)
	return h
}

func (h *Handle[T]) complete(v T, err error) bool {
	completed := false
	h.once.Do(func() {
		h.value = v
		h.err = err
		completed = true
		close(h.done)
	})
	return completed
}

// Resolve implements Completer. A value that is not a T fails the handle with an
// unexpected response error.
func (h *Handle[T]) Resolve(v any) bool {
	typed, ok := v.(T)
	if !ok {
		var zero T
		return h.Fail(core.NewStreamError(core.ErrorTypeUnexpectedResponse,
			fmt.Sprintf("expected %T, got %T", zero, v)).
			WithCode(core.ErrCodePayloadMismatch))
	}
	return h.complete(typed, nil)
}

// Fail implements Completer.
func (h *Handle[T]) Fail(err error) bool {
	var zero T
	return h.complete(zero, err)
}

// Done is closed once the handle completes.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Completed reports whether the handle has a value or an error.
func (h *Handle[T]) Completed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome without blocking, or ErrPending.
func (h *Handle[T]) Result() (T, error) {
	if !h.Completed() {
		var zero T
		return zero, ErrPending
	}
	return h.value, h.err
}

// Await blocks until the handle completes or ctx is done. Cancelling ctx does not
// affect the handle itself.
func (h *Handle[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then runs fn on its own goroutine once the handle completes.
func (h *Handle[T]) Then(fn func(T, error)) {
	go func() {
		<-h.done
		fn(h.value, h.err)
	}()
}
