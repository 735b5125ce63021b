package observ

import (
	"errors"
	"sync"
)

// Selector is a memoized computation. It re-computes when something it
// read changes, but its readers are only notified when the result differs
// from the previous one.
//
// Selectors are lazy: fn first runs on the first Get or Peek.
//
//	total := observ.NewSelector(func() int {
//	    return observ.As[int](cart.Get("a")) + observ.As[int](cart.Get("b"))
//	})
type Selector[T any] struct {
	obs *Observer

	// out carries a version counter; readers subscribe to it so the
	// registry treats selector outputs like any other node.
	out *Node

	fn      func() T
	equal   func(a, b T) bool
	value   T
	valid   bool
	version uint64

	// staged is set when the last computation read writes a batch had not
	// flushed yet; the value is provisional until they commit or abort.
	staged bool
	mu     sync.Mutex
}

// SelectorOption configures a Selector.
type SelectorOption[T any] func(*Selector[T])

// WithEquals sets the equality used to decide whether the output changed.
// By default == is used for basic types and reflect.DeepEqual otherwise.
func WithEquals[T any](eq func(a, b T) bool) SelectorOption[T] {
	return func(s *Selector[T]) {
		s.equal = eq
	}
}

// NewSelector creates a selector on the default runtime.
func NewSelector[T any](fn func() T, opts ...SelectorOption[T]) *Selector[T] {
	return SelectorOn(Default(), fn, opts...)
}

// SelectorOn creates a selector on rt. It is owned by the current scope
// like any observer.
func SelectorOn[T any](rt *Runtime, fn func() T, opts ...SelectorOption[T]) *Selector[T] {
	s := &Selector[T]{
		fn:    fn,
		equal: defaultEquals[T],
	}
	for _, opt := range opts {
		opt(s)
	}
	s.out = rt.NewNode(uint64(0))
	s.obs = rt.NewObserver(s.compute)
	s.obs.selector = true
	rt.setSource(s.out.id, s.outdated)
	return s
}

// Named labels the selector's observer.
func (s *Selector[T]) Named(name string) *Selector[T] {
	s.obs.name = name
	s.out.name = name
	return s
}

// Observer returns the observer backing the selector.
func (s *Selector[T]) Observer() *Observer {
	return s.obs
}

// compute is the observer function. A panicking fn leaves the selector
// invalid, so the next read recomputes instead of serving a value whose
// dependencies were dropped.
func (s *Selector[T]) compute() error {
	ok := false
	defer func() {
		if !ok {
			s.mu.Lock()
			s.valid = false
			s.mu.Unlock()
		}
	}()
	v := s.fn()
	ok = true

	s.mu.Lock()
	s.staged = false
	first := s.version == 0
	changed := first || !s.equal(s.value, v)
	if changed {
		s.value = v
		s.version++
	}
	s.valid = true
	version := s.version
	s.mu.Unlock()

	if !changed || first {
		return nil
	}
	return s.obs.rt.publish(s.out, version)
}

// pull recomputes when the selector has never run, failed, was scheduled
// by a flush, or depends on writes staged in an open batch.
func (s *Selector[T]) pull() {
	if s.obs.State() == Disposed {
		return
	}
	if !s.outdated() {
		return
	}

	err := s.obs.Run()
	switch {
	case err == nil:
		if s.obs.readsStaged() {
			s.mu.Lock()
			s.staged = true
			s.mu.Unlock()
		}
	case errors.Is(err, ErrReentrantRun):
		s.obs.rt.logger.Warn("selector read during its own computation",
			"selector", s.obs.String())
	default:
		s.mu.Lock()
		s.valid = false
		s.mu.Unlock()
		s.obs.rt.logger.Error("selector failed",
			"selector", s.obs.String(),
			"error", err)
	}
}

// outdated reports whether the cached value may differ from what fn would
// return now. A selector that is computing counts as current, which stops
// reads of itself and cyclic checks.
func (s *Selector[T]) outdated() bool {
	if s.obs.State() == Recording {
		return false
	}
	s.mu.Lock()
	stale := !s.valid || s.staged || s.obs.pending.Load()
	s.mu.Unlock()
	return stale || s.obs.readsStaged()
}

// Get returns the current result and subscribes the recording observer.
// A disposed selector returns its last result without tracking.
func (s *Selector[T]) Get() T {
	s.pull()
	if !s.out.IsDisposed() {
		s.out.Get()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Peek returns the current result without subscribing.
func (s *Selector[T]) Peek() T {
	s.pull()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Read implements Reader.
func (s *Selector[T]) Read() any {
	return s.Get()
}

// Dispose stops recomputation and drops the selector's readers.
func (s *Selector[T]) Dispose() {
	s.obs.rt.setSource(s.out.id, nil)
	s.obs.Dispose()
	s.out.Dispose()
}
