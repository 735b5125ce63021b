package observ

import (
	"sync"
	"sync/atomic"
)

// Scope owns observers and cleanup functions. Disposing a scope disposes
// everything it owns, children first and in reverse creation order.
//
// Scopes form a hierarchy. Every observer has a child scope that owns what
// its function creates; that scope is emptied before each re-run, so
// observers created by a previous run never outlive it.
type Scope struct {
	id uint64

	// parent is nil for root scopes and for observer-owned scopes.
	parent *Scope
	depth  int

	children  []*Scope
	observers []*Observer
	cleanups  []func()
	mu        sync.Mutex

	disposed atomic.Bool
}

// NewScope creates a scope. A non-nil parent owns the new scope.
func NewScope(parent *Scope) *Scope {
	s := &Scope{id: nextID()}
	if parent != nil {
		s.parent = parent
		s.depth = parent.depth + 1
		parent.addChild(s)
	}
	return s
}

func newObserverScope(depth int) *Scope {
	return &Scope{id: nextID(), depth: depth}
}

// ID returns the unique identifier for this scope.
func (s *Scope) ID() uint64 {
	return s.id
}

// Parent returns the owning scope, or nil.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Depth is the distance from the root scope. Observers owned by shallower
// scopes re-run first within a flush round.
func (s *Scope) Depth() int {
	if s == nil {
		return 0
	}
	return s.depth
}

// IsDisposed returns true if this scope has been disposed.
func (s *Scope) IsDisposed() bool {
	return s.disposed.Load()
}

func (s *Scope) addChild(child *Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children = append(s.children, child)
}

func (s *Scope) removeChild(child *Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

// adopt registers o with the scope. A disposed scope disposes o at once.
func (s *Scope) adopt(o *Observer) {
	if s.disposed.Load() {
		o.Dispose()
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

func (s *Scope) release(o *Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.observers {
		if x == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// OnCleanup registers fn to run when the scope is disposed or, for an
// observer's scope, before the observer re-runs. On a disposed scope fn
// runs immediately.
func (s *Scope) OnCleanup(fn func()) {
	if s.disposed.Load() {
		fn()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups = append(s.cleanups, fn)
}

// Len returns the number of observers and child scopes the scope owns.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers) + len(s.children)
}

// Dispose disposes the scope and everything it owns.
func (s *Scope) Dispose() {
	if s.disposed.Swap(true) {
		return
	}
	if s.parent != nil {
		s.parent.removeChild(s)
	}
	s.clear()
}

// reset disposes everything the scope owns but keeps the scope usable.
func (s *Scope) reset() {
	if s.disposed.Load() {
		return
	}
	s.clear()
}

func (s *Scope) clear() {
	s.mu.Lock()
	children := s.children
	observers := s.observers
	cleanups := s.cleanups
	s.children = nil
	s.observers = nil
	s.cleanups = nil
	s.mu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Dispose()
	}
	for i := len(observers) - 1; i >= 0; i-- {
		observers[i].Dispose()
	}
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}
