package render

import (
	"slices"
	"sync"

	"github.com/vango-dev/observ/pkg/observ"
)

// Leaf memoizes one rendered value. Its function re-runs when anything it
// read changes; listeners hear about the new value only when it differs
// from the previous one.
type Leaf[R any] struct {
	obs *observ.Observer

	fn       func() R
	value    R
	renders  int
	onChange []func(R)
	mu       sync.Mutex
}

// NewLeaf renders fn immediately and keeps it up to date.
func NewLeaf[R any](fn func() R, opts ...Option) *Leaf[R] {
	c := newConfig(opts)
	l := &Leaf[R]{fn: fn}
	first := true
	l.obs = c.rt.NewObserver(func() error {
		v := l.fn()

		l.mu.Lock()
		l.renders++
		changed := first || !observ.Equal(any(l.value), any(v))
		first = false
		l.value = v
		listeners := slices.Clone(l.onChange)
		l.mu.Unlock()

		if changed {
			for _, fn := range listeners {
				fn(v)
			}
		}
		return nil
	}, c.observerOpts(".leaf")...)
	if err := l.obs.Run(); err != nil {
		c.rt.Logger().Error("leaf render failed", "observer", l.obs.String(), "error", err)
	}
	return l
}

// Current returns the latest rendered value.
func (l *Leaf[R]) Current() R {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// Renders returns how many times the leaf function ran.
func (l *Leaf[R]) Renders() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.renders
}

// OnChange registers fn to receive every changed value.
func (l *Leaf[R]) OnChange(fn func(R)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Observer returns the observer behind the leaf.
func (l *Leaf[R]) Observer() *observ.Observer {
	return l.obs
}

// Dispose stops the leaf.
func (l *Leaf[R]) Dispose() {
	l.obs.Dispose()
}
