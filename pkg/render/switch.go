package render

import (
	"slices"
	"sync"

	"github.com/vango-dev/observ/pkg/observ"
)

// choice is the selected branch key; ok is false for values that are not
// a K at all.
type choice[K comparable] struct {
	key K
	ok  bool
}

// Switch renders one branch of a map, chosen by value equality.
type Switch[K comparable, R any] struct {
	sel   *observ.Selector[choice[K]]
	obs   *observ.Observer
	scope *observ.Scope

	branches map[K]func(*observ.Scope) R
	active   *observ.Scope
	current  choice[K]
	matched  bool
	value    R
	renders  int
	onChange []func(R)
	mu       sync.Mutex
}

// SwitchOn renders the branch whose key equals value's current value. It
// re-runs only when that value changes. A value with no branch renders the
// zero value; partial branch maps are fine.
func SwitchOn[K comparable, R any](value observ.Reader, branches map[K]func(*observ.Scope) R, opts ...Option) *Switch[K, R] {
	c := newConfig(opts)
	sw := &Switch[K, R]{branches: branches}
	sw.scope = observ.NewScope(observ.CurrentScope())

	observ.WithScope(sw.scope, func() {
		sw.sel = observ.SelectorOn(c.rt, func() choice[K] {
			k, ok := value.Read().(K)
			return choice[K]{key: k, ok: ok}
		}, observ.WithEquals(func(a, b choice[K]) bool {
			return a.ok == b.ok && a.key == b.key
		}))
	})
	sw.obs = c.rt.NewObserver(sw.update, append(c.observerOpts(".switch"), observ.OwnedBy(sw.scope))...)
	if err := sw.obs.Run(); err != nil {
		c.rt.Logger().Error("switch render failed", "observer", sw.obs.String(), "error", err)
	}
	return sw
}

func (sw *Switch[K, R]) update() error {
	ch := sw.sel.Get()

	sw.mu.Lock()
	prev := sw.active
	sw.active = nil
	sw.mu.Unlock()
	if prev != nil {
		prev.Dispose()
	}

	var v R
	var s *observ.Scope
	branch, matched := sw.branches[ch.key]
	matched = matched && ch.ok
	if matched {
		s = observ.NewScope(sw.scope)
		observ.WithScope(s, func() {
			observ.Untracked(func() {
				v = branch(s)
			})
		})
	}

	sw.mu.Lock()
	sw.active = s
	sw.current = ch
	sw.matched = matched
	sw.value = v
	sw.renders++
	listeners := slices.Clone(sw.onChange)
	sw.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
	return nil
}

// Current returns the rendered branch, or the zero value when no branch
// matches.
func (sw *Switch[K, R]) Current() R {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.value
}

// Selected returns the key of the rendered branch. ok is false when no
// branch matched.
func (sw *Switch[K, R]) Selected() (key K, ok bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.current.key, sw.matched
}

// Renders returns how many times a branch was selected.
func (sw *Switch[K, R]) Renders() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.renders
}

// OnChange registers fn to receive the value rendered after each change.
func (sw *Switch[K, R]) OnChange(fn func(R)) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.onChange = append(sw.onChange, fn)
}

// Dispose tears down the switch and its active branch.
func (sw *Switch[K, R]) Dispose() {
	sw.scope.Dispose()
}
