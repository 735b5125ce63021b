package render

import (
	"reflect"
	"slices"
	"sync"

	"github.com/vango-dev/observ/pkg/observ"
)

// Branch is a conditionally rendered value created by Show.
type Branch[R any] struct {
	cond  *observ.Selector[bool]
	obs   *observ.Observer
	scope *observ.Scope

	render   func(*observ.Scope) R
	active   *observ.Scope
	value    R
	visible  bool
	renders  int
	onChange []func(R, bool)
	mu       sync.Mutex
}

// Show renders branch while cond reads as truthy. Only flips of the
// truthiness re-run it; the branch itself runs untracked in a fresh scope
// that is disposed when the branch is hidden.
//
// Truthiness: nil, false, numeric zero and "" are false; everything else,
// including empty maps and slices, is true.
func Show[R any](cond observ.Reader, branch func(*observ.Scope) R, opts ...Option) *Branch[R] {
	c := newConfig(opts)
	b := &Branch[R]{render: branch}
	b.scope = observ.NewScope(observ.CurrentScope())

	observ.WithScope(b.scope, func() {
		b.cond = observ.SelectorOn(c.rt, func() bool {
			return truthy(cond.Read())
		})
	})
	b.obs = c.rt.NewObserver(b.update, append(c.observerOpts(".show"), observ.OwnedBy(b.scope))...)
	if err := b.obs.Run(); err != nil {
		c.rt.Logger().Error("show render failed", "observer", b.obs.String(), "error", err)
	}
	return b
}

func (b *Branch[R]) update() error {
	on := b.cond.Get()

	b.mu.Lock()
	prev := b.active
	b.active = nil
	b.mu.Unlock()
	if prev != nil {
		prev.Dispose()
	}

	var v R
	var s *observ.Scope
	if on {
		s = observ.NewScope(b.scope)
		observ.WithScope(s, func() {
			observ.Untracked(func() {
				v = b.render(s)
			})
		})
	}

	b.mu.Lock()
	b.active = s
	b.value = v
	b.visible = on
	b.renders++
	listeners := slices.Clone(b.onChange)
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(v, on)
	}
	return nil
}

// Current returns the rendered branch, or the zero value while hidden.
func (b *Branch[R]) Current() R {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

// Visible reports whether the branch is shown.
func (b *Branch[R]) Visible() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visible
}

// Renders returns how many times the visibility was evaluated.
func (b *Branch[R]) Renders() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.renders
}

// OnChange registers fn to receive the rendered value and visibility
// after every flip.
func (b *Branch[R]) OnChange(fn func(value R, visible bool)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = append(b.onChange, fn)
}

// Dispose tears down the branch and its condition.
func (b *Branch[R]) Dispose() {
	b.scope.Dispose()
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Bool, reflect.String:
		return !rv.IsZero()
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	}
	return true
}
