package render

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	oerrors "github.com/vango-dev/observ/internal/errors"
	"github.com/vango-dev/observ/pkg/observ"
)

// ErrDuplicateKey is reported when two items of a keyed list share a key.
var ErrDuplicateKey = errors.New("render: duplicate key in keyed list")

// Key derives the stable key of a list item.
type Key struct {
	// field is set for KeyField so optimized lists can track just the key.
	field observ.Path
	fn    func(item any, index int) string
}

// KeyField keys items by the value at a field path, such as "id".
func KeyField(name string) Key {
	p := observ.ParsePath(name)
	return Key{
		field: p,
		fn: func(item any, _ int) string {
			v, _ := observ.Lookup(item, p)
			return fmt.Sprint(v)
		},
	}
}

// KeyBy keys items with fn.
func KeyBy(fn func(item any, index int) string) Key {
	return Key{fn: fn}
}

// KeyIdentity keys items by identity: reference types by address, other
// values by type and value.
var KeyIdentity = Key{fn: identityKey}

func identityKey(item any, _ int) string {
	rv := reflect.ValueOf(item)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return fmt.Sprintf("%T@%x", item, rv.Pointer())
	}
	return fmt.Sprintf("%T:%v", item, item)
}

// List is a keyed list created by ForEach.
type List[R any] struct {
	seq  *observ.View
	key  Key
	item func(*observ.View, *observ.Scope) R
	cfg  config

	// scope owns the list observer and, through items, every item.
	scope *observ.Scope
	items *observ.Scope
	obs   *observ.Observer

	slots  []*slot[R]
	err    error
	onEdit []func(EditScript)
	mu     sync.Mutex
}

type slot[R any] struct {
	key     string
	index   int
	raw     any
	view    *observ.View
	scope   *observ.Scope
	obs     *observ.Observer
	value   R
	renders int
}

// ForEach renders every item of the sequence at seq with item, keyed by
// key. When the sequence changes the list computes an EditScript: removed
// items are disposed, new ones rendered, and moved items follow their new
// index without re-rendering unless their content changed too. Each item
// renders in its own observer, so editing one item re-renders only that
// item.
//
// If two items share a key the update is rejected: the list keeps its
// previous items and Err reports ErrDuplicateKey until a later update
// succeeds.
func ForEach[R any](seq *observ.View, key Key, item func(*observ.View, *observ.Scope) R, opts ...Option) *List[R] {
	c := newConfig(append(opts, On(seq.Node().Runtime())))
	l := &List[R]{seq: seq, key: key, item: item, cfg: c}
	l.scope = observ.NewScope(observ.CurrentScope())
	l.items = observ.NewScope(l.scope)
	l.obs = c.rt.NewObserver(l.reconcile, append(c.observerOpts(".list"), observ.OwnedBy(l.scope))...)
	if err := l.obs.Run(); err != nil {
		c.rt.Logger().Error("list render failed", "observer", l.obs.String(), "error", err)
	}
	return l
}

// read returns the items and their keys, tracking as configured.
func (l *List[R]) read() ([]any, []string) {
	var items []any
	if l.cfg.optimized {
		n := l.seq.Len()
		items = make([]any, n)
		for i := 0; i < n; i++ {
			if l.key.field != nil {
				l.seq.Get(i, l.key.field)
				items[i] = l.seq.Peek(i)
			} else {
				items[i] = l.seq.Get(i)
			}
		}
	} else {
		all := l.seq.Get()
		n := observ.Length(all)
		items = make([]any, n)
		for i := 0; i < n; i++ {
			items[i], _ = observ.Lookup(all, observ.P(i))
		}
	}

	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = l.key.fn(it, i)
	}
	return items, keys
}

func (l *List[R]) reconcile() error {
	items, keys := l.read()

	if dup, ok := duplicateKey(keys); ok {
		err := oerrors.New("R006").
			WithDetailf("key %q at %s", dup, l.seq).
			Wrap(ErrDuplicateKey)
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		l.cfg.rt.Logger().Warn("keyed list update rejected",
			"list", l.obs.String(),
			"key", dup)
		return nil
	}

	l.mu.Lock()
	old := l.slots
	l.err = nil
	l.mu.Unlock()

	oldKeys := make([]string, len(old))
	byKey := make(map[string]*slot[R], len(old))
	for i, s := range old {
		oldKeys[i] = s.key
		byKey[s.key] = s
	}
	script := Diff(oldKeys, keys)

	for _, e := range script {
		if e.Op == EditRemove {
			byKey[e.Key].scope.Dispose()
			delete(byKey, e.Key)
		}
	}

	node := l.seq.Node()
	next := make([]*slot[R], len(keys))
	for i, k := range keys {
		s, ok := byKey[k]
		if !ok {
			next[i] = l.newSlot(k, i, items[i])
			continue
		}
		next[i] = s

		if s.index == i {
			// Content changes at an unchanged index reach the item
			// observer through its own subscriptions.
			s.raw = items[i]
			continue
		}

		from := l.seq.Path().Child(observ.Index(s.index))
		to := l.seq.Path().Child(observ.Index(i))
		s.obs.Rebase(node, from, to)
		l.mu.Lock()
		s.index = i
		s.view = l.seq.At(i)
		l.mu.Unlock()

		if observ.Equal(s.raw, items[i]) {
			s.obs.Cancel()
			continue
		}
		s.raw = items[i]
		if err := s.obs.Run(); err != nil {
			l.cfg.rt.Logger().Error("list item render failed", "key", k, "error", err)
		}
	}

	l.mu.Lock()
	l.slots = next
	listeners := slices.Clone(l.onEdit)
	l.mu.Unlock()

	if len(script) > 0 {
		for _, fn := range listeners {
			fn(script)
		}
	}
	return nil
}

func (l *List[R]) newSlot(key string, index int, raw any) *slot[R] {
	s := &slot[R]{
		key:   key,
		index: index,
		raw:   raw,
		view:  l.seq.At(index),
		scope: observ.NewScope(l.items),
	}
	opts := append(l.cfg.observerOpts(".item"), observ.OwnedBy(s.scope))
	s.obs = l.cfg.rt.NewObserver(func() error {
		l.mu.Lock()
		view := s.view
		l.mu.Unlock()

		v := l.item(view, s.obs.Scope())

		l.mu.Lock()
		s.value = v
		s.renders++
		l.mu.Unlock()
		return nil
	}, opts...)
	if err := s.obs.Run(); err != nil {
		l.cfg.rt.Logger().Error("list item render failed", "key", key, "error", err)
	}
	return s
}

// Items returns the rendered items in sequence order.
func (l *List[R]) Items() []R {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]R, len(l.slots))
	for i, s := range l.slots {
		out[i] = s.value
	}
	return out
}

// Keys returns the item keys in sequence order.
func (l *List[R]) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.slots))
	for i, s := range l.slots {
		out[i] = s.key
	}
	return out
}

// Len returns the number of rendered items.
func (l *List[R]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// Renders returns how many times the item with key was rendered, or 0 if
// no such item is shown.
func (l *List[R]) Renders(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.slots {
		if s.key == key {
			return s.renders
		}
	}
	return 0
}

// Err returns the error of the last rejected update, or nil.
func (l *List[R]) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// OnEdit registers fn to receive every later non-empty edit script.
func (l *List[R]) OnEdit(fn func(EditScript)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onEdit = append(l.onEdit, fn)
}

// Dispose tears down the list and every item.
func (l *List[R]) Dispose() {
	l.scope.Dispose()
}
