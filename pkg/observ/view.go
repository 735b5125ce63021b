package observ

// Reader is anything whose current value can be read with tracking.
// Views and selectors implement it; the render primitives accept it.
type Reader interface {
	Read() any
}

// View addresses one path inside a node. It shares the node's storage and
// subscriptions, so n.Get("a.b") and n.At("a").Get("b") are the same read.
// Views are cheap values; create them freely.
type View struct {
	node *Node
	path Path
}

// Node returns the node the view addresses.
func (v *View) Node() *Node {
	return v.node
}

// Path returns the view's path. Callers must not modify it.
func (v *View) Path() Path {
	return v.path
}

// At returns a view of a path relative to v.
func (v *View) At(parts ...any) *View {
	return &View{node: v.node, path: v.resolve(parts)}
}

func (v *View) resolve(parts []any) Path {
	if len(parts) == 0 {
		return v.path
	}
	return v.path.Join(P(parts...))
}

// Get returns the value at the relative path and subscribes the recording
// observer to it. With no parts, Get reads the view's own path.
func (v *View) Get(parts ...any) any {
	return v.node.read(v.resolve(parts), modeDeep, true)
}

// GetShallow reads like Get but only subscribes to changes of the key set
// (map keys, slice length) at the path, not to changes of child values.
func (v *View) GetShallow(parts ...any) any {
	return v.node.read(v.resolve(parts), modeShallow, true)
}

// Peek returns the value without subscribing.
func (v *View) Peek(parts ...any) any {
	return v.node.read(v.resolve(parts), modeDeep, false)
}

// Read implements Reader.
func (v *View) Read() any {
	return v.Get()
}

// Len returns the number of children at the view's path and subscribes
// shallowly, so only insertions and removals notify.
func (v *View) Len() int {
	return Length(v.GetShallow())
}

// Set replaces the value at the view's path. Missing intermediate maps are
// created.
func (v *View) Set(value any) error {
	p := v.path
	return v.node.write(p, func(root any) (any, error) {
		return setIn(root, p, value)
	})
}

// Update replaces the value at the view's path with fn(old).
func (v *View) Update(fn func(old any) any) error {
	p := v.path
	return v.node.write(p, func(root any) (any, error) {
		return modifyIn(root, p, func(old any, _ bool) (any, error) {
			return fn(old), nil
		})
	})
}

// Delete removes the map key or slice element addressed by the view.
// Deleting the root sets the node's value to nil.
func (v *View) Delete() error {
	p := v.path
	return v.node.write(p, func(root any) (any, error) {
		return deleteIn(root, p)
	})
}

// Insert inserts value into the slice at the view's path before index i.
// Elements from i onwards shift up by one.
func (v *View) Insert(i int, value any) error {
	p := v.path
	return v.node.write(p, func(root any) (any, error) {
		return insertIn(root, p, i, value)
	})
}

// Append adds value at the end of the slice at the view's path.
func (v *View) Append(value any) error {
	p := v.path
	return v.node.write(p, func(root any) (any, error) {
		old, _ := lookup(root, p)
		return insertIn(root, p, Length(old), value)
	})
}

// Remove removes element i of the slice at the view's path.
func (v *View) Remove(i int) error {
	p := v.path
	return v.node.write(p, func(root any) (any, error) {
		return removeIn(root, p, i)
	})
}

// String implements fmt.Stringer.
func (v *View) String() string {
	if len(v.path) == 0 {
		return v.node.String()
	}
	return v.node.String() + ":" + v.path.String()
}

// As converts a read value to T, returning the zero value on mismatch.
func As[T any](v any) T {
	t, _ := v.(T)
	return t
}
