package observ

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// Node is an observable value container. It wraps a value of any shape and
// tracks readers and writers of every path inside it. The embedded root
// View gives the node the full read/write API:
//
//	todos := observ.NewNode(map[string]any{"items": []any{}})
//	todos.At("items").Append(map[string]any{"id": 1, "title": "write spec"})
//	title := todos.Get("items.0.title") // tracked read
//
// A node's identity is stable across value replacement; Set on the root
// replaces the value, never the node.
type Node struct {
	*View

	id   uint64
	rt   *Runtime
	name string

	// value is the committed value; staged holds writes not yet flushed.
	// Both are guarded by rt.mu.
	value     any
	staged    any
	hasStaged bool

	// written lists the paths written since the last flush (rt.mu).
	written []Path
	queued  bool

	disposed atomic.Bool
}

// NewNode creates a node on the default runtime.
func NewNode(initial any) *Node {
	return Default().NewNode(initial)
}

// NewNode creates a node owned by rt.
func (rt *Runtime) NewNode(initial any) *Node {
	n := &Node{
		id:    nextID(),
		rt:    rt,
		value: initial,
	}
	n.View = &View{node: n}

	// The registry refers to nodes by id only; drop the id's subscriptions
	// once the node itself is collected.
	reg := rt.reg
	runtime.AddCleanup(n, func(id uint64) { reg.forgetNode(id) }, n.id)
	return n
}

// ID returns the unique identifier for this node.
func (n *Node) ID() uint64 {
	return n.id
}

// Runtime returns the runtime that propagates this node's writes.
func (n *Node) Runtime() *Runtime {
	return n.rt
}

// WithName labels the node for logs and the inspector.
func (n *Node) WithName(name string) *Node {
	n.name = name
	return n
}

// Name returns the label set by WithName.
func (n *Node) Name() string {
	return n.name
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n.name != "" {
		return fmt.Sprintf("%s#%d", n.name, n.id)
	}
	return fmt.Sprintf("node#%d", n.id)
}

// Dispose removes every subscription on the node. Observers that depended
// on it stay alive; they simply stop hearing about this node. Reading or
// writing the node afterwards is a usage error.
func (n *Node) Dispose() {
	if n.disposed.Swap(true) {
		return
	}
	n.rt.reg.forgetNode(n.id)
}

// IsDisposed reports whether Dispose was called.
func (n *Node) IsDisposed() bool {
	return n.disposed.Load()
}

// current returns the value reads should see: staged writes first.
func (n *Node) current() any {
	n.rt.mu.Lock()
	defer n.rt.mu.Unlock()
	if n.hasStaged {
		return n.staged
	}
	return n.value
}

// read returns the value at p and records the dependency when asked to.
func (n *Node) read(p Path, mode subMode, track bool) any {
	if n.disposed.Load() {
		panic(errNodeDisposed(n, p))
	}
	v, _ := lookup(n.current(), p)
	if track {
		n.rt.track(n, p, mode)
	}
	return v
}

// write applies op to the latest value and queues the written path for
// propagation. Outside any batch, run or flush the write flushes at once.
func (n *Node) write(p Path, op func(root any) (any, error)) error {
	if n.disposed.Load() {
		return errNodeDisposed(n, p)
	}

	rt := n.rt
	rt.mu.Lock()
	base := n.value
	if n.hasStaged {
		base = n.staged
	}
	next, err := op(base)
	if err != nil {
		rt.mu.Unlock()
		return err
	}
	n.staged = next
	n.hasStaged = true
	n.written = append(n.written, append(Path(nil), p...))
	if !n.queued {
		n.queued = true
		rt.pending = append(rt.pending, n)
	}
	deferred := rt.batchDepth > 0 || rt.runDepth > 0 || rt.flushing
	rt.mu.Unlock()

	if deferred {
		return nil
	}
	return rt.flush()
}
