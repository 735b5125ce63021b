package observ

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of an Observer.
type State int32

const (
	// Idle observers are waiting for their next run.
	Idle State = iota

	// Recording observers are executing and recording reads.
	Recording

	// Disposed observers are terminal.
	Disposed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Observer is a tracked computation. Every node path read while the
// observer runs becomes a dependency; writes that change one of those
// values schedule the observer to run again in the next flush.
//
// The read-set is replaced on every successful run, so an observer depends
// on exactly what its latest run read. A run that fails (error or panic)
// leaves the observer with no dependencies at all.
type Observer struct {
	id   uint64
	rt   *Runtime
	fn   func() error
	name string

	// owner is the scope that disposes this observer; children owns what
	// fn creates and is emptied before each run.
	owner    *Scope
	children *Scope
	depth    int

	// selector observers run ahead of others in a flush round.
	selector bool

	state   atomic.Int32
	pending atomic.Bool
	runs    atomic.Uint64

	// deps is the committed read-set; next collects reads of the current
	// run and is nil outside Recording.
	deps     map[depKey]dep
	next     map[depKey]dep
	cleanups []func()
	mu       sync.Mutex
}

// ObserverOption configures an Observer.
type ObserverOption interface {
	applyObserver(o *Observer)
}

type observerOptionFunc func(*Observer)

func (f observerOptionFunc) applyObserver(o *Observer) { f(o) }

// Named labels the observer for logs, hooks and the inspector.
func Named(name string) ObserverOption {
	return observerOptionFunc(func(o *Observer) {
		o.name = name
	})
}

// OwnedBy makes s the owner instead of the scope current on the calling
// goroutine.
func OwnedBy(s *Scope) ObserverOption {
	return observerOptionFunc(func(o *Observer) {
		o.owner = s
	})
}

// NewObserver creates an observer on the default runtime. It does not run
// until Run is called.
func NewObserver(fn func() error, opts ...ObserverOption) *Observer {
	return Default().NewObserver(fn, opts...)
}

// NewObserver creates an observer owned by the current scope. It does not
// run until Run is called.
func (rt *Runtime) NewObserver(fn func() error, opts ...ObserverOption) *Observer {
	o := &Observer{
		id:    nextID(),
		rt:    rt,
		fn:    fn,
		owner: currentScope(),
		deps:  make(map[depKey]dep),
	}
	for _, opt := range opts {
		opt.applyObserver(o)
	}
	o.depth = o.owner.Depth()
	o.children = newObserverScope(o.depth + 1)
	if o.owner != nil {
		o.owner.adopt(o)
	}
	return o
}

// ID returns the unique identifier for this observer.
func (o *Observer) ID() uint64 {
	return o.id
}

// Name returns the label set with Named.
func (o *Observer) Name() string {
	return o.name
}

// State returns the current lifecycle state.
func (o *Observer) State() State {
	return State(o.state.Load())
}

// Runs returns how many times the observer has executed.
func (o *Observer) Runs() uint64 {
	return o.runs.Load()
}

// Scope returns the scope that owns what the observer's function creates.
func (o *Observer) Scope() *Scope {
	return o.children
}

// String implements fmt.Stringer.
func (o *Observer) String() string {
	if o.name != "" {
		return fmt.Sprintf("%s#%d", o.name, o.id)
	}
	return fmt.Sprintf("observer#%d", o.id)
}

// Run executes the observer function, replacing its dependencies with the
// reads it makes. Writes made during the run are flushed when the
// outermost run on the runtime returns.
//
// Run returns ErrObserverDisposed for a disposed observer and
// ErrReentrantRun when the observer is already executing; in both cases
// the registry is left untouched.
func (o *Observer) Run() error {
	switch o.State() {
	case Disposed:
		return errObserverDisposed(o)
	case Recording:
		return errReentrant(o)
	}

	rt := o.rt
	rt.enterRun()
	err := o.execute(0, 0)
	if ferr := rt.exitRun(); ferr != nil {
		err = joinErrors(err, ferr)
	}
	return err
}

// execute runs fn once. flush and round identify the flush that scheduled
// the run, zero for direct calls.
func (o *Observer) execute(flush uint64, round int) (err error) {
	if !o.state.CompareAndSwap(int32(Idle), int32(Recording)) {
		if o.State() == Disposed {
			return errObserverDisposed(o)
		}
		return errReentrant(o)
	}
	o.pending.Store(false)
	start := time.Now()

	o.runCleanups()
	o.children.reset()

	o.mu.Lock()
	o.next = make(map[depKey]dep, len(o.deps))
	o.mu.Unlock()

	old := swapTracking(o, o.children, false)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errPanic(o, r)
			}
		}()
		err = o.fn()
	}()
	restoreTracking(old)

	disposed := o.State() == Disposed
	deps := o.commitDeps(err == nil && !disposed)
	o.runs.Add(1)

	if disposed || !o.state.CompareAndSwap(int32(Recording), int32(Idle)) {
		// Disposed while running; finish the teardown Dispose deferred.
		o.teardown()
	}

	if Debug.LogRuns {
		o.rt.logger.Debug("observer ran",
			"observer", o.String(),
			"deps", deps,
			"duration", time.Since(start),
			"error", err)
	}
	o.rt.hooks.ObserverRan(RunStats{
		Observer: o.id,
		Name:     o.name,
		Selector: o.selector,
		Flush:    flush,
		Round:    round,
		Deps:     deps,
		Duration: time.Since(start),
		Err:      err,
	})
	return err
}

// commitDeps installs the read-set of the finished run and updates the
// registry with the difference. When keep is false every dependency is
// dropped. It returns the number of dependencies kept.
func (o *Observer) commitDeps(keep bool) int {
	o.mu.Lock()
	next := o.next
	o.next = nil
	if !keep || next == nil {
		next = make(map[depKey]dep)
	}
	prev := o.deps
	o.deps = next
	o.mu.Unlock()

	for k, d := range prev {
		if nd, ok := next[k]; !ok || nd.mode != d.mode {
			k.reg.unsubscribe(k.node, d.path, o)
		}
	}
	for k, d := range next {
		if pd, ok := prev[k]; !ok || pd.mode != d.mode {
			k.reg.subscribe(k.node, d.path, o, d.mode)
		}
	}
	return len(next)
}

// record adds a dependency on (n, p). During a run it goes into the
// pending read-set; otherwise, as with WithObserver, it subscribes at once.
func (o *Observer) record(n *Node, p Path, mode subMode) {
	k := depKey{reg: n.rt.reg, node: n.id, path: p.Key()}

	o.mu.Lock()
	if o.State() == Disposed {
		o.mu.Unlock()
		return
	}
	if o.next != nil {
		d := o.next[k]
		if d.path == nil {
			d.path = append(Path{}, p...)
		}
		d.mode |= mode
		o.next[k] = d
		o.mu.Unlock()
		return
	}
	d, ok := o.deps[k]
	if ok && d.mode|mode == d.mode {
		o.mu.Unlock()
		return
	}
	if !ok {
		d.path = append(Path{}, p...)
	}
	d.mode |= mode
	o.deps[k] = d
	o.mu.Unlock()

	k.reg.subscribe(k.node, d.path, o, mode)
}

// Rebase moves every dependency on n under the path from to the same
// relative location under to, without running the observer. Keyed lists
// use it when an item moves to a new index.
func (o *Observer) Rebase(n *Node, from, to Path) {
	if from.Equal(to) {
		return
	}
	reg := n.rt.reg

	o.mu.Lock()
	type move struct {
		oldKey depKey
		old    dep
		newKey depKey
		moved  dep
	}
	var moves []move
	for k, d := range o.deps {
		if k.reg != reg || k.node != n.id || !d.path.HasPrefix(from) {
			continue
		}
		np := to.Join(d.path[len(from):])
		moves = append(moves, move{
			oldKey: k,
			old:    d,
			newKey: depKey{reg: reg, node: n.id, path: np.Key()},
			moved:  dep{path: np, mode: d.mode},
		})
	}
	for _, m := range moves {
		delete(o.deps, m.oldKey)
	}
	for _, m := range moves {
		d := o.deps[m.newKey]
		d.path = m.moved.path
		d.mode |= m.moved.mode
		o.deps[m.newKey] = d
	}
	if o.next != nil {
		rebased := make(map[depKey]dep, len(o.next))
		for k, d := range o.next {
			if k.reg == reg && k.node == n.id && d.path.HasPrefix(from) {
				d.path = to.Join(d.path[len(from):])
				k.path = d.path.Key()
			}
			rebased[k] = d
		}
		o.next = rebased
	}
	o.mu.Unlock()

	for _, m := range moves {
		reg.unsubscribe(n.id, m.old.path, o)
	}
	for _, m := range moves {
		reg.subscribe(n.id, m.moved.path, o, m.moved.mode)
	}
}

// OnCleanup registers fn to run before the next run and on dispose.
// On a disposed observer fn runs immediately.
func (o *Observer) OnCleanup(fn func()) {
	if o.State() == Disposed {
		fn()
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cleanups = append(o.cleanups, fn)
}

func (o *Observer) runCleanups() {
	o.mu.Lock()
	cleanups := o.cleanups
	o.cleanups = nil
	o.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

// Dependency describes one subscription of an observer.
type Dependency struct {
	Node    uint64 `json:"node"`
	Path    string `json:"path"`
	Shallow bool   `json:"shallow,omitempty"`
}

// Deps lists the observer's committed dependencies, sorted by node and
// path.
func (o *Observer) Deps() []Dependency {
	o.mu.Lock()
	out := make([]Dependency, 0, len(o.deps))
	for k, d := range o.deps {
		out = append(out, Dependency{
			Node:    k.node,
			Path:    d.path.String(),
			Shallow: d.mode&modeDeep == 0,
		})
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Node != out[j].Node {
			return out[i].Node < out[j].Node
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// readsStaged reports whether o depends on writes that have not been
// flushed: a staged write at a path related to one of its dependencies, or
// a selector output whose selector is itself out of date.
func (o *Observer) readsStaged() bool {
	rt := o.rt
	rt.mu.Lock()
	none := len(rt.pending) == 0
	rt.mu.Unlock()
	if none {
		return false
	}

	o.mu.Lock()
	byNode := make(map[uint64][]Path, len(o.deps))
	for k, d := range o.deps {
		if k.reg == rt.reg {
			byNode[k.node] = append(byNode[k.node], d.path)
		}
	}
	o.mu.Unlock()
	if len(byNode) == 0 {
		return false
	}

	var checks []func() bool
	rt.mu.Lock()
	for _, n := range rt.pending {
		paths, ok := byNode[n.id]
		if !ok || !n.hasStaged {
			continue
		}
		for _, w := range n.written {
			for _, p := range paths {
				if p.Related(w) {
					rt.mu.Unlock()
					return true
				}
			}
		}
	}
	for id := range byNode {
		if check := rt.sources[id]; check != nil {
			checks = append(checks, check)
		}
	}
	rt.mu.Unlock()

	for _, check := range checks {
		if check() {
			return true
		}
	}
	return false
}

// Cancel drops a run a flush has scheduled but not started. Keyed lists
// use it when an item moved without changing.
func (o *Observer) Cancel() {
	o.pending.Store(false)
}

// IsPending reports whether a flush has scheduled the observer and it has
// not run yet.
func (o *Observer) IsPending() bool {
	return o.pending.Load()
}

// Dispose stops the observer for good: its subscriptions are removed, its
// cleanups run and a scheduled run is cancelled. Disposing an observer
// from inside its own function takes effect when the function returns.
func (o *Observer) Dispose() {
	prev := State(o.state.Swap(int32(Disposed)))
	if prev == Disposed {
		return
	}
	o.pending.Store(false)
	if prev == Recording {
		return
	}
	o.teardown()
}

func (o *Observer) teardown() {
	o.pending.Store(false)
	o.children.Dispose()
	o.runCleanups()

	o.mu.Lock()
	deps := o.deps
	o.deps = make(map[depKey]dep)
	o.next = nil
	o.mu.Unlock()

	for k, d := range deps {
		k.reg.unsubscribe(k.node, d.path, o)
	}
	if o.owner != nil {
		o.owner.release(o)
	}
}
