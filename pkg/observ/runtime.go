package observ

import (
	"container/heap"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Runtime propagates writes to the observers that read them. It owns the
// subscription registry and the pending write set; nodes and observers are
// bound to the runtime that created them.
//
// A single mutex guards the registry bookkeeping and pending state, and
// only one flush runs at a time. Observer functions, cleanups and hooks
// never run while the mutex is held.
type Runtime struct {
	reg     *registry
	logger  *slog.Logger
	hooks   Hooks
	budget  Budget
	adapter atomic.Value // adapterBox

	mu         sync.Mutex
	pending    []*Node
	batchDepth int
	runDepth   int
	flushing   bool
	round      *round

	// sources maps selector output nodes to their staleness check.
	sources map[uint64]func() bool

	flushSeq atomic.Uint64
	runsSeen atomic.Uint64
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger for observer failures and debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(rt *Runtime) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithHooks installs flush and run hooks.
func WithHooks(hooks ...Hooks) Option {
	return func(rt *Runtime) {
		rt.hooks = MultiHooks(append([]Hooks{rt.hooks}, hooks...)...)
	}
}

// WithBudget bounds the work of a single flush.
func WithBudget(b Budget) Option {
	return func(rt *Runtime) {
		rt.budget = b
	}
}

// NewRuntime creates an independent runtime.
func NewRuntime(opts ...Option) *Runtime {
	rt := &Runtime{
		reg:    newRegistry(),
		logger: slog.Default(),
		hooks:  noopHooks{},
		budget: DefaultBudget(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

var defaultRuntime = sync.OnceValue(func() *Runtime { return NewRuntime() })

// Default returns the process-wide runtime used by the package-level
// constructors.
func Default() *Runtime {
	return defaultRuntime()
}

// Logger returns the runtime's logger.
func (rt *Runtime) Logger() *slog.Logger {
	return rt.logger
}

// ReadAdapter lets a host attribute reads made outside any observer run,
// such as reads inside its own render pass, to an observer of its choice.
// Returning nil leaves the read untracked.
type ReadAdapter interface {
	ObserverFor(n *Node, p Path) *Observer
}

// ReadAdapterFunc adapts a function to ReadAdapter.
type ReadAdapterFunc func(n *Node, p Path) *Observer

// ObserverFor implements ReadAdapter.
func (f ReadAdapterFunc) ObserverFor(n *Node, p Path) *Observer {
	return f(n, p)
}

type adapterBox struct{ a ReadAdapter }

// SetReadAdapter installs a. A nil adapter removes the current one.
func (rt *Runtime) SetReadAdapter(a ReadAdapter) {
	rt.adapter.Store(adapterBox{a: a})
}

func (rt *Runtime) readAdapter() ReadAdapter {
	box, _ := rt.adapter.Load().(adapterBox)
	return box.a
}

// track attributes a read of (n, p) to the recording observer, or to the
// read adapter's choice when nothing is recording.
func (rt *Runtime) track(n *Node, p Path, mode subMode) {
	o, untracked := currentObserver()
	if untracked {
		return
	}
	if o == nil {
		a := rt.readAdapter()
		if a == nil {
			return
		}
		if o = a.ObserverFor(n, p); o == nil {
			return
		}
	}
	o.record(n, p, mode)
}

func (rt *Runtime) enterRun() {
	rt.mu.Lock()
	rt.runDepth++
	rt.mu.Unlock()
}

// exitRun flushes writes made during the outermost run.
func (rt *Runtime) exitRun() error {
	rt.mu.Lock()
	rt.runDepth--
	ready := rt.runDepth == 0 && rt.batchDepth == 0 && !rt.flushing && len(rt.pending) > 0
	rt.mu.Unlock()
	if !ready {
		return nil
	}
	return rt.flush()
}

// setSource registers check as the staleness test of the selector whose
// output node is id. A nil check removes it.
func (rt *Runtime) setSource(id uint64, check func() bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if check == nil {
		delete(rt.sources, id)
		return
	}
	if rt.sources == nil {
		rt.sources = make(map[uint64]func() bool)
	}
	rt.sources[id] = check
}

// Flush propagates pending writes now. It is a no-op inside a batch, an
// observer run or another flush; those flush when they end.
func (rt *Runtime) Flush() error {
	return rt.flush()
}

// nodeChange is one node's committed transition.
type nodeChange struct {
	node     *Node
	old, new any
	written  []Path
}

// commit applies every staged root and returns the transitions. Nothing
// is committed while a batch is open; its End flushes instead.
func (rt *Runtime) commit() []nodeChange {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.batchDepth > 0 {
		return nil
	}
	nodes := rt.pending
	rt.pending = nil
	changes := make([]nodeChange, 0, len(nodes))
	for _, n := range nodes {
		n.queued = false
		if !n.hasStaged {
			continue
		}
		changes = append(changes, nodeChange{
			node:    n,
			old:     n.value,
			new:     n.staged,
			written: dedupePaths(n.written),
		})
		n.value = n.staged
		n.staged = nil
		n.hasStaged = false
		n.written = nil
	}
	return changes
}

func dedupePaths(paths []Path) []Path {
	seen := make(map[string]bool, len(paths))
	out := paths[:0:0]
	for _, p := range paths {
		k := p.Key()
		if !seen[k] {
			seen[k] = true
			out = append(out, p)
		}
	}
	return out
}

func (rt *Runtime) flush() error {
	rt.mu.Lock()
	if rt.flushing || rt.batchDepth > 0 || rt.runDepth > 0 || len(rt.pending) == 0 {
		rt.mu.Unlock()
		return nil
	}
	rt.flushing = true
	rt.mu.Unlock()

	stats := FlushStats{ID: rt.flushSeq.Add(1), Started: time.Now()}
	rt.hooks.FlushStarted(stats.ID)

	var errs []error
	var carry []*Observer
	limited := false
	for {
		if limited || rt.budget.exhausted(stats.Rounds, stats.Runs) {
			// Storage is never rolled back; leftover writes land without
			// notifying anyone.
			leftover := rt.commit()
			if !limited && (len(leftover) > 0 || len(carry) > 0) {
				errs = append(errs, errCascade(stats.Rounds))
			}
			for _, o := range carry {
				o.pending.Store(false)
			}
			break
		}

		changes := rt.commit()
		if len(changes) == 0 && len(carry) == 0 {
			break
		}
		stats.Rounds++

		r := newRound(stats.ID, stats.Rounds)
		rt.mu.Lock()
		for _, o := range carry {
			if o.pending.Load() {
				r.enqueue(o)
			}
		}
		rt.mu.Unlock()
		stats.Writes += rt.schedule(r, changes)
		stats.Notified += r.heap.Len()

		if Debug.LogFlushes {
			rt.logger.Debug("flush round",
				"flush", stats.ID,
				"round", stats.Rounds,
				"nodes", len(changes),
				"scheduled", r.heap.Len())
		}

		rt.mu.Lock()
		rt.round = r
		rt.mu.Unlock()

		errs, limited = rt.runRound(r, &stats, errs)

		rt.mu.Lock()
		rt.round = nil
		rt.mu.Unlock()
		carry = r.carry
	}

	rt.mu.Lock()
	rt.flushing = false
	again := len(rt.pending) > 0 && rt.batchDepth == 0 && rt.runDepth == 0
	rt.mu.Unlock()

	err := errors.Join(errs...)
	stats.Duration = time.Since(stats.Started)
	stats.Err = err
	if err != nil {
		rt.logger.Warn("flush finished with errors",
			"flush", stats.ID,
			"rounds", stats.Rounds,
			"error", err)
	}
	rt.hooks.FlushFinished(stats)

	if again {
		// Writes from other goroutines arrived after the last commit.
		err = joinErrors(err, rt.flush())
	}
	return err
}

// schedule enqueues the observers affected by changes and returns the
// number of written paths.
func (rt *Runtime) schedule(r *round, changes []nodeChange) int {
	writes := 0
	for _, c := range changes {
		writes += len(c.written)
		if c.node.disposed.Load() {
			continue
		}

		var changed []Path
		for _, w := range c.written {
			ov, _ := lookup(c.old, w)
			nv, _ := lookup(c.new, w)
			if !valuesEqual(ov, nv) {
				changed = append(changed, w)
			}
		}
		if len(changed) == 0 {
			continue
		}

		for _, cand := range rt.reg.related(c.node.id, changed) {
			ov, _ := lookup(c.old, cand.path)
			nv, _ := lookup(c.new, cand.path)

			// An ancestor of a changed path changed with it; a path at or
			// below a write may have kept its value.
			deep := !cand.below || !valuesEqual(ov, nv)

			rt.mu.Lock()
			for o, mode := range cand.subs {
				notify := mode&modeDeep != 0 && deep
				if !notify && mode&modeShallow != 0 {
					notify = !shapeEqual(ov, nv)
				}
				if notify {
					r.notify(o)
				}
			}
			rt.mu.Unlock()
		}
	}
	return writes
}

// runRound runs scheduled observers in order until the round is empty.
func (rt *Runtime) runRound(r *round, stats *FlushStats, errs []error) ([]error, bool) {
	for {
		rt.mu.Lock()
		if r.heap.Len() == 0 {
			rt.mu.Unlock()
			return errs, false
		}
		o := heap.Pop(&r.heap).(*Observer)
		r.ran[o] = true
		rt.mu.Unlock()

		if o.State() == Disposed || !o.pending.Load() {
			stats.Skipped++
			continue
		}
		if rt.budget.MaxRunsPerFlush > 0 && stats.Runs >= rt.budget.MaxRunsPerFlush {
			o.pending.Store(false)
			rt.mu.Lock()
			for _, rest := range r.heap {
				rest.pending.Store(false)
			}
			r.heap = r.heap[:0]
			r.carry = nil
			rt.mu.Unlock()
			return append(errs, errCascade(stats.Rounds)), true
		}

		stats.Runs++
		rt.runsSeen.Add(1)
		if err := o.execute(r.flush, r.n); err != nil {
			rt.logger.Error("observer failed",
				"observer", o.String(),
				"flush", r.flush,
				"round", r.n,
				"error", err)
			errs = append(errs, err)
		}
	}
}

// publish makes a new value of n visible and notifies n's subscribers.
// During a flush they join the current round, so an observer is not run
// once for a write and again for the derived value. Observers currently
// recording are skipped: they are the ones pulling the value.
func (rt *Runtime) publish(n *Node, value any) error {
	rt.mu.Lock()
	r := rt.round
	if r == nil || n.hasStaged {
		rt.mu.Unlock()
		return n.Set(value)
	}
	n.value = value
	rt.mu.Unlock()

	for _, cand := range rt.reg.related(n.id, []Path{nil}) {
		rt.mu.Lock()
		for o := range cand.subs {
			if o.State() != Recording {
				r.notify(o)
			}
		}
		rt.mu.Unlock()
	}
	return nil
}

// round is one propagation pass of a flush. Guarded by Runtime.mu.
type round struct {
	flush uint64
	n     int
	heap  observerHeap

	queued map[*Observer]bool
	ran    map[*Observer]bool

	// carry holds observers notified after they already ran this round.
	carry []*Observer
}

func newRound(flush uint64, n int) *round {
	return &round{
		flush:  flush,
		n:      n,
		queued: make(map[*Observer]bool),
		ran:    make(map[*Observer]bool),
	}
}

func (r *round) notify(o *Observer) {
	if o.State() == Disposed {
		return
	}
	if r.ran[o] {
		if !o.pending.Swap(true) {
			r.carry = append(r.carry, o)
		}
		return
	}
	o.pending.Store(true)
	r.enqueue(o)
}

func (r *round) enqueue(o *Observer) {
	if r.queued[o] {
		return
	}
	r.queued[o] = true
	heap.Push(&r.heap, o)
}

// observerHeap orders observers: selectors first, then owners before the
// observers they own, then creation order.
type observerHeap []*Observer

func (h observerHeap) Len() int { return len(h) }

func (h observerHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.selector != b.selector {
		return a.selector
	}
	if a.depth != b.depth {
		return a.depth < b.depth
	}
	return a.id < b.id
}

func (h observerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *observerHeap) Push(x any) { *h = append(*h, x.(*Observer)) }

func (h *observerHeap) Pop() any {
	old := *h
	n := len(old)
	o := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return o
}

// Stats is a point-in-time summary of a runtime.
type Stats struct {
	Nodes         int    `json:"nodes"`
	Subscriptions int    `json:"subscriptions"`
	Pending       int    `json:"pending"`
	Flushes       uint64 `json:"flushes"`
	Runs          uint64 `json:"runs"`
	Batching      bool   `json:"batching"`
	Flushing      bool   `json:"flushing"`
}

// Stats returns current counters.
func (rt *Runtime) Stats() Stats {
	nodes, subs := rt.reg.counts()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return Stats{
		Nodes:         nodes,
		Subscriptions: subs,
		Pending:       len(rt.pending),
		Flushes:       rt.flushSeq.Load(),
		Runs:          rt.runsSeen.Load(),
		Batching:      rt.batchDepth > 0,
		Flushing:      rt.flushing,
	}
}

// Graph lists every subscription held by the runtime, ordered by node id
// and path.
func (rt *Runtime) Graph() []NodeSubscribers {
	return rt.reg.snapshot()
}

func joinErrors(a, b error) error {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return errors.Join(a, b)
}
