package observ

import (
	"runtime"
	"sync"
)

// trackingContext holds the reactive state for a goroutine.
// Each goroutine records into its own context, so an observer running on
// one goroutine never captures reads made on another.
type trackingContext struct {
	// observer is the Observer currently recording reads.
	// nil means reads are not attributed to anything.
	observer *Observer

	// scope owns observers and cleanups created during the current run.
	scope *Scope

	// untracked suppresses recording and the read adapter.
	untracked bool
}

// trackingContexts stores per-goroutine tracking contexts.
var trackingContexts sync.Map

// getGoroutineID returns a unique identifier for the current goroutine.
// This uses the runtime stack to extract the goroutine ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	// The stack starts with "goroutine <id> "
	var id uint64
	for i := 10; i < n; i++ {
		if buf[i] == ' ' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

// getTrackingContext returns the tracking context for the current goroutine,
// creating it on first use.
func getTrackingContext() *trackingContext {
	gid := getGoroutineID()
	if ctx, ok := trackingContexts.Load(gid); ok {
		return ctx.(*trackingContext)
	}
	ctx := &trackingContext{}
	trackingContexts.Store(gid, ctx)
	return ctx
}

// swapTracking installs observer and scope as the current recording state
// and returns the previous state so it can be restored.
func swapTracking(o *Observer, s *Scope, untracked bool) trackingContext {
	ctx := getTrackingContext()
	old := *ctx
	ctx.observer = o
	ctx.scope = s
	ctx.untracked = untracked
	return old
}

// restoreTracking puts back a state returned by swapTracking.
func restoreTracking(old trackingContext) {
	ctx := getTrackingContext()
	*ctx = old
	if old == (trackingContext{}) {
		cleanupGoroutineContext()
	}
}

// currentObserver returns the observer recording on this goroutine.
func currentObserver() (*Observer, bool) {
	ctx := getTrackingContext()
	return ctx.observer, ctx.untracked
}

// currentScope returns the scope owning new observers on this goroutine.
func currentScope() *Scope {
	return getTrackingContext().scope
}

// CurrentScope returns the scope that owns observers created on this
// goroutine right now: the running observer's scope, the scope installed
// by WithScope, or nil.
func CurrentScope() *Scope {
	return currentScope()
}

// cleanupGoroutineContext removes the tracking context for the current
// goroutine once it holds no state.
func cleanupGoroutineContext() {
	trackingContexts.Delete(getGoroutineID())
}

// WithObserver runs fn with o recording reads. Reads made by fn are
// attributed to o in addition to whatever o records during its own runs,
// which lets a host attribute reads to an outer observer explicitly.
func WithObserver(o *Observer, fn func()) {
	old := swapTracking(o, currentScope(), false)
	defer restoreTracking(old)
	fn()
}

// Untracked runs fn without recording reads as dependencies.
//
// Example:
//
//	Untracked(func() {
//	    // Reading count here won't subscribe the current observer
//	    fmt.Println("Current value:", count.Get())
//	})
//
// For single reads, Peek is clearer in intent.
func Untracked(fn func()) {
	old := swapTracking(nil, currentScope(), true)
	defer restoreTracking(old)
	fn()
}

// WithScope runs fn with s owning the observers fn creates.
func WithScope(s *Scope, fn func()) {
	ctx := getTrackingContext()
	old := swapTracking(ctx.observer, s, ctx.untracked)
	defer restoreTracking(old)
	fn()
}
