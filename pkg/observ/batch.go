package observ

import "sync/atomic"

// Batch groups writes into a single flush on the default runtime.
//
// Example:
//
//	observ.Batch(func() error {
//	    user.At("first").Set("Ada")
//	    user.At("last").Set("Lovelace")
//	    return nil
//	})
//	// Observers of user re-run once, seeing both names.
func Batch(fn func() error) error {
	return Default().Batch(fn)
}

// BeginBatch opens a batch scope on the default runtime.
func BeginBatch() *BatchScope {
	return Default().BeginBatch()
}

// Batch runs fn with writes deferred and flushes once when the outermost
// batch ends. Batches nest.
//
// Writes that succeeded before fn returns an error (or panics) still flush;
// storage is never rolled back. The flush error, if any, is joined with
// fn's error.
func (rt *Runtime) Batch(fn func() error) (err error) {
	b := rt.BeginBatch()
	defer func() {
		err = joinErrors(err, b.End())
	}()
	return fn()
}

// BatchScope is an explicitly delimited batch. Every BeginBatch must be
// paired with exactly one End or Abort.
type BatchScope struct {
	rt    *Runtime
	ended atomic.Bool

	// saved is the pending state at BeginBatch, restored by Abort.
	saved      []stagedState
	savedCount int
}

type stagedState struct {
	node      *Node
	staged    any
	hasStaged bool
	written   int
}

// BeginBatch opens a batch scope. Writes until the matching End are
// staged and flushed together.
func (rt *Runtime) BeginBatch() *BatchScope {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.batchDepth++
	b := &BatchScope{rt: rt, savedCount: len(rt.pending)}
	if len(rt.pending) > 0 {
		b.saved = make([]stagedState, len(rt.pending))
		for i, n := range rt.pending {
			b.saved[i] = stagedState{
				node:      n,
				staged:    n.staged,
				hasStaged: n.hasStaged,
				written:   len(n.written),
			}
		}
	}
	return b
}

// End closes the scope. Closing the outermost scope flushes.
func (b *BatchScope) End() error {
	if b.ended.Swap(true) {
		return usageError("R007", ErrBatchEnded, "End after End or Abort")
	}
	return b.close()
}

// Abort discards every write made since the scope began, including those
// of nested scopes, then closes it. Writes made before BeginBatch are
// kept.
func (b *BatchScope) Abort() {
	if b.ended.Swap(true) {
		return
	}
	rt := b.rt
	rt.mu.Lock()
	for _, n := range rt.pending[b.savedCount:] {
		n.staged = nil
		n.hasStaged = false
		n.written = nil
		n.queued = false
	}
	for _, s := range b.saved {
		s.node.staged = s.staged
		s.node.hasStaged = s.hasStaged
		s.node.written = s.node.written[:s.written]
	}
	rt.pending = rt.pending[:b.savedCount]
	rt.mu.Unlock()

	if err := b.close(); err != nil {
		rt.logger.Warn("flush after abort failed", "error", err)
	}
}

func (b *BatchScope) close() error {
	rt := b.rt
	rt.mu.Lock()
	rt.batchDepth--
	outermost := rt.batchDepth == 0
	rt.mu.Unlock()
	if !outermost {
		return nil
	}
	return rt.flush()
}
