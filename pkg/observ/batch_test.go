package observ

import (
	"errors"
	"testing"
)

func TestBatchCoalescesWrites(t *testing.T) {
	rt := NewRuntime()
	n := rt.NewNode(map[string]any{"a": 0})
	log, _ := watch(t, rt, n.View, "a")

	err := rt.Batch(func() error {
		mustSet(t, n.At("a"), 1)
		mustSet(t, n.At("a"), 2)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if log.count() != 2 {
		t.Fatalf("expected exactly one re-run, got %d", log.count()-1)
	}
	if log.last() != 2 {
		t.Errorf("observer saw %v, want final value 2", log.last())
	}
	for _, v := range log.seen {
		if v == 1 {
			t.Error("observer saw intermediate value 1")
		}
	}
}

func TestBatchAppliesAllWritesBeforeRuns(t *testing.T) {
	rt := NewRuntime()
	n := rt.NewNode(map[string]any{"first": "a", "last": "b"})

	var seen []string
	o := rt.NewObserver(func() error {
		seen = append(seen, n.Get("first").(string)+n.Get("last").(string))
		return nil
	})
	if err := o.Run(); err != nil {
		t.Fatal(err)
	}
	_ = rt.Batch(func() error {
		_ = n.At("first").Set("x")
		_ = n.At("last").Set("y")
		return nil
	})
	if len(seen) != 2 || seen[1] != "xy" {
		t.Errorf("expected [ab xy], got %v", seen)
	}
}

func TestBatchReadsSeeStagedValues(t *testing.T) {
	rt := NewRuntime()
	n := rt.NewNode(map[string]any{"a": 1})
	_ = rt.Batch(func() error {
		mustSet(t, n.At("a"), 5)
		if n.Peek("a") != 5 {
			t.Errorf("read inside batch saw %v", n.Peek("a"))
		}
		return nil
	})
}

func TestNestedBatchFlushesAtOutermostEnd(t *testing.T) {
	rt := NewRuntime()
	n := rt.NewNode(map[string]any{"a": 0})
	log, _ := watch(t, rt, n.View, "a")

	outer := rt.BeginBatch()
	inner := rt.BeginBatch()
	mustSet(t, n.At("a"), 1)
	if err := inner.End(); err != nil {
		t.Fatal(err)
	}
	if log.count() != 1 {
		t.Error("inner End flushed")
	}
	mustSet(t, n.At("a"), 2)
	if err := outer.End(); err != nil {
		t.Fatal(err)
	}
	if log.count() != 2 || log.last() != 2 {
		t.Errorf("expected one re-run with 2, got %d runs, last %v", log.count(), log.last())
	}
}

func TestBatchErrorStillFlushes(t *testing.T) {
	rt := NewRuntime()
	n := rt.NewNode(map[string]any{"a": 0})
	log, _ := watch(t, rt, n.View, "a")
	fail := errors.New("stop")

	err := rt.Batch(func() error {
		mustSet(t, n.At("a"), 1)
		return fail
	})
	if !errors.Is(err, fail) {
		t.Fatalf("expected stop, got %v", err)
	}
	if log.count() != 2 || log.last() != 1 {
		t.Errorf("writes before the error must flush; runs=%d last=%v", log.count(), log.last())
	}
}

func TestBatchPanicStillFlushes(t *testing.T) {
	rt := NewRuntime()
	n := rt.NewNode(map[string]any{"a": 0})
	log, _ := watch(t, rt, n.View, "a")

	func() {
		defer func() { _ = recover() }()
		_ = rt.Batch(func() error {
			mustSet(t, n.At("a"), 1)
			panic("halfway")
		})
	}()
	if log.count() != 2 {
		t.Errorf("expected flush after panic, got %d runs", log.count())
	}
	if rt.Stats().Batching {
		t.Error("batch depth leaked after panic")
	}
}

func TestBatchAbortDiscardsWrites(t *testing.T) {
	rt := NewRuntime()
	n := rt.NewNode(map[string]any{"a": 0, "b": 0})
	log, _ := watch(t, rt, n.View, "a")

	outer := rt.BeginBatch()
	mustSet(t, n.At("b"), 1)

	b := rt.BeginBatch()
	mustSet(t, n.At("a"), 1)
	mustSet(t, n.At("b"), 2)
	b.Abort()

	if n.Peek("a") != 0 || n.Peek("b") != 1 {
		t.Errorf("abort should restore the state at BeginBatch: a=%v b=%v", n.Peek("a"), n.Peek("b"))
	}
	if err := outer.End(); err != nil {
		t.Fatal(err)
	}
	if log.count() != 1 {
		t.Error("aborted write notified")
	}
	if n.Peek("b") != 1 {
		t.Errorf("outer write lost: b=%v", n.Peek("b"))
	}
}

func TestBatchEndTwice(t *testing.T) {
	rt := NewRuntime()
	b := rt.BeginBatch()
	if err := b.End(); err != nil {
		t.Fatal(err)
	}
	if err := b.End(); !errors.Is(err, ErrBatchEnded) {
		t.Errorf("expected ErrBatchEnded, got %v", err)
	}
	b.Abort() // no-op
	if rt.Stats().Batching {
		t.Error("batch depth went negative or leaked")
	}
}

func TestNetNoOpBatchNotifiesNobody(t *testing.T) {
	rt := NewRuntime()
	n := rt.NewNode(map[string]any{"a": 1})
	log, _ := watch(t, rt, n.View, "a")

	_ = rt.Batch(func() error {
		mustSet(t, n.At("a"), 2)
		mustSet(t, n.At("a"), 1)
		return nil
	})
	if log.count() != 1 {
		t.Errorf("net no-op batch re-ran observer")
	}
}

func TestWritesInsideRunFlushAfterRun(t *testing.T) {
	rt := NewRuntime()
	n := rt.NewNode(map[string]any{"in": 1, "out": 0})
	log, _ := watch(t, rt, n.View, "out")

	o := rt.NewObserver(func() error {
		v := n.Get("in").(int)
		before := log.count()
		if err := n.At("out").Set(v * 10); err != nil {
			return err
		}
		if log.count() != before {
			t.Error("write inside a run flushed before the run finished")
		}
		return nil
	})
	if err := o.Run(); err != nil {
		t.Fatal(err)
	}
	if log.last() != 10 {
		t.Errorf("expected 10, got %v", log.last())
	}
	mustSet(t, n.At("in"), 2)
	if log.last() != 20 {
		t.Errorf("cascade: expected 20, got %v", log.last())
	}
}
