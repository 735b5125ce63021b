package observ

import "testing"

func TestScopeDisposeOrder(t *testing.T) {
	root := NewScope(nil)
	child := NewScope(root)

	var order []string
	root.OnCleanup(func() { order = append(order, "root-1") })
	root.OnCleanup(func() { order = append(order, "root-2") })
	child.OnCleanup(func() { order = append(order, "child") })

	root.Dispose()
	want := []string{"child", "root-2", "root-1"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
	if !child.IsDisposed() {
		t.Error("child scope should be disposed with its parent")
	}

	ran := false
	root.OnCleanup(func() { ran = true })
	if !ran {
		t.Error("cleanup on a disposed scope should run immediately")
	}
}

func TestScopeChildDetachesOnDispose(t *testing.T) {
	root := NewScope(nil)
	child := NewScope(root)
	if root.Len() != 1 || child.Parent() != root || child.Depth() != 1 {
		t.Fatalf("unexpected hierarchy len=%d depth=%d", root.Len(), child.Depth())
	}
	child.Dispose()
	if root.Len() != 0 {
		t.Errorf("disposed child still attached")
	}
	if root.IsDisposed() {
		t.Error("disposing a child must not dispose the parent")
	}
}

func TestWithScopeOwnsNewObservers(t *testing.T) {
	rt := NewRuntime()
	s := NewScope(nil)

	var o *Observer
	WithScope(s, func() {
		o = rt.NewObserver(func() error { return nil })
	})
	if s.Len() != 1 {
		t.Fatalf("expected the scope to own the observer, len=%d", s.Len())
	}
	s.Dispose()
	if o.State() != Disposed {
		t.Error("observer should be disposed with its scope")
	}
}

func TestObserverOnDisposedScope(t *testing.T) {
	rt := NewRuntime()
	s := NewScope(nil)
	s.Dispose()
	o := rt.NewObserver(func() error { return nil }, OwnedBy(s))
	if o.State() != Disposed {
		t.Error("observer created on a disposed scope should be disposed")
	}
}

func TestOnCleanupInsideObserver(t *testing.T) {
	rt := NewRuntime()
	n := rt.NewNode(map[string]any{"a": 1})

	cleanups := 0
	o := rt.NewObserver(func() error {
		n.Get("a")
		OnCleanup(func() { cleanups++ })
		return nil
	})
	if err := o.Run(); err != nil {
		t.Fatal(err)
	}
	mustSet(t, n.At("a"), 2)
	if cleanups != 1 {
		t.Errorf("expected cleanup before re-run, got %d", cleanups)
	}
	o.Dispose()
	if cleanups != 2 {
		t.Errorf("expected cleanup on dispose, got %d", cleanups)
	}
}
