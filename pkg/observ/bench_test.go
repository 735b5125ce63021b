package observ

import (
	"strconv"
	"testing"
)

// Benchmarks for the propagation engine.
// Rough targets:
// - untracked Get: < 100 ns
// - Set with 10 observers on the path: < 5 µs
// - Batch of 100 writes to distinct keys: < 100 µs

func subscribeN(b *testing.B, rt *Runtime, v *View, n int) {
	b.Helper()
	for i := 0; i < n; i++ {
		o := rt.NewObserver(func() error {
			v.Get()
			return nil
		})
		if err := o.Run(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGetUntracked(b *testing.B) {
	n := NewRuntime().NewNode(map[string]any{"a": map[string]any{"b": 42}})
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = n.Get("a.b")
	}
}

func BenchmarkGetTracked(b *testing.B) {
	rt := NewRuntime()
	n := rt.NewNode(map[string]any{"a": map[string]any{"b": 42}})
	o := rt.NewObserver(func() error {
		n.Get("a.b")
		return nil
	})
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		o.Run()
	}
}

func BenchmarkPeek(b *testing.B) {
	n := NewRuntime().NewNode(map[string]any{"a": map[string]any{"b": 42}})
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = n.Peek("a.b")
	}
}

func BenchmarkSetNoObservers(b *testing.B) {
	n := NewRuntime().NewNode(map[string]any{"v": 0})
	v := n.At("v")
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		v.Set(i)
	}
}

func BenchmarkSet1Observer(b *testing.B) {
	rt := NewRuntime()
	v := rt.NewNode(map[string]any{"v": 0}).At("v")
	subscribeN(b, rt, v, 1)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		v.Set(i + 1)
	}
}

func BenchmarkSet10Observers(b *testing.B) {
	rt := NewRuntime()
	v := rt.NewNode(map[string]any{"v": 0}).At("v")
	subscribeN(b, rt, v, 10)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		v.Set(i + 1)
	}
}

func BenchmarkSet100Observers(b *testing.B) {
	rt := NewRuntime()
	v := rt.NewNode(map[string]any{"v": 0}).At("v")
	subscribeN(b, rt, v, 100)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		v.Set(i + 1)
	}
}

// One write among many sibling subscriptions should only touch one path.
func BenchmarkSetSibling1000(b *testing.B) {
	rt := NewRuntime()
	keys := make(map[string]any, 1000)
	for i := 0; i < 1000; i++ {
		keys[strconv.Itoa(i)] = 0
	}
	n := rt.NewNode(keys)
	for i := 0; i < 1000; i++ {
		subscribeN(b, rt, n.At(strconv.Itoa(i)), 1)
	}
	v := n.At("500")
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		v.Set(i + 1)
	}
}

func BenchmarkSelectorGetCached(b *testing.B) {
	rt := NewRuntime()
	n := rt.NewNode(map[string]any{"count": 42})
	s := SelectorOn(rt, func() int { return As[int](n.Get("count")) * 2 })
	_ = s.Get()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = s.Get()
	}
}

func BenchmarkSelectorRecompute(b *testing.B) {
	rt := NewRuntime()
	n := rt.NewNode(map[string]any{"count": 0})
	s := SelectorOn(rt, func() int { return As[int](n.Get("count")) * 2 })
	count := n.At("count")
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		count.Set(i + 1)
		_ = s.Get()
	}
}

func BenchmarkSelectorChain3(b *testing.B) {
	rt := NewRuntime()
	n := rt.NewNode(map[string]any{"a": 0})
	s1 := SelectorOn(rt, func() int { return As[int](n.Get("a")) * 2 })
	s2 := SelectorOn(rt, func() int { return s1.Get() * 2 })
	s3 := SelectorOn(rt, func() int { return s2.Get() * 2 })
	a := n.At("a")
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		a.Set(i + 1)
		_ = s3.Get()
	}
}

func benchBatch(b *testing.B, size int) {
	rt := NewRuntime()
	keys := make(map[string]any, size)
	for i := 0; i < size; i++ {
		keys[strconv.Itoa(i)] = 0
	}
	n := rt.NewNode(keys)
	o := rt.NewObserver(func() error {
		n.Get()
		return nil
	})
	if err := o.Run(); err != nil {
		b.Fatal(err)
	}
	views := make([]*View, size)
	for i := range views {
		views[i] = n.At(strconv.Itoa(i))
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		rt.Batch(func() error {
			for j, v := range views {
				v.Set(i*size + j + 1)
			}
			return nil
		})
	}
}

func BenchmarkBatch10Writes(b *testing.B)  { benchBatch(b, 10) }
func BenchmarkBatch100Writes(b *testing.B) { benchBatch(b, 100) }

func BenchmarkObserverCreation(b *testing.B) {
	rt := NewRuntime()
	n := rt.NewNode(map[string]any{"v": 0})
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		o := rt.NewObserver(func() error {
			n.Get("v")
			return nil
		})
		o.Run()
		o.Dispose()
	}
}

func BenchmarkParsePath(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = ParsePath("todos.items.12.title")
	}
}
