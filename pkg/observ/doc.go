// Package observ is a fine-grained reactive state engine.
//
// Values live in nodes and are addressed by paths. Reading a path while an
// observer runs subscribes that observer to exactly that path; writing a
// path re-runs only the observers whose value at their path changed.
//
// # Core Types
//
// Node is an observable value container of any shape:
//
//	todos := NewNode(map[string]any{"items": []any{}})
//	todos.At("items").Append(map[string]any{"title": "ship it"})
//	title := todos.Get("items.0.title") // tracked read
//	todos.At("items", 0, "title").Set("ship it today")
//
// Observer is a tracked computation. Observe and Effect create and run
// one in a single call:
//
//	_, o, _ := Observe(func() any {
//	    return todos.Get("items.0.title")
//	})
//	defer o.Dispose()
//
// Selector[T] memoizes a computation and notifies its readers only when
// the result changes:
//
//	count := NewSelector(func() int { return todos.At("items").Len() })
//
// # Batching
//
// Writes inside Batch are applied together and flushed once. Observers
// always see the state after every write of the batch:
//
//	Batch(func() error {
//	    todos.At("filter").Set("done")
//	    todos.At("page").Set(0)
//	    return nil
//	})
//
// # Thread Safety
//
// Nodes, observers and runtimes can be used from multiple goroutines.
// Read tracking is per-goroutine: reads made on a goroutine spawned by an
// observer are not attributed to it unless wrapped in WithObserver. Only
// one flush runs at a time per runtime.
package observ
