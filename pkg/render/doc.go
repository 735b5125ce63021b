// Package render provides fine-grained render primitives built on observ.
//
// Each primitive is an observer with a narrow job, so the code that
// creates it does not have to subscribe to anything:
//
//   - Leaf memoizes a single rendered value and re-renders only when
//     what it read changes.
//   - Show renders a branch while a condition is truthy and re-runs only
//     when the truthiness flips.
//   - SwitchOn selects one branch of a map by value equality.
//   - ForEach renders a keyed list, turning sequence changes into a
//     minimal EditScript and re-rendering only items whose content changed.
//
// # Basic Usage
//
//	todos := observ.NewNode(map[string]any{"items": []any{}})
//	list := render.ForEach(todos.At("items"), render.KeyField("id"),
//	    func(item *observ.View, _ *observ.Scope) string {
//	        return observ.As[string](item.Get("title"))
//	    })
//	list.OnEdit(func(s render.EditScript) { fmt.Println(s) })
//
// Render results are plain values of any type R; the host decides what a
// rendered value is (a string, a DOM handle, a widget).
package render
