// Package errors provides coded, formatted errors for observ.
//
// Usage errors raised by the reactive core (touching a disposed node,
// re-entering a running observer, duplicate keys in a keyed list) are built
// from a registered code so that tooling can render them consistently:
//
//	err := errors.New("R001").
//	    WithDetail(`node 12 read at "todos.3.title"`).
//	    Wrap(observ.ErrNodeDisposed)
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR R001: Node disposed
//	//
//	//   node 12 read at "todos.3.title"
//	//
//	//   Hint: Stop reading from a node after calling Dispose.
//
// Codes are grouped by category:
//   - usage: programming errors reported synchronously by the core
//   - runtime: propagation failures (cascade limits, observer panics)
//   - config: configuration file errors
//   - cli: command line errors
//
// Every *Error unwraps to the sentinel it wraps, so callers can keep using
// the standard library's errors.Is and errors.As.
package errors
