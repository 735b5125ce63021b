package observ

import (
	"errors"
	"fmt"

	oerrors "github.com/vango-dev/observ/internal/errors"
)

// Sentinel errors. Usage errors returned by the package are *oerrors.Error
// values carrying a code and a detail; they unwrap to these sentinels.
var (
	// ErrNodeDisposed is reported when a disposed node is read or written.
	ErrNodeDisposed = errors.New("observ: node disposed")

	// ErrObserverDisposed is reported when a disposed observer is run.
	ErrObserverDisposed = errors.New("observ: observer disposed")

	// ErrReentrantRun is reported when an observer is run while it is
	// already executing.
	ErrReentrantRun = errors.New("observ: observer already running")

	// ErrNotContainer is reported when a write descends through a scalar.
	ErrNotContainer = errors.New("observ: path does not address a container")

	// ErrIndexOutOfRange is reported by Insert and Remove.
	ErrIndexOutOfRange = errors.New("observ: index out of range")

	// ErrBatchEnded is reported when a batch scope is ended twice.
	ErrBatchEnded = errors.New("observ: batch scope already ended")

	// ErrCascadeLimit is reported when a flush exceeds its budget.
	ErrCascadeLimit = errors.New("observ: cascade limit exceeded")

	// ErrObserverPanic wraps a panic raised by an observer function.
	ErrObserverPanic = errors.New("observ: observer panicked")
)

// usageError builds a coded error wrapping sentinel. When source locations
// are enabled the caller of the public API is recorded.
func usageError(code string, sentinel error, format string, args ...any) *oerrors.Error {
	err := oerrors.New(code).WithDetailf(format, args...).Wrap(sentinel)
	if Debug.IncludeSourceLocations {
		err = err.WithCaller(2)
	}
	return err
}

func errNotContainer(p Path) error {
	return usageError("R004", ErrNotContainer, "write below %q", p.String())
}

func errIndexRange(p Path, i, n int) error {
	return usageError("R005", ErrIndexOutOfRange, "index %d at %q (length %d)", i, p.String(), n)
}

func errNodeDisposed(n *Node, p Path) *oerrors.Error {
	return usageError("R001", ErrNodeDisposed, "node %d at %q", n.id, p.String())
}

func errObserverDisposed(o *Observer) error {
	return usageError("R002", ErrObserverDisposed, "observer %s", o)
}

func errReentrant(o *Observer) error {
	return usageError("R003", ErrReentrantRun, "observer %s", o)
}

func errPanic(o *Observer, r any) error {
	cause := fmt.Errorf("%w: %v", ErrObserverPanic, r)
	if err, ok := r.(error); ok {
		cause = fmt.Errorf("%w: %w", ErrObserverPanic, err)
	}
	return oerrors.New("R021").WithDetailf("observer %s: %v", o, r).Wrap(cause)
}

func errCascade(rounds int) error {
	return oerrors.New("R020").WithDetailf("stopped after %d rounds", rounds).Wrap(ErrCascadeLimit)
}
