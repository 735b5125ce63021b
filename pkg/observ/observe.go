package observ

// Cleanup is returned by effect functions and runs before the effect
// re-runs and when it is disposed.
type Cleanup func()

// Observe runs fn inside a new observer on the default runtime and returns
// its first result. fn runs again whenever something it read changes;
// dispose the observer to stop it.
func Observe[T any](fn func() T, opts ...ObserverOption) (T, *Observer, error) {
	return ObserveOn(Default(), fn, opts...)
}

// ObserveOn is Observe on a specific runtime.
func ObserveOn[T any](rt *Runtime, fn func() T, opts ...ObserverOption) (T, *Observer, error) {
	var result T
	o := rt.NewObserver(func() error {
		result = fn()
		return nil
	}, opts...)
	err := o.Run()
	return result, o, err
}

// Effect runs fn now and after every change to what it read. The cleanup
// fn returns runs before the next run and on dispose. A failing first run
// is logged; the observer stays usable.
//
// Example:
//
//	stop := observ.Effect(func() observ.Cleanup {
//	    fmt.Println("count is", count.Get())
//	    return nil
//	})
//	defer stop.Dispose()
func Effect(fn func() Cleanup, opts ...ObserverOption) *Observer {
	return EffectOn(Default(), fn, opts...)
}

// EffectOn is Effect on a specific runtime.
func EffectOn(rt *Runtime, fn func() Cleanup, opts ...ObserverOption) *Observer {
	var o *Observer
	o = rt.NewObserver(func() error {
		if cleanup := fn(); cleanup != nil {
			o.OnCleanup(cleanup)
		}
		return nil
	}, opts...)
	if err := o.Run(); err != nil {
		rt.logger.Error("effect failed", "observer", o.String(), "error", err)
	}
	return o
}

// OnCleanup registers fn with the scope of the running observer, so it
// runs before that observer's next run. Outside any observer fn is not
// registered anywhere and never runs.
func OnCleanup(fn func()) {
	if s := currentScope(); s != nil {
		s.OnCleanup(fn)
	}
}
