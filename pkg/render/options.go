package render

import "github.com/vango-dev/observ/pkg/observ"

// Option configures a render primitive.
type Option func(*config)

type config struct {
	rt        *observ.Runtime
	name      string
	optimized bool
}

func newConfig(opts []Option) config {
	c := config{rt: observ.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// On binds the primitive to rt instead of the default runtime.
func On(rt *observ.Runtime) Option {
	return func(c *config) {
		if rt != nil {
			c.rt = rt
		}
	}
}

// Named labels the primitive's observers.
func Named(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// Optimized makes a keyed list observe only the sequence length and the
// item keys. Content changes then reach item producers directly and never
// re-run the list diff.
func Optimized(on bool) Option {
	return func(c *config) {
		c.optimized = on
	}
}

func (c config) observerOpts(suffix string) []observ.ObserverOption {
	if c.name == "" {
		return nil
	}
	return []observ.ObserverOption{observ.Named(c.name + suffix)}
}
