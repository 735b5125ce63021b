package observ

import "time"

// Hooks receives flush and run events. Implementations must be safe for
// concurrent use and must not block; they are called synchronously from
// the flushing goroutine.
type Hooks interface {
	FlushStarted(id uint64)
	ObserverRan(stats RunStats)
	FlushFinished(stats FlushStats)
}

// FlushStats summarises one flush.
type FlushStats struct {
	ID uint64 `json:"id"`

	// Rounds counts propagation rounds; writes made by re-run observers
	// start a new round.
	Rounds int `json:"rounds"`

	// Writes counts distinct written paths committed by the flush.
	Writes int `json:"writes"`

	// Notified counts observers scheduled, Runs those actually run.
	// Skipped observers were disposed or already pulled.
	Notified int `json:"notified"`
	Runs     int `json:"runs"`
	Skipped  int `json:"skipped"`

	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// RunStats describes one observer execution.
type RunStats struct {
	Observer uint64        `json:"observer"`
	Name     string        `json:"name,omitempty"`
	Selector bool          `json:"selector,omitempty"`
	Flush    uint64        `json:"flush,omitempty"`
	Round    int           `json:"round,omitempty"`
	Deps     int           `json:"deps"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// HookFuncs adapts optional functions to Hooks.
type HookFuncs struct {
	OnFlushStarted  func(id uint64)
	OnObserverRan   func(RunStats)
	OnFlushFinished func(FlushStats)
}

func (h HookFuncs) FlushStarted(id uint64) {
	if h.OnFlushStarted != nil {
		h.OnFlushStarted(id)
	}
}

func (h HookFuncs) ObserverRan(s RunStats) {
	if h.OnObserverRan != nil {
		h.OnObserverRan(s)
	}
}

func (h HookFuncs) FlushFinished(s FlushStats) {
	if h.OnFlushFinished != nil {
		h.OnFlushFinished(s)
	}
}

// MultiHooks fans events out to every non-nil hook in order.
func MultiHooks(hooks ...Hooks) Hooks {
	out := make(multiHooks, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

type multiHooks []Hooks

func (m multiHooks) FlushStarted(id uint64) {
	for _, h := range m {
		h.FlushStarted(id)
	}
}

func (m multiHooks) ObserverRan(s RunStats) {
	for _, h := range m {
		h.ObserverRan(s)
	}
}

func (m multiHooks) FlushFinished(s FlushStats) {
	for _, h := range m {
		h.FlushFinished(s)
	}
}

type noopHooks struct{}

func (noopHooks) FlushStarted(uint64)       {}
func (noopHooks) ObserverRan(RunStats)      {}
func (noopHooks) FlushFinished(FlushStats) {}
