package observ

// DefaultMaxRounds bounds the propagation rounds of one flush.
const DefaultMaxRounds = 100

// Budget limits cascading work within a flush. Observers that write to
// nodes they depend on can otherwise loop forever.
type Budget struct {
	// MaxRounds is the number of propagation rounds a flush may run.
	// Writes still pending when it is exhausted are committed without
	// notifying anyone and the flush reports ErrCascadeLimit.
	// Zero means DefaultMaxRounds.
	MaxRounds int

	// MaxRunsPerFlush caps observer executions per flush. Zero means no
	// limit. Exceeding it ends the flush like MaxRounds does.
	MaxRunsPerFlush int
}

// DefaultBudget returns the budget used when none is configured.
func DefaultBudget() Budget {
	return Budget{MaxRounds: DefaultMaxRounds}
}

func (b Budget) maxRounds() int {
	if b.MaxRounds <= 0 {
		return DefaultMaxRounds
	}
	return b.MaxRounds
}

// exhausted reports whether another round may not start.
func (b Budget) exhausted(rounds, runs int) bool {
	if rounds >= b.maxRounds() {
		return true
	}
	return b.MaxRunsPerFlush > 0 && runs >= b.MaxRunsPerFlush
}
