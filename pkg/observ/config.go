package observ

// DebugConfig controls debugging features for development.
type DebugConfig struct {
	// IncludeSourceLocations records the caller's file:line on usage errors.
	// Default: false (for performance).
	IncludeSourceLocations bool

	// LogFlushes logs every flush round at debug level.
	// Default: false.
	LogFlushes bool

	// LogRuns logs every observer run with timing information.
	// Default: false.
	LogRuns bool
}

// DefaultDebugConfig returns a DebugConfig with all debugging disabled.
func DefaultDebugConfig() DebugConfig {
	return DebugConfig{}
}

// Debug is the global debug configuration.
// Modify this at application startup to enable debugging features.
var Debug = DefaultDebugConfig()
