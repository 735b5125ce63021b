package errors

// Template defines a registered error type.
type Template struct {
	Category   Category
	Message    string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// ============================================
	// Usage Errors (R001-R019)
	// ============================================

	"R001": {
		Category:   CategoryUsage,
		Message:    "Node disposed",
		Suggestion: "Stop reading from or writing to a node after calling Dispose.",
	},
	"R002": {
		Category:   CategoryUsage,
		Message:    "Observer disposed",
		Suggestion: "Create a new observer instead of running a disposed one.",
	},
	"R003": {
		Category:   CategoryUsage,
		Message:    "Re-entrant observer run",
		Suggestion: "An observer cannot run itself, directly or through a selector cycle.",
	},
	"R004": {
		Category:   CategoryUsage,
		Message:    "Path does not address a container",
		Suggestion: "Writes below a scalar are not possible; replace the parent value instead.",
	},
	"R005": {
		Category:   CategoryUsage,
		Message:    "Index out of range",
		Suggestion: "Insert accepts 0..len, Remove accepts 0..len-1.",
	},
	"R006": {
		Category:   CategoryUsage,
		Message:    "Duplicate key in keyed list",
		Suggestion: "Every item of a keyed list needs a distinct key.",
	},
	"R007": {
		Category:   CategoryUsage,
		Message:    "Batch scope already ended",
		Suggestion: "Call End or Abort exactly once per BeginBatch.",
	},

	// ============================================
	// Runtime Errors (R020-R039)
	// ============================================

	"R020": {
		Category:   CategoryRuntime,
		Message:    "Cascade limit exceeded",
		Suggestion: "An observer keeps writing values it depends on; break the cycle or raise the budget.",
	},
	"R021": {
		Category:   CategoryRuntime,
		Message:    "Observer panicked",
		Suggestion: "Return an error from the observer function instead of panicking.",
	},

	// ============================================
	// Config Errors (R060-R079)
	// ============================================

	"R060": {
		Category:   CategoryConfig,
		Message:    "Configuration file not found",
		Suggestion: "Create observ.json or observ.yaml, or pass --config.",
	},
	"R061": {
		Category:   CategoryConfig,
		Message:    "Invalid configuration",
		Suggestion: "Check the file against the documented keys.",
	},

	// ============================================
	// CLI Errors (R080-R099)
	// ============================================

	"R080": {
		Category:   CategoryCLI,
		Message:    "Invalid scenario",
		Suggestion: "A scenario needs a name and at least one workload.",
	},
	"R081": {
		Category:   CategoryCLI,
		Message:    "Archive upload failed",
		Suggestion: "Check the bucket name, region and credentials.",
	},
}
