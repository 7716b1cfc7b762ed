package constant

const (
	// DefaultErrorTitle is the code used for framework level HTTP errors
	// (unknown route, method not allowed) that never reach a handler.
	DefaultErrorTitle = "REQUEST_FAILED"
	// DefaultInternalErrorMessage is the only message exposed for unclassified failures.
	DefaultInternalErrorMessage = "Unexpected error"
	// ObfuscatedValue replaces sensitive values in logged bodies.
	ObfuscatedValue = "********"
)

// Health statuses reported by the health endpoint.
const (
	HealthStatusAvailable = "available"
	HealthStatusDegraded  = "degraded"
)
