package engine

import "time"

// ExecutionOptions configures one Launch call. Zero values fall back to
// the Scheduler's own configured defaults.
type ExecutionOptions struct {
	// StrictMode makes the variable resolver fail a node with
	// unresolved-variable instead of substituting the empty string
	// (spec §4.2's caller-selected strict mode).
	StrictMode bool

	// NodeTimeout overrides the scheduler-wide default node timeout
	// for every node in this execution that sets neither
	// config.timeout nor its own Node.TimeoutMs.
	NodeTimeout time.Duration

	// Retry overrides the scheduler-wide default retry policy for
	// every node in this execution that doesn't set its own
	// Node.Retry.
	Retry *RetryPolicy

	// System supplies the "system" scope values available to variable
	// resolution and expressions (spec §4.2), e.g. execution start
	// time, tenant id. Merged over the scheduler's own System map,
	// with these values taking precedence.
	System map[string]interface{}
}

func (o *ExecutionOptions) orDefaults() ExecutionOptions {
	if o == nil {
		return ExecutionOptions{}
	}
	return *o
}
