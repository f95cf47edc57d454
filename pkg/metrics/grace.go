// Package metrics defines observability interfaces for gracekeeper
// components. Interfaces are optional: passing nil disables collection
// with zero overhead, following the convention established across this
// codebase's store and adapter metrics.
package metrics

import "time"

// GraceMetrics provides observability for the grace protocol engine.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewGraceMetrics(reg)
//	engine := graceengine.New(client, notifier, m, cfg)
//
//	// Without metrics (pass nil for zero overhead)
//	engine := graceengine.New(client, notifier, nil, cfg)
type GraceMetrics interface {
	// RecordOperation records a completed engine operation.
	//
	// Parameters:
	//   - operation: operation name (e.g. "start", "join", "lift")
	//   - duration: time taken to process the operation, including retries
	//   - errorCode: classification string if the operation failed (e.g.
	//     "corruption", "not_found"), empty if successful
	RecordOperation(operation string, duration time.Duration, errorCode string)

	// RecordRetry records a single version-conflict retry of the named
	// operation. Called once per retry, not once per operation.
	RecordRetry(operation string)

	// RecordNotifyFailure records a best-effort notify that failed to
	// send. Never fatal, but worth observing.
	RecordNotifyFailure(operation string)
}
