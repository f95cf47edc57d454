package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context.
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for one grace-engine
// operation: which node initiated it, which object it targets, and the
// epoch the caller observed going in.
type LogContext struct {
	TraceID   string // OpenTelemetry trace ID
	SpanID    string // OpenTelemetry span ID
	Operation string // Engine operation: start, join, lift, done, ...
	Object    string // Grace object name
	NodeID    string // Node identifier, when the operation is node-scoped
	EpochC    uint64 // Current epoch observed at operation start
	EpochR    uint64 // Recovery epoch observed at operation start
	StartTime time.Time
}

// WithContext returns a new context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if not present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for an operation against object.
func NewLogContext(operation, object string) *LogContext {
	return &LogContext{Operation: operation, Object: object, StartTime: time.Now()}
}

// Clone creates a copy of lc.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithNodeID returns a copy with NodeID set.
func (lc *LogContext) WithNodeID(nodeid string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.NodeID = nodeid
	}
	return clone
}

// WithEpoch returns a copy with the observed epoch set.
func (lc *LogContext) WithEpoch(c, r uint64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.EpochC = c
		clone.EpochR = r
	}
	return clone
}

// WithTrace returns a copy with trace info set.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
