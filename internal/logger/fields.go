package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the grace engine, the
// host integration adapter, and the object store backends. Use these keys
// consistently so log aggregation and querying line up across components.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Grace Protocol
	// ========================================================================
	KeyOperation = "operation" // Engine operation: start, join, lift, done, ...
	KeyObject    = "object"    // Grace object name
	KeyNodeID    = "nodeid"    // Node identifier under coordination
	KeyEpochC    = "epoch_c"   // Current epoch counter
	KeyEpochR    = "epoch_r"   // Recovery epoch (0 when no grace period active)

	// ========================================================================
	// Object Store Backend
	// ========================================================================
	KeyBucket    = "bucket"     // Cloud bucket name (S3, GCS)
	KeyKey       = "key"        // Object key in cloud storage
	KeyRegion    = "region"     // Cloud region
	KeyVersion   = "version"    // Object version/etag observed or written
	KeyStoreType = "store_type" // Store backend: memory, s3

	// ========================================================================
	// Retry & Backoff
	// ========================================================================
	KeyAttempt    = "attempt"    // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Engine error code
)

// ----------------------------------------------------------------------------
// Distributed Tracing
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for OpenTelemetry trace ID.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// ----------------------------------------------------------------------------
// Grace Protocol
// ----------------------------------------------------------------------------

// Operation returns a slog.Attr for the engine operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Object returns a slog.Attr for the grace object name.
func Object(name string) slog.Attr {
	return slog.String(KeyObject, name)
}

// NodeID returns a slog.Attr for a node identifier.
func NodeID(id string) slog.Attr {
	return slog.String(KeyNodeID, id)
}

// Epoch returns slog.Attrs for the current and recovery epoch counters.
func Epoch(c, r uint64) []slog.Attr {
	return []slog.Attr{slog.Uint64(KeyEpochC, c), slog.Uint64(KeyEpochR, r)}
}

// ----------------------------------------------------------------------------
// Object Store Backend
// ----------------------------------------------------------------------------

// Bucket returns a slog.Attr for the object store bucket name.
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Key returns a slog.Attr for an object key.
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Region returns a slog.Attr for a cloud region.
func Region(r string) slog.Attr {
	return slog.String(KeyRegion, r)
}

// Version returns a slog.Attr for an object version/etag.
func Version(v string) slog.Attr {
	return slog.String(KeyVersion, v)
}

// StoreType returns a slog.Attr for the object store backend type.
func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}

// ----------------------------------------------------------------------------
// Retry & Backoff
// ----------------------------------------------------------------------------

// Attempt returns a slog.Attr for the current retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for the configured retry cap.
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error, or a zero-valued attr (dropped by
// slog) when err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for an engine error code.
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}
