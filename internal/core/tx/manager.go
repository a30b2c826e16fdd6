// Package tx provides transaction management abstractions.
// This package defines interfaces that decouple domain logic from specific
// database implementations, following the Dependency Inversion Principle.
package tx

import (
	"context"
	"time"

	"parkcore/internal/core/id"
)

// Priority is a scheduling hint attached to a unit of work.
// It selects timeout defaults and feeds statistics; it does not preempt.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

// Default timeouts per priority. Bulk operations override with BulkTimeout.
const (
	TimeoutHigh   = 5 * time.Second
	TimeoutNormal = 15 * time.Second
	TimeoutLow    = 30 * time.Second
	BulkTimeout   = 60 * time.Second
)

// DefaultTimeout returns the timeout for a priority when Options.Timeout
// is left zero.
func DefaultTimeout(p Priority) time.Duration {
	switch p {
	case PriorityHigh:
		return TimeoutHigh
	case PriorityLow:
		return TimeoutLow
	default:
		return TimeoutNormal
	}
}

// Options configures a unit of work.
type Options struct {
	// Priority selects the default timeout and is recorded on the context.
	Priority Priority

	// Timeout bounds the whole unit of work. Zero means DefaultTimeout(Priority).
	Timeout time.Duration

	// ReadOnly executes the transaction in read-only mode.
	ReadOnly bool

	// Serializable upgrades isolation for operations where read-committed
	// plus store constraints is not enough.
	Serializable bool

	// Metadata is recorded on the execution context for logging/statistics.
	Metadata map[string]any
}

// Context is the execution context of one unit of work.
type Context struct {
	ID        id.ID
	StartedAt time.Time
	Priority  Priority
	Metadata  map[string]any
}

// Result is the uniform envelope returned by Execute.
// Errors raised inside the callback never propagate past Execute;
// callers must inspect Success.
type Result struct {
	Success   bool
	Data      any
	Err       error
	TxID      id.ID
	StartedAt time.Time
	Duration  time.Duration
	Priority  Priority
}

// Func is the work executed inside a transaction. The returned value
// becomes Result.Data on success.
type Func func(ctx context.Context) (any, error)

// Savepoint is an opaque reference to a named mark inside the enclosing
// transaction.
type Savepoint string

// Statistics are running counters over executed transactions.
type Statistics struct {
	TotalExecuted int64
	Active        int64
	Succeeded     int64
	Failed        int64
	TimedOut      int64
	// AvgDuration is an exponentially weighted moving average.
	AvgDuration time.Duration
}

// Manager defines the contract for transaction management.
// Implementations handle BEGIN, COMMIT, ROLLBACK, savepoints and timeout
// enforcement. Domain services depend on this interface, not concrete
// implementations; the actual implementation lives in
// infrastructure/storage/postgres.
type Manager interface {
	// Execute runs fn within a database transaction. On success the
	// transaction is committed and Result.Data holds fn's return value.
	// On error the transaction is rolled back and Result.Err holds the
	// error; Execute itself never returns the error directly.
	Execute(ctx context.Context, opts Options, fn Func) Result

	// Savepoint creates a named mark inside the enclosing transaction.
	// Must be called from within an Execute callback.
	Savepoint(ctx context.Context, label string) (Savepoint, error)

	// Release discards a savepoint, keeping its effects.
	Release(ctx context.Context, sp Savepoint) error

	// RollbackTo undoes all statements issued since the savepoint without
	// aborting the enclosing transaction.
	RollbackTo(ctx context.Context, sp Savepoint) error

	// Stats returns running transaction counters for monitoring.
	// Not intended for control flow.
	Stats() Statistics
}

// ctxKey is the context key for the execution context.
type ctxKey struct{}

// WithContext stores the execution context. Called by Manager
// implementations at the start of Execute.
func WithContext(ctx context.Context, txc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, txc)
}

// FromContext returns the execution context of the enclosing unit of
// work, or nil when called outside Execute.
func FromContext(ctx context.Context) *Context {
	if txc, ok := ctx.Value(ctxKey{}).(*Context); ok {
		return txc
	}
	return nil
}
