package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"parkcore/internal/core/apperror"
	"parkcore/internal/core/id"
	"parkcore/internal/core/tx"
	"parkcore/pkg/logger"
)

var tracer = otel.Tracer("parkcore/tx")

// Compile-time check that TxManager implements tx.Manager interface.
var _ tx.Manager = (*TxManager)(nil)

// Postgres error codes the manager recognizes.
const (
	pgCodeQueryCanceled        = "57014" // statement_timeout fired
	pgCodeSerializationFailure = "40001"
	pgCodeDeadlockDetected     = "40P01"
)

// TxManager manages database transactions with support for:
// - Native savepoints for partial rollback
// - Per-transaction timeout enforcement
// - Running success/failure statistics
// - Distributed tracing integration
type TxManager struct {
	pool  *pgxpool.Pool
	stats txStats
}

// NewTxManager creates a new transaction manager.
func NewTxManager(pool *Pool) *TxManager {
	return &TxManager{pool: pool.Pool}
}

// NewTxManagerFromRawPool creates a new transaction manager from raw pgxpool.Pool.
func NewTxManagerFromRawPool(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// txKey is the context key for active transaction.
type txKey struct{}

// Tx wraps pgx.Tx with metadata.
type Tx struct {
	pgx.Tx
	savepoints int64
}

// Execute runs fn inside a new transaction. All errors raised by fn are
// caught here and returned in the Result envelope, never propagated.
func (m *TxManager) Execute(ctx context.Context, opts tx.Options, fn tx.Func) tx.Result {
	priority := opts.Priority
	if priority == "" {
		priority = tx.PriorityNormal
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = tx.DefaultTimeout(priority)
	}

	txc := &tx.Context{
		ID:        id.New(),
		StartedAt: time.Now(),
		Priority:  priority,
		Metadata:  opts.Metadata,
	}

	result := tx.Result{
		TxID:      txc.ID,
		StartedAt: txc.StartedAt,
		Priority:  priority,
	}

	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.id", txc.ID.String()),
			attribute.String("tx.priority", string(priority)),
		))
	defer span.End()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	execCtx = tx.WithContext(execCtx, txc)
	execCtx = logger.WithTxID(execCtx, txc.ID.String())

	m.stats.begin()

	data, err := m.runInTransaction(execCtx, opts, timeout, fn)
	result.Duration = time.Since(txc.StartedAt)

	if err != nil {
		err = m.classify(execCtx, err)
		result.Err = err
		m.stats.finish(false, apperror.IsTimeout(err), result.Duration)
		logger.Warn(execCtx, "transaction failed",
			"priority", priority,
			"duration_ms", result.Duration.Milliseconds(),
			"error", err,
		)
		return result
	}

	result.Success = true
	result.Data = data
	m.stats.finish(true, false, result.Duration)
	return result
}

// runInTransaction owns the BEGIN/COMMIT/ROLLBACK lifecycle.
func (m *TxManager) runInTransaction(ctx context.Context, opts tx.Options, timeout time.Duration, fn tx.Func) (any, error) {
	isoLevel := pgx.ReadCommitted
	if opts.Serializable {
		isoLevel = pgx.Serializable
	}
	accessMode := pgx.ReadWrite
	if opts.ReadOnly {
		accessMode = pgx.ReadOnly
	}

	pgxTx, err := m.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   isoLevel,
		AccessMode: accessMode,
	})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	// Statement timeout protects against runaway queries inside the
	// context deadline window.
	_, err = pgxTx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", timeout.Milliseconds()))
	if err != nil {
		_ = pgxTx.Rollback(context.Background())
		return nil, fmt.Errorf("set statement_timeout: %w", err)
	}

	wrapped := &Tx{Tx: pgxTx}
	txCtx := context.WithValue(ctx, txKey{}, wrapped)

	data, err := fn(txCtx)
	if err != nil {
		// Use background context for rollback to ensure it completes
		// even if the original context was cancelled.
		if rbErr := pgxTx.Rollback(context.Background()); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return nil, err
	}

	if err := pgxTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return data, nil
}

// classify maps infrastructure failures onto the transaction error
// taxonomy. Domain AppErrors pass through untouched.
func (m *TxManager) classify(ctx context.Context, err error) error {
	if apperror.IsAppError(err) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.NewTransaction(apperror.ReasonTimeout, "transaction timed out").WithCause(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCodeQueryCanceled:
			return apperror.NewTransaction(apperror.ReasonTimeout, "transaction timed out").WithCause(err)
		case pgCodeSerializationFailure, pgCodeDeadlockDetected:
			return apperror.NewTransaction(apperror.ReasonConflict, "transaction aborted due to concurrent conflict").WithCause(err)
		}
	}

	// Deadline may have fired while pgx was mid-query; prefer the
	// timeout classification over a generic abort.
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperror.NewTransaction(apperror.ReasonTimeout, "transaction timed out").WithCause(err)
	}

	return apperror.NewTransaction(apperror.ReasonAborted, "transaction aborted").WithCause(err)
}

// --- Savepoints ---

// Savepoint creates a named mark inside the enclosing transaction.
func (m *TxManager) Savepoint(ctx context.Context, label string) (tx.Savepoint, error) {
	wrapped := m.getTx(ctx)
	if wrapped == nil {
		return "", apperror.NewInternal(errors.New("savepoint requested outside a transaction"))
	}

	n := atomic.AddInt64(&wrapped.savepoints, 1)
	name := fmt.Sprintf("sp_%s_%d", sanitizeSavepointLabel(label), n)

	if _, err := wrapped.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return "", fmt.Errorf("create savepoint %s: %w", name, err)
	}
	return tx.Savepoint(name), nil
}

// Release discards a savepoint, keeping its effects.
func (m *TxManager) Release(ctx context.Context, sp tx.Savepoint) error {
	wrapped := m.getTx(ctx)
	if wrapped == nil {
		return apperror.NewInternal(errors.New("release requested outside a transaction"))
	}
	if _, err := wrapped.Exec(ctx, "RELEASE SAVEPOINT "+string(sp)); err != nil {
		return fmt.Errorf("release savepoint %s: %w", sp, err)
	}
	return nil
}

// RollbackTo undoes all statements issued since the savepoint without
// aborting the enclosing transaction.
func (m *TxManager) RollbackTo(ctx context.Context, sp tx.Savepoint) error {
	wrapped := m.getTx(ctx)
	if wrapped == nil {
		return apperror.NewInternal(errors.New("rollback requested outside a transaction"))
	}
	if _, err := wrapped.Exec(ctx, "ROLLBACK TO SAVEPOINT "+string(sp)); err != nil {
		return fmt.Errorf("rollback to savepoint %s: %w", sp, err)
	}
	return nil
}

// sanitizeSavepointLabel keeps savepoint names valid identifiers.
func sanitizeSavepointLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "anon"
	}
	return b.String()
}

// --- Querier access ---

// getTx returns the current transaction from context, or nil if none.
func (m *TxManager) getTx(ctx context.Context) *Tx {
	if wrapped, ok := ctx.Value(txKey{}).(*Tx); ok {
		return wrapped
	}
	return nil
}

// Querier abstracts over pool and transaction so repos work both inside
// and outside a unit of work.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetQuerier returns the transaction if one is active, otherwise the pool.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if wrapped := m.getTx(ctx); wrapped != nil {
		return wrapped.Tx
	}
	return m.pool
}

// Stats returns running transaction counters.
func (m *TxManager) Stats() tx.Statistics {
	return m.stats.snapshot()
}
