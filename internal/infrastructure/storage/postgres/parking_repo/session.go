package parking_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"parkcore/internal/core/apperror"
	"parkcore/internal/core/id"
	"parkcore/internal/domain/parking"
	"parkcore/internal/infrastructure/storage/postgres"
)

const sessionTable = "sessions"

// Partial unique indexes backing the one-active-session invariants
// (see migrations/001_init.sql). The insert path translates their
// violation into the domain conflict the orchestrator expects.
const (
	constraintOneActivePerSpot    = "sessions_one_active_per_spot"
	constraintOneActivePerVehicle = "sessions_one_active_per_vehicle"
)

var sessionColumns = []string{
	"id", "vehicle_id", "spot_id", "status",
	"entry_time", "exit_time", "duration_minutes",
	"rate_type", "total_fee", "paid",
	"version", "created_at", "updated_at",
}

// Compile-time check that SessionRepo implements parking.SessionRepository.
var _ parking.SessionRepository = (*SessionRepo)(nil)

// SessionRepo persists parking sessions.
type SessionRepo struct {
	txm *postgres.TxManager
}

// NewSessionRepo creates a session repository bound to the transaction manager.
func NewSessionRepo(txm *postgres.TxManager) *SessionRepo {
	return &SessionRepo{txm: txm}
}

// Create inserts a new session. Unique-violation on the partial active
// indexes surfaces as a domain conflict: the application-level
// availability check is only the fast path, the index is the guarantee.
func (r *SessionRepo) Create(ctx context.Context, session *parking.Session) error {
	q := builder().
		Insert(sessionTable).
		Columns(sessionColumns...).
		Values(
			session.ID, session.VehicleID, session.SpotID, session.Status,
			session.EntryTime, session.ExitTime, session.DurationMinutes,
			session.RateType, session.TotalFee, session.Paid,
			session.Version, session.CreatedAt, session.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		switch asUniqueViolation(err) {
		case constraintOneActivePerSpot:
			return apperror.NewConflict("spot already has an active session").
				WithDetail("spotId", session.SpotID.String()).
				WithCause(err)
		case constraintOneActivePerVehicle:
			return apperror.NewConflict("vehicle already parked").
				WithDetail("vehicleId", session.VehicleID.String()).
				WithCause(err)
		}
		return fmt.Errorf("insert %s: %w", sessionTable, err)
	}
	return nil
}

// GetByID retrieves a session by id.
func (r *SessionRepo) GetByID(ctx context.Context, sessionID id.ID) (*parking.Session, error) {
	q := builder().
		Select(sessionColumns...).
		From(sessionTable).
		Where(squirrel.Eq{"id": sessionID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	session := &parking.Session{}
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), session, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("session", sessionID.String())
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// FindActiveByVehicle returns the vehicle's single active session.
func (r *SessionRepo) FindActiveByVehicle(ctx context.Context, vehicleID id.ID) (*parking.Session, error) {
	return r.findActive(ctx, squirrel.Eq{"vehicle_id": vehicleID}, vehicleID.String())
}

// FindActiveBySpot returns the spot's single active session.
func (r *SessionRepo) FindActiveBySpot(ctx context.Context, spotID id.ID) (*parking.Session, error) {
	return r.findActive(ctx, squirrel.Eq{"spot_id": spotID}, spotID.String())
}

func (r *SessionRepo) findActive(ctx context.Context, cond squirrel.Eq, key string) (*parking.Session, error) {
	q := builder().
		Select(sessionColumns...).
		From(sessionTable).
		Where(cond).
		Where(squirrel.Eq{"status": parking.SessionActive})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	session := &parking.Session{}
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), session, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("active session", key)
		}
		return nil, fmt.Errorf("find active session: %w", err)
	}
	return session, nil
}

// Update modifies a session with optimistic locking. Completed and
// cancelled sessions are immutable.
func (r *SessionRepo) Update(ctx context.Context, session *parking.Session) error {
	q := builder().
		Update(sessionTable).
		Set("spot_id", session.SpotID).
		Set("status", session.Status).
		Set("exit_time", session.ExitTime).
		Set("duration_minutes", session.DurationMinutes).
		Set("total_fee", session.TotalFee).
		Set("paid", session.Paid).
		Set("updated_at", squirrel.Expr("now()")).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": session.ID}).
		Where(squirrel.Eq{"version": session.Version}).
		// Terminal sessions never match; the write is silently a no-op
		// turned into a conflict below.
		Where(squirrel.Eq{"status": []parking.SessionStatus{parking.SessionActive}})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", sessionTable, err)
	}
	if result.RowsAffected() == 0 {
		return concurrentModification(sessionTable, session.ID.String())
	}

	session.Version++
	return nil
}

// ListActive returns all active sessions ordered by entry time.
func (r *SessionRepo) ListActive(ctx context.Context) ([]*parking.Session, error) {
	q := builder().
		Select(sessionColumns...).
		From(sessionTable).
		Where(squirrel.Eq{"status": parking.SessionActive}).
		OrderBy("entry_time ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var sessions []*parking.Session
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &sessions, sql, args...); err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}
