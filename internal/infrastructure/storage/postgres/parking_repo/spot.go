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

const spotTable = "spots"

var spotColumns = []string{
	"id", "code", "class", "status", "occupant_id",
	"garage", "floor", "bay", "hourly_rate",
	"version", "created_at", "updated_at",
}

// Compile-time check that SpotRepo implements parking.SpotRepository.
var _ parking.SpotRepository = (*SpotRepo)(nil)

// SpotRepo persists spots.
type SpotRepo struct {
	txm *postgres.TxManager
}

// NewSpotRepo creates a spot repository bound to the transaction manager.
func NewSpotRepo(txm *postgres.TxManager) *SpotRepo {
	return &SpotRepo{txm: txm}
}

// Create inserts a new spot.
func (r *SpotRepo) Create(ctx context.Context, spot *parking.Spot) error {
	q := builder().
		Insert(spotTable).
		Columns(spotColumns...).
		Values(
			spot.ID, spot.Code, spot.Class, spot.Status, spot.OccupantID,
			spot.Garage, spot.Floor, spot.Bay, spot.HourlyRate,
			spot.Version, spot.CreatedAt, spot.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if asUniqueViolation(err) != "" {
			return apperror.NewDuplicate("spot", "code", spot.Code).WithCause(err)
		}
		return fmt.Errorf("insert %s: %w", spotTable, err)
	}
	return nil
}

// GetByID retrieves a spot by id.
func (r *SpotRepo) GetByID(ctx context.Context, spotID id.ID) (*parking.Spot, error) {
	return r.get(ctx, spotID, false)
}

// GetByIDForUpdate retrieves a spot by id with a row lock held for the
// remainder of the enclosing transaction.
func (r *SpotRepo) GetByIDForUpdate(ctx context.Context, spotID id.ID) (*parking.Spot, error) {
	return r.get(ctx, spotID, true)
}

func (r *SpotRepo) get(ctx context.Context, spotID id.ID, forUpdate bool) (*parking.Spot, error) {
	q := builder().
		Select(spotColumns...).
		From(spotTable).
		Where(squirrel.Eq{"id": spotID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	spot := &parking.Spot{}
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), spot, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("spot", spotID.String())
		}
		return nil, fmt.Errorf("get spot: %w", err)
	}
	return spot, nil
}

// Update modifies a spot with optimistic locking.
func (r *SpotRepo) Update(ctx context.Context, spot *parking.Spot) error {
	q := builder().
		Update(spotTable).
		Set("status", spot.Status).
		Set("occupant_id", spot.OccupantID).
		Set("class", spot.Class).
		Set("hourly_rate", spot.HourlyRate).
		Set("updated_at", squirrel.Expr("now()")).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": spot.ID}).
		Where(squirrel.Eq{"version": spot.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", spotTable, err)
	}
	if result.RowsAffected() == 0 {
		return concurrentModification(spotTable, spot.ID.String())
	}

	spot.Version++
	return nil
}

// UpdateStatusBatch sets status on every existing spot in ids and
// returns the updated rows. Unknown ids are skipped, as are spots that
// are currently OCCUPIED: occupancy changes only through the session
// operations, which keep the spot/session pairing intact.
func (r *SpotRepo) UpdateStatusBatch(ctx context.Context, ids []id.ID, status parking.SpotStatus) ([]*parking.Spot, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	q := builder().
		Update(spotTable).
		Set("status", status).
		Set("updated_at", squirrel.Expr("now()")).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": ids}).
		Where(squirrel.NotEq{"status": parking.SpotOccupied}).
		Suffix("RETURNING " + joinColumns(spotColumns))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build batch update: %w", err)
	}

	var spots []*parking.Spot
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &spots, sql, args...); err != nil {
		return nil, fmt.Errorf("batch update %s: %w", spotTable, err)
	}
	return spots, nil
}

// ListByStatus returns all spots in the given status.
func (r *SpotRepo) ListByStatus(ctx context.Context, status parking.SpotStatus) ([]*parking.Spot, error) {
	q := builder().
		Select(spotColumns...).
		From(spotTable).
		Where(squirrel.Eq{"status": status}).
		OrderBy("code ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var spots []*parking.Spot
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &spots, sql, args...); err != nil {
		return nil, fmt.Errorf("list spots: %w", err)
	}
	return spots, nil
}
