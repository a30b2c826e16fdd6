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

const vehicleTable = "vehicles"

var vehicleColumns = []string{
	"id", "plate", "class", "status",
	"owner_name", "owner_phone",
	"version", "created_at", "updated_at",
}

// Compile-time check that VehicleRepo implements parking.VehicleRepository.
var _ parking.VehicleRepository = (*VehicleRepo)(nil)

// VehicleRepo persists vehicles.
type VehicleRepo struct {
	txm *postgres.TxManager
}

// NewVehicleRepo creates a vehicle repository bound to the transaction manager.
func NewVehicleRepo(txm *postgres.TxManager) *VehicleRepo {
	return &VehicleRepo{txm: txm}
}

// Create inserts a new vehicle.
func (r *VehicleRepo) Create(ctx context.Context, vehicle *parking.Vehicle) error {
	q := builder().
		Insert(vehicleTable).
		Columns(vehicleColumns...).
		Values(
			vehicle.ID, vehicle.Plate, vehicle.Class, vehicle.Status,
			vehicle.OwnerName, vehicle.OwnerPhone,
			vehicle.Version, vehicle.CreatedAt, vehicle.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if asUniqueViolation(err) != "" {
			return apperror.NewDuplicate("vehicle", "plate", vehicle.Plate).WithCause(err)
		}
		return fmt.Errorf("insert %s: %w", vehicleTable, err)
	}
	return nil
}

// GetByID retrieves a vehicle by id.
func (r *VehicleRepo) GetByID(ctx context.Context, vehicleID id.ID) (*parking.Vehicle, error) {
	q := builder().
		Select(vehicleColumns...).
		From(vehicleTable).
		Where(squirrel.Eq{"id": vehicleID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	vehicle := &parking.Vehicle{}
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), vehicle, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("vehicle", vehicleID.String())
		}
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	return vehicle, nil
}

// GetByPlate retrieves a vehicle by its normalized plate.
func (r *VehicleRepo) GetByPlate(ctx context.Context, plate string) (*parking.Vehicle, error) {
	q := builder().
		Select(vehicleColumns...).
		From(vehicleTable).
		Where(squirrel.Eq{"plate": parking.NormalizePlate(plate)})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	vehicle := &parking.Vehicle{}
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), vehicle, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("vehicle", plate)
		}
		return nil, fmt.Errorf("get vehicle by plate: %w", err)
	}
	return vehicle, nil
}

// Update modifies a vehicle with optimistic locking.
func (r *VehicleRepo) Update(ctx context.Context, vehicle *parking.Vehicle) error {
	q := builder().
		Update(vehicleTable).
		Set("class", vehicle.Class).
		Set("status", vehicle.Status).
		Set("owner_name", vehicle.OwnerName).
		Set("owner_phone", vehicle.OwnerPhone).
		Set("updated_at", squirrel.Expr("now()")).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": vehicle.ID}).
		Where(squirrel.Eq{"version": vehicle.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", vehicleTable, err)
	}
	if result.RowsAffected() == 0 {
		return concurrentModification(vehicleTable, vehicle.ID.String())
	}

	vehicle.Version++
	return nil
}
