package parking

import (
	"context"

	"parkcore/internal/core/id"
)

// SpotRepository is the data-access contract for spots.
// Implementations must run through the caller's transactional handle
// when one is present in ctx.
type SpotRepository interface {
	Create(ctx context.Context, spot *Spot) error
	GetByID(ctx context.Context, spotID id.ID) (*Spot, error)
	// GetByIDForUpdate locks the row for the remainder of the enclosing
	// transaction.
	GetByIDForUpdate(ctx context.Context, spotID id.ID) (*Spot, error)
	Update(ctx context.Context, spot *Spot) error
	// UpdateStatusBatch sets status on every existing spot in ids and
	// returns the rows it actually updated; unknown ids and OCCUPIED
	// spots are skipped.
	UpdateStatusBatch(ctx context.Context, ids []id.ID, status SpotStatus) ([]*Spot, error)
	ListByStatus(ctx context.Context, status SpotStatus) ([]*Spot, error)
}

// VehicleRepository is the data-access contract for vehicles.
type VehicleRepository interface {
	Create(ctx context.Context, vehicle *Vehicle) error
	GetByID(ctx context.Context, vehicleID id.ID) (*Vehicle, error)
	// GetByPlate looks up by normalized plate; returns a NOT_FOUND
	// AppError when the plate is unseen.
	GetByPlate(ctx context.Context, plate string) (*Vehicle, error)
	Update(ctx context.Context, vehicle *Vehicle) error
}

// SessionRepository is the data-access contract for sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, sessionID id.ID) (*Session, error)
	// FindActiveByVehicle returns the vehicle's single ACTIVE session or
	// a NOT_FOUND AppError.
	FindActiveByVehicle(ctx context.Context, vehicleID id.ID) (*Session, error)
	// FindActiveBySpot returns the spot's single ACTIVE session or a
	// NOT_FOUND AppError.
	FindActiveBySpot(ctx context.Context, spotID id.ID) (*Session, error)
	Update(ctx context.Context, session *Session) error
	ListActive(ctx context.Context) ([]*Session, error)
}
