package parking

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"parkcore/internal/core/apperror"
	"parkcore/internal/core/id"
	"parkcore/internal/core/tx"
	"parkcore/internal/core/types"
	"parkcore/pkg/logger"
)

// bulkBatchSize bounds the savepoint footprint of bulk status changes.
const bulkBatchSize = 50

// Service orchestrates spot, vehicle and session state so the three
// always change together. It is the sole writer of Session.status
// transitions and of the Spot.status/occupant pairing; repositories
// never enforce cross-entity invariants themselves.
type Service struct {
	spots    SpotRepository
	vehicles VehicleRepository
	sessions SessionRepository
	txm      tx.Manager
	matrix   CompatibilityMatrix
}

// NewService creates a parking service. A nil matrix selects the default
// compatibility policy.
func NewService(
	spots SpotRepository,
	vehicles VehicleRepository,
	sessions SessionRepository,
	txm tx.Manager,
	matrix CompatibilityMatrix,
) *Service {
	if matrix == nil {
		matrix = DefaultCompatibilityMatrix()
	}
	return &Service{
		spots:    spots,
		vehicles: vehicles,
		sessions: sessions,
		txm:      txm,
		matrix:   matrix,
	}
}

// VehicleInput is the plain vehicle data supplied by the caller on park.
type VehicleInput struct {
	Plate      string
	Class      VehicleClass
	OwnerName  string
	OwnerPhone string
}

// ParkRequest is the input to Park.
type ParkRequest struct {
	Vehicle   VehicleInput
	SpotID    id.ID
	EntryTime *time.Time
	Priority  tx.Priority
}

// ParkOutcome is returned on successful park.
type ParkOutcome struct {
	Session *Session `json:"session"`
	Spot    *Spot    `json:"spot"`
	Vehicle *Vehicle `json:"vehicle"`
}

// Payment is the amount owed for a completed stay, handed to the
// payment gateway by the caller.
type Payment struct {
	Amount string `json:"amount"`
	Hours  int64  `json:"hours"`
}

// ExitOutcome is returned on successful exit.
type ExitOutcome struct {
	Session *Session `json:"session"`
	Payment Payment  `json:"payment"`
}

// TransferOutcome is returned on successful transfer.
type TransferOutcome struct {
	Session  *Session `json:"session"`
	FromSpot *Spot    `json:"fromSpot"`
	ToSpot   *Spot    `json:"toSpot"`
}

// BulkOutcome reports a bulk status change. Missing ids are skipped and
// not counted.
type BulkOutcome struct {
	UpdatedCount int     `json:"updatedCount"`
	Spots        []*Spot `json:"spots"`
}

// Park claims a spot for a vehicle and opens an active session.
// The whole operation runs in one transaction; vehicle creation is
// guarded by a savepoint so its failure can be unwound in isolation.
func (s *Service) Park(ctx context.Context, req ParkRequest) tx.Result {
	priority := req.Priority
	if priority == "" {
		priority = tx.PriorityHigh
	}

	opts := tx.Options{
		Priority: priority,
		Metadata: map[string]any{"op": "park", "spot_id": req.SpotID.String()},
	}

	return s.txm.Execute(ctx, opts, func(ctx context.Context) (any, error) {
		if err := ValidateVehicleInput(req.Vehicle.Plate, req.Vehicle.Class); err != nil {
			return nil, err
		}

		spot, err := s.spots.GetByIDForUpdate(ctx, req.SpotID)
		if err != nil {
			return nil, err
		}
		if spot.Status != SpotAvailable {
			return nil, apperror.NewInvalidState(fmt.Sprintf("spot %s is not available", spot.Code)).
				WithDetail("spotId", spot.ID.String()).
				WithDetail("status", string(spot.Status))
		}

		vehicle, err := s.findOrCreateVehicle(ctx, req.Vehicle)
		if err != nil {
			return nil, err
		}
		if !vehicle.CanPark() {
			return nil, apperror.NewInvalidState("vehicle is not allowed to park").
				WithDetail("plate", vehicle.Plate).
				WithDetail("status", string(vehicle.Status))
		}

		if _, err := s.sessions.FindActiveByVehicle(ctx, vehicle.ID); err == nil {
			return nil, apperror.NewConflict("vehicle already parked").
				WithDetail("plate", vehicle.Plate)
		} else if !apperror.IsNotFound(err) {
			return nil, err
		}

		if !s.matrix.IsCompatible(vehicle.Class, spot.Class) {
			return nil, apperror.NewValidation(
				fmt.Sprintf("vehicle class %s is not compatible with spot class %s", vehicle.Class, spot.Class)).
				WithDetail("vehicleClass", string(vehicle.Class)).
				WithDetail("spotClass", string(spot.Class))
		}

		entryTime := time.Now().UTC()
		if req.EntryTime != nil {
			entryTime = req.EntryTime.UTC()
		}

		session := NewSession(vehicle.ID, spot.ID, entryTime)
		if err := s.sessions.Create(ctx, session); err != nil {
			return nil, err
		}

		spot.Status = SpotOccupied
		spot.OccupantID = &vehicle.ID
		if err := s.spots.Update(ctx, spot); err != nil {
			return nil, err
		}

		logger.Info(ctx, "vehicle parked",
			"plate", vehicle.Plate,
			"spot", spot.Code,
			"session_id", session.ID,
		)
		return &ParkOutcome{Session: session, Spot: spot, Vehicle: vehicle}, nil
	})
}

// findOrCreateVehicle looks up the plate and registers it when unseen.
// Creation runs under a savepoint: if the insert fails, only the insert
// is unwound and the original error is surfaced without aborting the
// reads already done in the enclosing transaction.
func (s *Service) findOrCreateVehicle(ctx context.Context, in VehicleInput) (*Vehicle, error) {
	plate := NormalizePlate(in.Plate)

	vehicle, err := s.vehicles.GetByPlate(ctx, plate)
	if err == nil {
		return vehicle, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, err
	}

	sp, err := s.txm.Savepoint(ctx, "create_vehicle")
	if err != nil {
		return nil, err
	}

	vehicle = NewVehicle(plate, in.Class)
	if in.OwnerName != "" {
		vehicle.OwnerName = &in.OwnerName
	}
	if in.OwnerPhone != "" {
		vehicle.OwnerPhone = &in.OwnerPhone
	}

	if err := s.vehicles.Create(ctx, vehicle); err != nil {
		// Rollback failure must not mask the creation error.
		if rbErr := s.txm.RollbackTo(ctx, sp); rbErr != nil {
			logger.Error(ctx, "savepoint rollback failed", "savepoint", sp, "error", rbErr)
		}
		return nil, err
	}

	if err := s.txm.Release(ctx, sp); err != nil {
		return nil, err
	}

	logger.Info(ctx, "vehicle registered", "plate", vehicle.Plate, "class", vehicle.Class)
	return vehicle, nil
}

// ExitRequest is the input to ExitVehicle.
type ExitRequest struct {
	Plate    string
	ExitTime *time.Time
	Priority tx.Priority
}

// ExitVehicle completes the vehicle's active session, computes the fee
// and releases the spot.
func (s *Service) ExitVehicle(ctx context.Context, req ExitRequest) tx.Result {
	priority := req.Priority
	if priority == "" {
		priority = tx.PriorityHigh
	}

	opts := tx.Options{
		Priority: priority,
		Metadata: map[string]any{"op": "exit", "plate": NormalizePlate(req.Plate)},
	}

	return s.txm.Execute(ctx, opts, func(ctx context.Context) (any, error) {
		vehicle, err := s.vehicles.GetByPlate(ctx, NormalizePlate(req.Plate))
		if err != nil {
			return nil, err
		}

		session, err := s.sessions.FindActiveByVehicle(ctx, vehicle.ID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return nil, apperror.NewInvalidState("no active session").
					WithDetail("plate", vehicle.Plate)
			}
			return nil, err
		}

		spot, err := s.spots.GetByIDForUpdate(ctx, session.SpotID)
		if err != nil {
			return nil, err
		}

		exitTime := time.Now().UTC()
		if req.ExitTime != nil {
			exitTime = req.ExitTime.UTC()
		}

		fee, err := ComputeFee(session.EntryTime, exitTime, spot.HourlyRate)
		if err != nil {
			return nil, err
		}

		session.Complete(exitTime, fee)
		if err := s.sessions.Update(ctx, session); err != nil {
			return nil, err
		}

		spot.Status = SpotAvailable
		spot.OccupantID = nil
		if err := s.spots.Update(ctx, spot); err != nil {
			return nil, err
		}

		logger.Info(ctx, "vehicle exited",
			"plate", vehicle.Plate,
			"spot", spot.Code,
			"hours", fee.Hours,
			"amount", fee.Amount,
		)
		return &ExitOutcome{
			Session: session,
			Payment: Payment{Amount: fee.Amount.StringFixed(2), Hours: fee.Hours},
		}, nil
	})
}

// TransferRequest is the input to TransferVehicle.
type TransferRequest struct {
	FromSpotID id.ID
	ToSpotID   id.ID
	Reason     string
	Metadata   map[string]any
	Priority   tx.Priority
}

// TransferVehicle moves the active session from one spot to another.
func (s *Service) TransferVehicle(ctx context.Context, req TransferRequest) tx.Result {
	priority := req.Priority
	if priority == "" {
		priority = tx.PriorityNormal
	}

	meta := map[string]any{
		"op":     "transfer",
		"from":   req.FromSpotID.String(),
		"to":     req.ToSpotID.String(),
		"reason": req.Reason,
	}
	for k, v := range req.Metadata {
		meta[k] = v
	}

	// Transfer is the one operation claiming two rows; serializable
	// isolation backs up the ordered locking against plans that slip
	// past read committed.
	opts := tx.Options{Priority: priority, Serializable: true, Metadata: meta}

	return s.txm.Execute(ctx, opts, func(ctx context.Context) (any, error) {
		if req.FromSpotID == req.ToSpotID {
			return nil, apperror.NewValidation("source and destination spots must differ")
		}

		from, to, err := s.lockSpotPair(ctx, req.FromSpotID, req.ToSpotID)
		if err != nil {
			return nil, err
		}

		if from.Status != SpotOccupied {
			return nil, apperror.NewInvalidState(fmt.Sprintf("spot %s is not occupied", from.Code)).
				WithDetail("spotId", from.ID.String()).
				WithDetail("status", string(from.Status))
		}
		if to.Status != SpotAvailable {
			return nil, apperror.NewInvalidState(fmt.Sprintf("spot %s is not available", to.Code)).
				WithDetail("spotId", to.ID.String()).
				WithDetail("status", string(to.Status))
		}

		session, err := s.sessions.FindActiveBySpot(ctx, from.ID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return nil, apperror.NewNotFound("active session", from.ID.String()).
					WithDetail("message", "no active session found")
			}
			return nil, err
		}

		session.SpotID = to.ID
		session.UpdatedAt = time.Now().UTC()
		if err := s.sessions.Update(ctx, session); err != nil {
			return nil, err
		}

		occupant := from.OccupantID
		from.Status = SpotAvailable
		from.OccupantID = nil
		if err := s.spots.Update(ctx, from); err != nil {
			return nil, err
		}

		to.Status = SpotOccupied
		to.OccupantID = occupant
		if err := s.spots.Update(ctx, to); err != nil {
			return nil, err
		}

		logger.Info(ctx, "vehicle transferred",
			"from", from.Code,
			"to", to.Code,
			"reason", req.Reason,
			"session_id", session.ID,
		)
		return &TransferOutcome{Session: session, FromSpot: from, ToSpot: to}, nil
	})
}

// lockSpotPair locks both spots in id order so two opposite transfers
// cannot deadlock, then returns them in the caller's order.
func (s *Service) lockSpotPair(ctx context.Context, fromID, toID id.ID) (*Spot, *Spot, error) {
	firstID, secondID := fromID, toID
	if bytes.Compare(toID[:], fromID[:]) < 0 {
		firstID, secondID = toID, fromID
	}

	first, err := s.spots.GetByIDForUpdate(ctx, firstID)
	if err != nil {
		return nil, nil, err
	}
	second, err := s.spots.GetByIDForUpdate(ctx, secondID)
	if err != nil {
		return nil, nil, err
	}

	if first.ID == fromID {
		return first, second, nil
	}
	return second, first, nil
}

// BulkUpdateRequest is the input to BulkUpdateSpotStatus.
type BulkUpdateRequest struct {
	SpotIDs      []id.ID
	TargetStatus SpotStatus
	Reason       string
}

// BulkUpdateSpotStatus changes the status of many spots inside one
// enclosing transaction, one savepoint per batch of 50 so a failing
// batch rolls back alone. Unknown spot ids are skipped, not failed.
// Occupancy is out of bounds in both directions: OCCUPIED is not a
// valid target, and spots that are currently OCCUPIED are skipped —
// their status and occupant pairing change only through Park, Exit
// and Transfer, which move the session with them.
func (s *Service) BulkUpdateSpotStatus(ctx context.Context, req BulkUpdateRequest) tx.Result {
	opts := tx.Options{
		Priority: tx.PriorityNormal,
		Timeout:  tx.BulkTimeout,
		Metadata: map[string]any{
			"op":     "bulk_update_spot_status",
			"count":  len(req.SpotIDs),
			"target": string(req.TargetStatus),
			"reason": req.Reason,
		},
	}

	return s.txm.Execute(ctx, opts, func(ctx context.Context) (any, error) {
		if !ValidSpotStatus(req.TargetStatus) {
			return nil, apperror.NewValidation("invalid target status").
				WithDetail("status", string(req.TargetStatus))
		}
		if req.TargetStatus == SpotOccupied {
			return nil, apperror.NewValidation("spots cannot be bulk-set to OCCUPIED")
		}

		outcome := &BulkOutcome{Spots: make([]*Spot, 0, len(req.SpotIDs))}

		for start := 0; start < len(req.SpotIDs); start += bulkBatchSize {
			end := start + bulkBatchSize
			if end > len(req.SpotIDs) {
				end = len(req.SpotIDs)
			}
			batch := req.SpotIDs[start:end]
			batchNo := start/bulkBatchSize + 1

			sp, err := s.txm.Savepoint(ctx, fmt.Sprintf("bulk_batch_%d", batchNo))
			if err != nil {
				return nil, err
			}

			updated, err := s.spots.UpdateStatusBatch(ctx, batch, req.TargetStatus)
			if err != nil {
				if rbErr := s.txm.RollbackTo(ctx, sp); rbErr != nil {
					logger.Error(ctx, "batch rollback failed", "batch", batchNo, "error", rbErr)
				}
				if appErr, ok := apperror.AsAppError(err); ok {
					return nil, appErr.WithDetail("failedBatch", batchNo).
						WithDetail("updatedBefore", outcome.UpdatedCount)
				}
				return nil, err
			}

			if err := s.txm.Release(ctx, sp); err != nil {
				return nil, err
			}

			outcome.UpdatedCount += len(updated)
			outcome.Spots = append(outcome.Spots, updated...)
		}

		logger.Info(ctx, "bulk spot status update",
			"requested", len(req.SpotIDs),
			"updated", outcome.UpdatedCount,
			"target", req.TargetStatus,
			"reason", req.Reason,
		)
		return outcome, nil
	})
}

// SpotInput is the provisioning data for one spot.
type SpotInput struct {
	Code       string
	Class      SpotClass
	Garage     string
	Floor      int
	Bay        int
	HourlyRate string
}

// ProvisionSpots creates spots at garage provisioning time. All spots
// are created in one transaction.
func (s *Service) ProvisionSpots(ctx context.Context, inputs []SpotInput) tx.Result {
	opts := tx.Options{
		Priority: tx.PriorityLow,
		Metadata: map[string]any{"op": "provision_spots", "count": len(inputs)},
	}

	return s.txm.Execute(ctx, opts, func(ctx context.Context) (any, error) {
		spots := make([]*Spot, 0, len(inputs))
		for _, in := range inputs {
			spot, err := buildSpot(in)
			if err != nil {
				return nil, err
			}
			if err := s.spots.Create(ctx, spot); err != nil {
				return nil, err
			}
			spots = append(spots, spot)
		}
		logger.Info(ctx, "spots provisioned", "count", len(spots))
		return spots, nil
	})
}

func buildSpot(in SpotInput) (*Spot, error) {
	if in.Code == "" {
		return nil, apperror.NewValidation("spot code is required")
	}
	if !ValidSpotClass(in.Class) {
		return nil, apperror.NewValidation("invalid spot class").
			WithDetail("field", "class").
			WithDetail("value", string(in.Class))
	}
	rate, err := parseRate(in.HourlyRate)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Spot{
		ID:         id.New(),
		Code:       in.Code,
		Class:      in.Class,
		Status:     SpotAvailable,
		Garage:     in.Garage,
		Floor:      in.Floor,
		Bay:        in.Bay,
		HourlyRate: rate,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func parseRate(raw string) (types.Money, error) {
	rate, err := types.NewMoneyFromString(raw)
	if err != nil {
		return types.Zero(), apperror.NewValidation("invalid hourly rate").
			WithDetail("hourlyRate", raw).
			WithCause(err)
	}
	if rate.Sign() <= 0 {
		return types.Zero(), apperror.NewValidation("hourly rate must be positive").
			WithDetail("hourlyRate", raw)
	}
	return rate, nil
}

// GetActiveSessionByPlate returns the vehicle's active session, read-only.
func (s *Service) GetActiveSessionByPlate(ctx context.Context, plate string) tx.Result {
	opts := tx.Options{
		Priority: tx.PriorityNormal,
		ReadOnly: true,
		Metadata: map[string]any{"op": "get_active_session"},
	}

	return s.txm.Execute(ctx, opts, func(ctx context.Context) (any, error) {
		vehicle, err := s.vehicles.GetByPlate(ctx, NormalizePlate(plate))
		if err != nil {
			return nil, err
		}
		return s.sessions.FindActiveByVehicle(ctx, vehicle.ID)
	})
}

// ListSpotsByStatus returns all spots in the given status, read-only.
func (s *Service) ListSpotsByStatus(ctx context.Context, status SpotStatus) tx.Result {
	opts := tx.Options{
		Priority: tx.PriorityLow,
		ReadOnly: true,
		Metadata: map[string]any{"op": "list_spots", "status": string(status)},
	}

	return s.txm.Execute(ctx, opts, func(ctx context.Context) (any, error) {
		if !ValidSpotStatus(status) {
			return nil, apperror.NewValidation("invalid spot status").
				WithDetail("status", string(status))
		}
		return s.spots.ListByStatus(ctx, status)
	})
}

// ListActiveSessions returns all active sessions, read-only.
func (s *Service) ListActiveSessions(ctx context.Context) tx.Result {
	opts := tx.Options{
		Priority: tx.PriorityLow,
		ReadOnly: true,
		Metadata: map[string]any{"op": "list_active_sessions"},
	}

	return s.txm.Execute(ctx, opts, func(ctx context.Context) (any, error) {
		return s.sessions.ListActive(ctx)
	})
}
