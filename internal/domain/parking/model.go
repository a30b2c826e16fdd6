// Package parking holds the parking domain: spots, vehicles, sessions,
// the compatibility/fee rules and the orchestrating service.
package parking

import (
	"strings"
	"time"

	"parkcore/internal/core/apperror"
	"parkcore/internal/core/id"
	"parkcore/internal/core/types"
)

// SpotClass categorizes a physical parking location by size/equipment.
type SpotClass string

const (
	SpotCompact    SpotClass = "COMPACT"
	SpotStandard   SpotClass = "STANDARD"
	SpotOversized  SpotClass = "OVERSIZED"
	SpotElectric   SpotClass = "ELECTRIC"
	SpotHandicap   SpotClass = "HANDICAP"
	SpotMotorcycle SpotClass = "MOTORCYCLE"
)

// SpotStatus is the lifecycle state of a spot.
type SpotStatus string

const (
	SpotAvailable   SpotStatus = "AVAILABLE"
	SpotOccupied    SpotStatus = "OCCUPIED"
	SpotMaintenance SpotStatus = "MAINTENANCE"
	SpotOutOfOrder  SpotStatus = "OUT_OF_ORDER"
)

// VehicleClass categorizes a registered vehicle.
type VehicleClass string

const (
	VehicleMotorcycle VehicleClass = "MOTORCYCLE"
	VehicleCompact    VehicleClass = "COMPACT"
	VehicleStandard   VehicleClass = "STANDARD"
	VehicleOversized  VehicleClass = "OVERSIZED"
	VehicleElectric   VehicleClass = "ELECTRIC"
	VehicleHandicap   VehicleClass = "HANDICAP"
)

// VehicleStatus is the registration state of a plate.
type VehicleStatus string

const (
	VehicleActive   VehicleStatus = "ACTIVE"
	VehicleBlocked  VehicleStatus = "BLOCKED"
	VehicleBanned   VehicleStatus = "BANNED"
	VehicleInactive VehicleStatus = "INACTIVE"
)

// SessionStatus is the lifecycle state of one parking stay.
type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionExpired   SessionStatus = "EXPIRED"
	SessionCancelled SessionStatus = "CANCELLED"
	SessionAbandoned SessionStatus = "ABANDONED"
)

// RateType names the tariff applied to a session.
type RateType string

const (
	RateHourly RateType = "HOURLY"
)

// Spot is a physical parking location.
// Status == OCCUPIED if and only if exactly one active session
// references this spot; the invariant is owned by the Service and
// physically backed by a partial unique index on sessions.
type Spot struct {
	ID         id.ID       `db:"id" json:"id"`
	Code       string      `db:"code" json:"code"`
	Class      SpotClass   `db:"class" json:"class"`
	Status     SpotStatus  `db:"status" json:"status"`
	OccupantID *id.ID      `db:"occupant_id" json:"occupantId,omitempty"`
	Garage     string      `db:"garage" json:"garage"`
	Floor      int         `db:"floor" json:"floor"`
	Bay        int         `db:"bay" json:"bay"`
	HourlyRate types.Money `db:"hourly_rate" json:"hourlyRate"`
	Version    int         `db:"version" json:"version"`
	CreatedAt  time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updatedAt"`
}

// Vehicle is a registered plate. Created on first park if unseen.
type Vehicle struct {
	ID         id.ID         `db:"id" json:"id"`
	Plate      string        `db:"plate" json:"plate"`
	Class      VehicleClass  `db:"class" json:"class"`
	Status     VehicleStatus `db:"status" json:"status"`
	OwnerName  *string       `db:"owner_name" json:"ownerName,omitempty"`
	OwnerPhone *string       `db:"owner_phone" json:"ownerPhone,omitempty"`
	Version    int           `db:"version" json:"version"`
	CreatedAt  time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updatedAt"`
}

// Session is one continuous parking stay linking a vehicle to a spot.
// Immutable once COMPLETED or CANCELLED.
type Session struct {
	ID              id.ID         `db:"id" json:"id"`
	VehicleID       id.ID         `db:"vehicle_id" json:"vehicleId"`
	SpotID          id.ID         `db:"spot_id" json:"spotId"`
	Status          SessionStatus `db:"status" json:"status"`
	EntryTime       time.Time     `db:"entry_time" json:"entryTime"`
	ExitTime        *time.Time    `db:"exit_time" json:"exitTime,omitempty"`
	DurationMinutes *int64        `db:"duration_minutes" json:"durationMinutes,omitempty"`
	RateType        RateType      `db:"rate_type" json:"rateType"`
	TotalFee        types.Money   `db:"total_fee" json:"totalFee"`
	Paid            bool          `db:"paid" json:"paid"`
	Version         int           `db:"version" json:"version"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updatedAt"`
}

// NewVehicle creates an active Vehicle for a normalized plate.
func NewVehicle(plate string, class VehicleClass) *Vehicle {
	now := time.Now().UTC()
	return &Vehicle{
		ID:        id.New(),
		Plate:     NormalizePlate(plate),
		Class:     class,
		Status:    VehicleActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewSession creates an active Session starting at entryTime.
func NewSession(vehicleID, spotID id.ID, entryTime time.Time) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id.New(),
		VehicleID: vehicleID,
		SpotID:    spotID,
		Status:    SessionActive,
		EntryTime: entryTime.UTC(),
		RateType:  RateHourly,
		TotalFee:  types.Zero(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NormalizePlate upper-cases and trims a license plate. Plates are
// matched case-insensitively everywhere; this is the canonical form.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

// Complete transitions the session to COMPLETED with the computed fee.
func (s *Session) Complete(exitTime time.Time, fee Fee) {
	exitTime = exitTime.UTC()
	minutes := int64(exitTime.Sub(s.EntryTime).Minutes())
	s.Status = SessionCompleted
	s.ExitTime = &exitTime
	s.DurationMinutes = &minutes
	s.TotalFee = fee.Amount
	s.UpdatedAt = time.Now().UTC()
}

// CanPark reports whether the vehicle's registration state allows a new
// session.
func (v *Vehicle) CanPark() bool {
	return v.Status == VehicleActive
}

// --- Enum validation ---

// ValidSpotStatus reports whether s is a known spot status.
func ValidSpotStatus(s SpotStatus) bool {
	switch s {
	case SpotAvailable, SpotOccupied, SpotMaintenance, SpotOutOfOrder:
		return true
	}
	return false
}

// ValidSpotClass reports whether c is a known spot class.
func ValidSpotClass(c SpotClass) bool {
	switch c {
	case SpotCompact, SpotStandard, SpotOversized, SpotElectric, SpotHandicap, SpotMotorcycle:
		return true
	}
	return false
}

// ValidVehicleClass reports whether c is a known vehicle class.
// Unknown classes are rejected at the boundary; there is no implicit
// default class.
func ValidVehicleClass(c VehicleClass) bool {
	switch c {
	case VehicleMotorcycle, VehicleCompact, VehicleStandard, VehicleOversized, VehicleElectric, VehicleHandicap:
		return true
	}
	return false
}

// ValidateVehicleInput checks plate and class before any storage access.
func ValidateVehicleInput(plate string, class VehicleClass) error {
	if NormalizePlate(plate) == "" {
		return apperror.NewValidation("license plate is required")
	}
	if !ValidVehicleClass(class) {
		return apperror.NewValidation("invalid vehicle class").
			WithDetail("field", "class").
			WithDetail("value", string(class))
	}
	return nil
}
