package dto

import (
	"time"

	"parkcore/internal/core/apperror"
	"parkcore/internal/core/id"
	"parkcore/internal/core/tx"
	"parkcore/internal/domain/parking"
)

// ParkRequest for claiming a spot.
type ParkRequest struct {
	Plate        string     `json:"plate" binding:"required"`
	VehicleClass string     `json:"vehicleClass" binding:"required"`
	SpotID       string     `json:"spotId" binding:"required,uuid"`
	OwnerName    string     `json:"ownerName"`
	OwnerPhone   string     `json:"ownerPhone"`
	EntryTime    *time.Time `json:"entryTime"`
	Priority     string     `json:"priority" binding:"omitempty,oneof=LOW NORMAL HIGH"`
}

// ToService converts the request into the domain form.
func (r ParkRequest) ToService() (parking.ParkRequest, error) {
	spotID, err := id.Parse(r.SpotID)
	if err != nil {
		return parking.ParkRequest{}, apperror.NewValidation("invalid spot id").
			WithDetail("spotId", r.SpotID)
	}
	return parking.ParkRequest{
		Vehicle: parking.VehicleInput{
			Plate:      r.Plate,
			Class:      parking.VehicleClass(r.VehicleClass),
			OwnerName:  r.OwnerName,
			OwnerPhone: r.OwnerPhone,
		},
		SpotID:    spotID,
		EntryTime: r.EntryTime,
		Priority:  tx.Priority(r.Priority),
	}, nil
}

// ExitRequest for completing a stay.
type ExitRequest struct {
	Plate    string     `json:"plate" binding:"required"`
	ExitTime *time.Time `json:"exitTime"`
	Priority string     `json:"priority" binding:"omitempty,oneof=LOW NORMAL HIGH"`
}

// ToService converts the request into the domain form.
func (r ExitRequest) ToService() parking.ExitRequest {
	return parking.ExitRequest{
		Plate:    r.Plate,
		ExitTime: r.ExitTime,
		Priority: tx.Priority(r.Priority),
	}
}

// TransferRequest for moving an active session between spots.
type TransferRequest struct {
	FromSpotID string         `json:"fromSpotId" binding:"required,uuid"`
	ToSpotID   string         `json:"toSpotId" binding:"required,uuid"`
	Reason     string         `json:"reason"`
	Metadata   map[string]any `json:"metadata"`
	Priority   string         `json:"priority" binding:"omitempty,oneof=LOW NORMAL HIGH"`
}

// ToService converts the request into the domain form.
func (r TransferRequest) ToService() (parking.TransferRequest, error) {
	fromID, err := id.Parse(r.FromSpotID)
	if err != nil {
		return parking.TransferRequest{}, apperror.NewValidation("invalid source spot id").
			WithDetail("fromSpotId", r.FromSpotID)
	}
	toID, err := id.Parse(r.ToSpotID)
	if err != nil {
		return parking.TransferRequest{}, apperror.NewValidation("invalid destination spot id").
			WithDetail("toSpotId", r.ToSpotID)
	}
	return parking.TransferRequest{
		FromSpotID: fromID,
		ToSpotID:   toID,
		Reason:     r.Reason,
		Metadata:   r.Metadata,
		Priority:   tx.Priority(r.Priority),
	}, nil
}

// BulkUpdateStatusRequest for maintenance sweeps over many spots.
type BulkUpdateStatusRequest struct {
	SpotIDs      []string `json:"spotIds" binding:"required,min=1,dive,uuid"`
	TargetStatus string   `json:"targetStatus" binding:"required"`
	Reason       string   `json:"reason"`
}

// ToService converts the request into the domain form.
func (r BulkUpdateStatusRequest) ToService() (parking.BulkUpdateRequest, error) {
	ids := make([]id.ID, 0, len(r.SpotIDs))
	for _, raw := range r.SpotIDs {
		spotID, err := id.Parse(raw)
		if err != nil {
			return parking.BulkUpdateRequest{}, apperror.NewValidation("invalid spot id").
				WithDetail("spotId", raw)
		}
		ids = append(ids, spotID)
	}
	return parking.BulkUpdateRequest{
		SpotIDs:      ids,
		TargetStatus: parking.SpotStatus(r.TargetStatus),
		Reason:       r.Reason,
	}, nil
}

// ProvisionSpotInput describes one spot to create.
type ProvisionSpotInput struct {
	Code       string `json:"code" binding:"required"`
	Class      string `json:"class" binding:"required"`
	Garage     string `json:"garage"`
	Floor      int    `json:"floor"`
	Bay        int    `json:"bay"`
	HourlyRate string `json:"hourlyRate" binding:"required"`
}

// ProvisionSpotsRequest creates spots in bulk.
type ProvisionSpotsRequest struct {
	Spots []ProvisionSpotInput `json:"spots" binding:"required,min=1,dive"`
}

// ToService converts the request into the domain form.
func (r ProvisionSpotsRequest) ToService() []parking.SpotInput {
	inputs := make([]parking.SpotInput, 0, len(r.Spots))
	for _, s := range r.Spots {
		inputs = append(inputs, parking.SpotInput{
			Code:       s.Code,
			Class:      parking.SpotClass(s.Class),
			Garage:     s.Garage,
			Floor:      s.Floor,
			Bay:        s.Bay,
			HourlyRate: s.HourlyRate,
		})
	}
	return inputs
}
