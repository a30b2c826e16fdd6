package parking

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"parkcore/internal/core/apperror"
	"parkcore/internal/core/types"
)

// CompatibilityMatrix maps a vehicle class to the spot classes it may
// occupy. The matrix is a static policy input: a vehicle may only use a
// spot class that is large enough for it.
type CompatibilityMatrix map[VehicleClass][]SpotClass

// DefaultCompatibilityMatrix returns the standard policy.
func DefaultCompatibilityMatrix() CompatibilityMatrix {
	return CompatibilityMatrix{
		VehicleMotorcycle: {SpotMotorcycle, SpotCompact},
		VehicleCompact:    {SpotCompact, SpotStandard, SpotOversized},
		VehicleStandard:   {SpotStandard, SpotOversized},
		VehicleOversized:  {SpotOversized},
		VehicleElectric:   {SpotElectric, SpotStandard, SpotOversized},
		VehicleHandicap:   {SpotHandicap, SpotStandard, SpotOversized},
	}
}

// IsCompatible reports whether a vehicle of the given class may occupy
// a spot of the given class.
func (m CompatibilityMatrix) IsCompatible(vc VehicleClass, sc SpotClass) bool {
	for _, allowed := range m[vc] {
		if allowed == sc {
			return true
		}
	}
	return false
}

// Fee is the billing outcome of a completed stay.
type Fee struct {
	Hours  int64       `json:"hours"`
	Amount types.Money `json:"amount"`
}

// ComputeFee calculates the fee for a stay: duration rounded up to whole
// billable hours with a floor of one hour, times the hourly rate,
// rounded to 2 decimal places.
func ComputeFee(entryTime, exitTime time.Time, hourlyRate types.Money) (Fee, error) {
	if !exitTime.After(entryTime) {
		return Fee{}, apperror.NewValidation("exit time must be after entry time").
			WithDetail("entryTime", entryTime).
			WithDetail("exitTime", exitTime)
	}
	if hourlyRate.Sign() <= 0 {
		return Fee{}, apperror.NewValidation("hourly rate must be positive").
			WithDetail("hourlyRate", hourlyRate.String())
	}

	minutes := exitTime.Sub(entryTime).Minutes()
	hours := int64(math.Ceil(minutes / 60))
	if hours < 1 {
		hours = 1
	}

	amount := types.RoundMoney(hourlyRate.Mul(decimal.NewFromInt(hours)))
	return Fee{Hours: hours, Amount: amount}, nil
}
