package billing

import (
	"math"

	"github.com/clinio/clinio/internal/httperr"
)

// Rates parameterises the revenue split. Platform is a fraction of the
// total fee; AdminShare and TherapistShare are fractions of what remains
// after the platform cut. The doctor receives whatever is left.
type Rates struct {
	Platform       float64
	AdminShare     float64
	TherapistShare float64
}

// DefaultRates mirrors the shipped configuration defaults.
func DefaultRates() Rates {
	return Rates{Platform: 0.03, AdminShare: 0.40, TherapistShare: 0.40}
}

// Allocator splits appointment fees between the platform, the clinic
// admin, the therapist and the doctor.
type Allocator struct {
	rates Rates
}

func NewAllocator(rates Rates) *Allocator {
	return &Allocator{rates: rates}
}

// Allocate splits totalFee. Each named cut is rounded to cents; the
// doctor's share is the unrounded remainder so the parts always sum back
// to the total.
func (a *Allocator) Allocate(totalFee float64) (FeeSplit, error) {
	if totalFee < 0 {
		return FeeSplit{}, httperr.Validationf("total_fee must not be negative")
	}
	platform := round2(totalFee * a.rates.Platform)
	distributable := totalFee - platform
	admin := round2(distributable * a.rates.AdminShare)
	therapist := round2(distributable * a.rates.TherapistShare)
	return FeeSplit{
		TotalFee:          totalFee,
		PlatformFee:       platform,
		AdminEarnings:     admin,
		TherapistEarnings: therapist,
		DoctorEarnings:    distributable - admin - therapist,
	}, nil
}

// round2 rounds to two decimals, halves away from zero.
func round2(x float64) float64 {
	if x < 0 {
		return -math.Floor(-x*100+0.5) / 100
	}
	return math.Floor(x*100+0.5) / 100
}
