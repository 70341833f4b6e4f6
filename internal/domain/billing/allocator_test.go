package billing

import (
	"math"
	"testing"

	"github.com/clinio/clinio/internal/httperr"
)

func TestAllocateReferenceSplit(t *testing.T) {
	a := NewAllocator(DefaultRates())
	split, err := a.Allocate(1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if split.PlatformFee != 30 {
		t.Errorf("platform = %v, want 30", split.PlatformFee)
	}
	if split.AdminEarnings != 388 {
		t.Errorf("admin = %v, want 388", split.AdminEarnings)
	}
	if split.TherapistEarnings != 388 {
		t.Errorf("therapist = %v, want 388", split.TherapistEarnings)
	}
	if split.DoctorEarnings != 194 {
		t.Errorf("doctor = %v, want 194", split.DoctorEarnings)
	}
	if split.TotalFee != 1000 {
		t.Errorf("total = %v, want 1000", split.TotalFee)
	}
}

func TestAllocatePartsSumToTotal(t *testing.T) {
	a := NewAllocator(DefaultRates())
	fees := []float64{0, 0.01, 1, 49.50, 99.99, 123.45, 1000, 2500.75, 33333.33}
	for _, fee := range fees {
		split, err := a.Allocate(fee)
		if err != nil {
			t.Fatalf("fee %v: %v", fee, err)
		}
		sum := split.PlatformFee + split.AdminEarnings + split.TherapistEarnings + split.DoctorEarnings
		if math.Abs(sum-fee) > 1e-9 {
			t.Errorf("fee %v: parts sum to %v", fee, sum)
		}
		for _, part := range []float64{split.PlatformFee, split.AdminEarnings, split.TherapistEarnings} {
			cents := part * 100
			if math.Abs(cents-math.Round(cents)) > 1e-6 {
				t.Errorf("fee %v: part %v is not a whole number of cents", fee, part)
			}
		}
	}
}

func TestAllocateNegativeFee(t *testing.T) {
	a := NewAllocator(DefaultRates())
	if _, err := a.Allocate(-0.01); !httperr.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestAllocateZeroFee(t *testing.T) {
	a := NewAllocator(DefaultRates())
	split, err := a.Allocate(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if split.PlatformFee != 0 || split.AdminEarnings != 0 || split.TherapistEarnings != 0 || split.DoctorEarnings != 0 {
		t.Errorf("zero fee must split to zeros, got %+v", split)
	}
}

func TestAllocateCustomRates(t *testing.T) {
	a := NewAllocator(Rates{Platform: 0.10, AdminShare: 0.50, TherapistShare: 0.25})
	split, err := a.Allocate(200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if split.PlatformFee != 20 || split.AdminEarnings != 90 || split.TherapistEarnings != 45 || split.DoctorEarnings != 45 {
		t.Errorf("split = %+v, want 20/90/45/45", split)
	}
}

func TestRound2HalfAwayFromZero(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{2.375, 2.38},
		{-2.375, -2.38},
		{1.25, 1.25},
		{1.234, 1.23},
		{1.236, 1.24},
		{0, 0},
	}
	for _, tt := range tests {
		if got := round2(tt.in); got != tt.want {
			t.Errorf("round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
