package billing

import (
	"time"

	"github.com/google/uuid"
)

// Parties that money is split between. A completed appointment carries one
// earnings column per party.
const (
	PartyPlatform  = "platform"
	PartyAdmin     = "admin"
	PartyTherapist = "therapist"
	PartyDoctor    = "doctor"
)

var validParties = map[string]bool{
	PartyPlatform:  true,
	PartyAdmin:     true,
	PartyTherapist: true,
	PartyDoctor:    true,
}

// FeeSplit is the outcome of allocating a total fee across all parties.
// The parts always sum back to TotalFee.
type FeeSplit struct {
	TotalFee          float64 `json:"total_fee"`
	PlatformFee       float64 `json:"platform_fee"`
	AdminEarnings     float64 `json:"admin_earnings"`
	TherapistEarnings float64 `json:"therapist_earnings"`
	DoctorEarnings    float64 `json:"doctor_earnings"`
}

// EarningsReport summarises one party's take over completed appointments
// in [From, To).
type EarningsReport struct {
	Party            string     `json:"party"`
	TherapistID      *uuid.UUID `json:"therapist_id,omitempty"`
	From             time.Time  `json:"from"`
	To               time.Time  `json:"to"`
	AppointmentCount int        `json:"appointment_count"`
	Total            float64    `json:"total"`
}
