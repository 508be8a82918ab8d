// Package domain contains core business entities and types for emergency blood
// donor matching: candidate ranking, match persistence, and notification
// escalation for urgent transfusion requests.
package domain

import (
	"errors"
)

// UrgencyLevel represents the severity tier of an emergency request.
// It drives both ranking weights and notification pacing.
type UrgencyLevel string

const (
	URGENCY_NORMAL   UrgencyLevel = "NORMAL"
	URGENCY_HIGH     UrgencyLevel = "HIGH"
	URGENCY_CRITICAL UrgencyLevel = "CRITICAL"
)

// BloodType represents an ABO/Rh blood group.
type BloodType string

const (
	BLOOD_O_NEG  BloodType = "O-"
	BLOOD_O_POS  BloodType = "O+"
	BLOOD_A_NEG  BloodType = "A-"
	BLOOD_A_POS  BloodType = "A+"
	BLOOD_B_NEG  BloodType = "B-"
	BLOOD_B_POS  BloodType = "B+"
	BLOOD_AB_NEG BloodType = "AB-"
	BLOOD_AB_POS BloodType = "AB+"
)

// ProviderTag identifies which ranker produced a scored match.
type ProviderTag string

const (
	PROVIDER_NONE      ProviderTag = "NONE"
	PROVIDER_OPENAI    ProviderTag = "OPENAI"
	PROVIDER_GEMINI    ProviderTag = "GEMINI"
	PROVIDER_OLLAMA    ProviderTag = "OLLAMA"
	PROVIDER_HEURISTIC ProviderTag = "HEURISTIC"
)

// ResponseState represents a donor's response to a match notification.
// A record transitions out of PENDING at most once.
type ResponseState string

const (
	RESPONSE_PENDING  ResponseState = "PENDING"
	RESPONSE_ACCEPTED ResponseState = "ACCEPTED"
	RESPONSE_DECLINED ResponseState = "DECLINED"
)

// WavePriority labels a notification wave for the delivery channel.
type WavePriority string

const (
	PRIORITY_CRITICAL WavePriority = "CRITICAL"
	PRIORITY_URGENT   WavePriority = "URGENT"
	PRIORITY_HIGH     WavePriority = "HIGH"
	PRIORITY_STANDARD WavePriority = "STANDARD"
)

// Validation errors for emergency-path data integrity
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidUrgency   = errors.New("invalid urgency level")
	ErrInvalidBloodType = errors.New("invalid blood type")
	ErrInvalidResponse  = errors.New("invalid response state")
	ErrAlreadyResponded = errors.New("donor has already responded to this match")
	ErrNoCandidates     = errors.New("no compatible candidates found")
)

// IsValid validates the urgency level.
func (u UrgencyLevel) IsValid() bool {
	switch u {
	case URGENCY_NORMAL, URGENCY_HIGH, URGENCY_CRITICAL:
		return true
	default:
		return false
	}
}

// String returns the string representation of the urgency level.
func (u UrgencyLevel) String() string {
	return string(u)
}

// Rank returns the ordering weight of the urgency level.
// Total order: Critical > High > Normal.
func (u UrgencyLevel) Rank() int {
	switch u {
	case URGENCY_CRITICAL:
		return 3
	case URGENCY_HIGH:
		return 2
	case URGENCY_NORMAL:
		return 1
	default:
		return 0
	}
}

// IsValid validates the blood type.
func (bt BloodType) IsValid() bool {
	switch bt {
	case BLOOD_O_NEG, BLOOD_O_POS, BLOOD_A_NEG, BLOOD_A_POS,
		BLOOD_B_NEG, BLOOD_B_POS, BLOOD_AB_NEG, BLOOD_AB_POS:
		return true
	default:
		return false
	}
}

// String returns the string representation of the blood type.
func (bt BloodType) String() string {
	return string(bt)
}

// IsUniversalDonor reports whether the blood type is O-negative,
// transfusable to any recipient.
func (bt BloodType) IsUniversalDonor() bool {
	return bt == BLOOD_O_NEG
}

// IsValid validates the provider tag.
func (pt ProviderTag) IsValid() bool {
	switch pt {
	case PROVIDER_NONE, PROVIDER_OPENAI, PROVIDER_GEMINI, PROVIDER_OLLAMA, PROVIDER_HEURISTIC:
		return true
	default:
		return false
	}
}

// String returns the string representation of the provider tag.
func (pt ProviderTag) String() string {
	return string(pt)
}

// IsValid validates the response state.
func (rs ResponseState) IsValid() bool {
	switch rs {
	case RESPONSE_PENDING, RESPONSE_ACCEPTED, RESPONSE_DECLINED:
		return true
	default:
		return false
	}
}

// String returns the string representation of the response state.
func (rs ResponseState) String() string {
	return string(rs)
}

// IsTerminal reports whether the state ends the donor-response state machine.
func (rs ResponseState) IsTerminal() bool {
	return rs == RESPONSE_ACCEPTED || rs == RESPONSE_DECLINED
}

// IsValid validates the wave priority label.
func (wp WavePriority) IsValid() bool {
	switch wp {
	case PRIORITY_CRITICAL, PRIORITY_URGENT, PRIORITY_HIGH, PRIORITY_STANDARD:
		return true
	default:
		return false
	}
}
