package domain

import (
	"errors"
	"fmt"
	"time"
)

// DonorCandidate is an immutable snapshot of a compatible donor returned by
// the candidate search for a single emergency request. The matching core
// never mutates it.
type DonorCandidate struct {
	DonorID       string     `json:"donor_id"`
	BloodType     BloodType  `json:"blood_type"`
	DistanceKm    float64    `json:"distance_km"`
	DonationCount int        `json:"donation_count"`
	LastDonation  *time.Time `json:"last_donation,omitempty"`
	Available     bool       `json:"available"`
}

// Validate ensures the candidate snapshot is usable for ranking.
func (dc *DonorCandidate) Validate() error {
	if dc.DonorID == "" {
		return fmt.Errorf("donor candidate validation: %w", errors.New("donor ID is required"))
	}
	if !dc.BloodType.IsValid() {
		return fmt.Errorf("donor candidate validation: %w", ErrInvalidBloodType)
	}
	if dc.DistanceKm < 0 {
		return fmt.Errorf("donor candidate validation: %w", errors.New("distance must be non-negative"))
	}
	if dc.DonationCount < 0 {
		return fmt.Errorf("donor candidate validation: %w", errors.New("donation count must be non-negative"))
	}
	return nil
}

// ScoredMatch is one donor's ranked suitability for an emergency request.
// Confidence is always within [0,100] once it leaves the ranking pipeline.
type ScoredMatch struct {
	DonorID          string      `json:"donor_id"`
	Confidence       int         `json:"confidence"`
	EstimatedMinutes int         `json:"estimated_minutes"`
	Reasoning        []string    `json:"reasoning,omitempty"`
	Provider         ProviderTag `json:"provider"`

	// Echoed from the candidate for audit trails.
	DistanceKm    float64 `json:"distance_km,omitempty"`
	DonationCount int     `json:"donation_count,omitempty"`
}

// ClampScore bounds an arbitrary provider score to the valid confidence range.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// MatchRecord is the persisted form of a ScoredMatch bound to a request.
// Its donor-response state machine is Pending -> {Accepted | Declined},
// set at most once.
type MatchRecord struct {
	ID            string        `json:"id"`
	RequestID     string        `json:"request_id"`
	Match         ScoredMatch   `json:"match"`
	ResponseState ResponseState `json:"response_state"`
	RespondedAt   *time.Time    `json:"responded_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ApplyResponse transitions the record's donor-response state. A second
// transition attempt is rejected with ErrAlreadyResponded; callers report it
// rather than overwriting the earlier response.
func (mr *MatchRecord) ApplyResponse(state ResponseState, at time.Time) error {
	if !state.IsTerminal() {
		return fmt.Errorf("match record transition: %w", ErrInvalidResponse)
	}
	if mr.ResponseState.IsTerminal() {
		return fmt.Errorf("match record transition: %w", ErrAlreadyResponded)
	}
	mr.ResponseState = state
	mr.RespondedAt = &at
	return nil
}

// NotificationWave is a timed batch of notifications for a subset of ranked
// donors. It is consumed by the delivery channel and not itself persisted;
// dispatch outcomes go to the audit log.
type NotificationWave struct {
	RequestID string       `json:"request_id"`
	Number    int          `json:"number"`
	Priority  WavePriority `json:"priority"`
	DonorIDs  []string     `json:"donor_ids"`
	FireAt    time.Time    `json:"fire_at"`
	Title     string       `json:"title"`
	Message   string       `json:"message"`
}

// EmergencyRequest describes an urgent blood request entering the matcher.
type EmergencyRequest struct {
	RequestID   string       `json:"request_id"`
	RequesterID string       `json:"requester_id"`
	PatientName string       `json:"patient_name"`
	BloodType   BloodType    `json:"blood_type"`
	UnitsNeeded int          `json:"units_needed"`
	Urgency     UrgencyLevel `json:"urgency"`
	Latitude    float64      `json:"latitude"`
	Longitude   float64      `json:"longitude"`
	RadiusKm    float64      `json:"radius_km"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Validate ensures the request can drive the emergency matching path.
func (er *EmergencyRequest) Validate() error {
	if er.RequesterID == "" {
		return fmt.Errorf("emergency request validation: %w", errors.New("requester ID is required"))
	}
	if !er.BloodType.IsValid() {
		return fmt.Errorf("emergency request validation: %w", ErrInvalidBloodType)
	}
	if !er.Urgency.IsValid() {
		return fmt.Errorf("emergency request validation: %w", ErrInvalidUrgency)
	}
	if er.UnitsNeeded <= 0 {
		return fmt.Errorf("emergency request validation: %w", errors.New("units needed must be positive"))
	}
	if er.Latitude < -90 || er.Latitude > 90 {
		return fmt.Errorf("emergency request validation: %w", errors.New("latitude out of range"))
	}
	if er.Longitude < -180 || er.Longitude > 180 {
		return fmt.Errorf("emergency request validation: %w", errors.New("longitude out of range"))
	}
	return nil
}

// MatchSummary is the structured result returned to the requester. The
// emergency path always produces one, even when everything upstream failed.
type MatchSummary struct {
	RequestID             string        `json:"request_id"`
	MatchesFound          int           `json:"matches_found"`
	EstimatedResponseTime int           `json:"estimated_response_time_minutes"`
	TopMatches            []ScoredMatch `json:"top_matches"`
	ProcessingTimeMs      int64         `json:"processing_time_ms"`
	Provider              ProviderTag   `json:"provider"`
	WavesScheduled        int           `json:"waves_scheduled"`
}
