package service

import (
	"math"
	"time"

	"github.com/emergency-match-server/internal/domain"
)

const (
	heuristicBaseScore = 50.0

	// Donors who gave blood less than 56 days ago are medically ineligible.
	ineligibleWindow = 56 * 24 * time.Hour
	// Donors whose last donation is over a year old get a mild staleness penalty.
	stalenessWindow = 365 * 24 * time.Hour

	heuristicReason = "Rule-based scoring from distance, donation history and blood type"

	// Optional jitter on the response-time estimate stays within this bound.
	maxJitterMinutes = 10
)

// JitterFunc produces a deterministic, seedable response-time jitter for a
// donor. Results outside [-10, 10] minutes are clamped.
type JitterFunc func(donorID string) int

// HeuristicRanker is the deterministic terminal fallback scorer. It never
// fails and always produces a score for any candidate, so the ranking
// pipeline can guarantee a non-empty result for non-empty input.
type HeuristicRanker struct {
	now    func() time.Time
	jitter JitterFunc
}

// NewHeuristicRanker creates the rule-based scorer. A nil jitter keeps the
// response-time estimate fully deterministic.
func NewHeuristicRanker(jitter JitterFunc) *HeuristicRanker {
	return &HeuristicRanker{
		now:    time.Now,
		jitter: jitter,
	}
}

// Score computes a candidate's suitability for the given urgency.
//
// The formula is fixed so results are exactly reproducible:
//
//	base 50
//	+ max(0, 30 - distance_km)
//	+ min(25, donation_count * 2.5)
//	- 20 if last donation < 56 days ago, - 5 if > 365 days ago
//	+ 15 if urgency is Critical and donation_count >= 5
//	+ 10 for O-, + 5 for O+
//	clamped to [0, 100]
//
// Estimated response minutes: 20 + distance_km * 1.2, plus bounded jitter
// when configured, never negative.
func (h *HeuristicRanker) Score(candidate domain.DonorCandidate, urgency domain.UrgencyLevel) domain.ScoredMatch {
	score := heuristicBaseScore

	score += math.Max(0, 30-candidate.DistanceKm)
	score += math.Min(25, float64(candidate.DonationCount)*2.5)

	if candidate.LastDonation != nil {
		sinceLast := h.now().Sub(*candidate.LastDonation)
		if sinceLast < ineligibleWindow {
			score -= 20
		} else if sinceLast > stalenessWindow {
			score -= 5
		}
	}

	if urgency == domain.URGENCY_CRITICAL && candidate.DonationCount >= 5 {
		score += 15
	}

	switch candidate.BloodType {
	case domain.BLOOD_O_NEG:
		score += 10
	case domain.BLOOD_O_POS:
		score += 5
	}

	minutes := int(math.Round(20 + candidate.DistanceKm*1.2))
	if h.jitter != nil {
		j := h.jitter(candidate.DonorID)
		if j > maxJitterMinutes {
			j = maxJitterMinutes
		} else if j < -maxJitterMinutes {
			j = -maxJitterMinutes
		}
		minutes += j
	}
	if minutes < 0 {
		minutes = 0
	}

	return domain.ScoredMatch{
		DonorID:          candidate.DonorID,
		Confidence:       domain.ClampScore(int(math.Round(score))),
		EstimatedMinutes: minutes,
		Reasoning:        []string{heuristicReason},
		Provider:         domain.PROVIDER_HEURISTIC,
		DistanceKm:       candidate.DistanceKm,
		DonationCount:    candidate.DonationCount,
	}
}

// ScoreAll scores every candidate independently.
func (h *HeuristicRanker) ScoreAll(candidates []domain.DonorCandidate, urgency domain.UrgencyLevel) []domain.ScoredMatch {
	matches := make([]domain.ScoredMatch, 0, len(candidates))
	for _, candidate := range candidates {
		matches = append(matches, h.Score(candidate, urgency))
	}
	return matches
}
