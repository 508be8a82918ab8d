package domain

import (
	"context"
)

// ProviderRanking is one (index, score, minutes, reason) tuple adapted from a
// ranking provider's raw response. Index refers to the candidate slice passed
// to the provider.
type ProviderRanking struct {
	Index            int    `json:"index"`
	Score            int    `json:"score"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	Reason           string `json:"reason"`
}

// RankingProvider is a single external ranking service. Each provider has its
// own request/response schema but adapts the response side to a common tuple
// list. Providers are consulted in a fixed fallback order; one shot per call,
// no internal retries.
type RankingProvider interface {
	Tag() ProviderTag
	Rank(ctx context.Context, candidates []DonorCandidate, urgency UrgencyLevel) ([]ProviderRanking, error)
}

// CandidateSource is the black-box geospatial donor search. Consumed only;
// the search algorithm itself lives outside this service.
type CandidateSource interface {
	Find(ctx context.Context, bloodType BloodType, urgency UrgencyLevel, lat, lon, radiusKm float64) ([]DonorCandidate, error)
}

// MatchStore is the single source of truth for match records and donor
// response state. Only a donor action, routed through UpdateResponse, may
// transition Pending -> Accepted/Declined; everything else reads.
type MatchStore interface {
	Write(ctx context.Context, requestID string, matches []ScoredMatch) ([]MatchRecord, error)
	GetByRequest(ctx context.Context, requestID string) ([]MatchRecord, error)
	UpdateResponse(ctx context.Context, matchID string, state ResponseState) (*MatchRecord, error)
	HasAccepted(ctx context.Context, requestID string) (bool, error)
	// Subscribe streams match-record updates for a request until ctx is
	// cancelled. The returned channel is closed when the stream ends, which
	// may happen before ctx cancellation if the underlying feed disconnects;
	// callers resubscribe.
	Subscribe(ctx context.Context, requestID string) (<-chan MatchRecord, error)
}

// NotificationDelivery is the external push/SMS delivery channel. Fire and
// forget per donor; a failed send must not block the rest of a wave.
type NotificationDelivery interface {
	Send(ctx context.Context, donorID, title, message string, metadata map[string]string) error
}

// RequesterNotifier informs the original requester of an accepted match.
type RequesterNotifier interface {
	Notify(ctx context.Context, requesterID, message string) error
}

// NotifiedGuard records that a requester was notified for a request and
// reports whether this caller was the first to do so. Implementations must be
// safe across process restarts so a resubscribed monitor does not duplicate
// notifications.
type NotifiedGuard interface {
	MarkNotified(ctx context.Context, requestID string) (first bool, err error)
}
