package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/emergency-match-server/internal/domain"
)

// Only the strongest matches are echoed back to the requester.
const summaryTopMatches = 5

// MatchOrchestrator drives the full emergency path: candidate search,
// ranking, persistence, notification escalation and response monitoring.
// After input validation it never hard-fails; every downstream degradation
// is absorbed and the requester still gets a summary.
type MatchOrchestrator struct {
	logger    *logrus.Logger
	source    domain.CandidateSource
	pipeline  *RankingPipeline
	store     domain.MatchStore
	escalator *NotificationEscalator
	monitor   *ResponseMonitor
}

// NewMatchOrchestrator wires the emergency matching path.
func NewMatchOrchestrator(
	logger *logrus.Logger,
	source domain.CandidateSource,
	pipeline *RankingPipeline,
	store domain.MatchStore,
	escalator *NotificationEscalator,
	monitor *ResponseMonitor,
) *MatchOrchestrator {
	return &MatchOrchestrator{
		logger:    logger,
		source:    source,
		pipeline:  pipeline,
		store:     store,
		escalator: escalator,
		monitor:   monitor,
	}
}

// ProcessEmergencyRequest runs an emergency request end to end and returns
// the match summary. The only error it returns is input validation; all
// downstream failures degrade to a summary with whatever was achieved.
func (o *MatchOrchestrator) ProcessEmergencyRequest(ctx context.Context, req domain.EmergencyRequest) (*domain.MatchSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	start := time.Now()
	log := o.logger.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"blood_type": string(req.BloodType),
		"urgency":    req.Urgency.String(),
	})
	log.Info("Processing emergency request")

	candidates, err := o.fetchCandidates(ctx, req)
	if err != nil {
		log.WithError(err).Error("Candidate search failed, returning empty summary")
		return o.buildSummary(req, nil, domain.PROVIDER_NONE, 0, start), nil
	}
	if len(candidates) == 0 {
		log.Warn("No compatible donors found in radius")
		return o.buildSummary(req, nil, domain.PROVIDER_NONE, 0, start), nil
	}

	matches, provider := o.pipeline.Rank(ctx, candidates, req.Urgency)

	if _, err := o.store.Write(ctx, req.RequestID, matches); err != nil {
		// Matches survive in memory; escalation still proceeds.
		log.WithError(err).Error("Failed to persist match records")
	}

	waves := o.escalator.Schedule(req, matches)
	o.monitor.Watch(req)

	summary := o.buildSummary(req, matches, provider, len(waves), start)
	log.WithFields(logrus.Fields{
		"matches":       summary.MatchesFound,
		"provider":      provider.String(),
		"waves":         len(waves),
		"processing_ms": summary.ProcessingTimeMs,
	}).Info("Emergency request processed")
	return summary, nil
}

// Matches returns the persisted match records for a request.
func (o *MatchOrchestrator) Matches(ctx context.Context, requestID string) ([]domain.MatchRecord, error) {
	records, err := o.store.GetByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load matches for request %s: %w", requestID, err)
	}
	return records, nil
}

// RecordDonorResponse applies a donor's accept/decline to a match record.
// The store enforces the set-at-most-once response state machine; the
// monitor picks up the change through its subscription.
func (o *MatchOrchestrator) RecordDonorResponse(ctx context.Context, matchID string, state domain.ResponseState) (*domain.MatchRecord, error) {
	if !state.IsTerminal() {
		return nil, domain.ErrInvalidResponse
	}

	rec, err := o.store.UpdateResponse(ctx, matchID, state)
	if err != nil {
		return nil, err
	}

	o.logger.WithFields(logrus.Fields{
		"request_id": rec.RequestID,
		"match_id":   rec.ID,
		"donor_id":   rec.Match.DonorID,
		"state":      state.String(),
	}).Info("Donor response recorded")
	return rec, nil
}

// fetchCandidates queries the donor search and drops unusable entries
// instead of failing the whole request over one bad row.
func (o *MatchOrchestrator) fetchCandidates(ctx context.Context, req domain.EmergencyRequest) ([]domain.DonorCandidate, error) {
	found, err := o.source.Find(ctx, req.BloodType, req.Urgency, req.Latitude, req.Longitude, req.RadiusKm)
	if err != nil {
		return nil, &domain.CandidateFetchError{Err: err}
	}

	candidates := make([]domain.DonorCandidate, 0, len(found))
	for _, c := range found {
		if !c.Available {
			continue
		}
		if err := c.Validate(); err != nil {
			o.logger.WithError(err).WithFields(logrus.Fields{
				"request_id": req.RequestID,
				"donor_id":   c.DonorID,
			}).Warn("Dropping invalid donor candidate")
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func (o *MatchOrchestrator) buildSummary(req domain.EmergencyRequest, matches []domain.ScoredMatch, provider domain.ProviderTag, waves int, start time.Time) *domain.MatchSummary {
	top := matches
	if len(top) > summaryTopMatches {
		top = top[:summaryTopMatches]
	}

	eta := 0
	if len(matches) > 0 {
		eta = matches[0].EstimatedMinutes
	}

	return &domain.MatchSummary{
		RequestID:             req.RequestID,
		MatchesFound:          len(matches),
		EstimatedResponseTime: eta,
		TopMatches:            top,
		ProcessingTimeMs:      time.Since(start).Milliseconds(),
		Provider:              provider,
		WavesScheduled:        waves,
	}
}
