package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emergency-match-server/internal/domain"
)

const (
	// Providers only see the first candidates up to this cap, to bound
	// payload size and latency.
	defaultMaxSummarize = 15

	defaultCallTimeout = 8 * time.Second
)

// RankingPipeline turns a candidate list into a ranked list of scored
// matches. It tries a statically ordered list of external ranking providers,
// one shot each under a bounded timeout, and falls back to the heuristic
// ranker when every provider fails. It never returns an empty result for
// non-empty input.
type RankingPipeline struct {
	logger       *logrus.Logger
	providers    []domain.RankingProvider
	heuristic    *HeuristicRanker
	callTimeout  time.Duration
	maxSummarize int
}

// NewRankingPipeline creates a pipeline over the given provider chain. The
// slice order is the fallback order. Zero timeout and cap fall back to the
// defaults.
func NewRankingPipeline(
	logger *logrus.Logger,
	providers []domain.RankingProvider,
	heuristic *HeuristicRanker,
	callTimeout time.Duration,
	maxSummarize int,
) *RankingPipeline {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	if maxSummarize <= 0 {
		maxSummarize = defaultMaxSummarize
	}
	return &RankingPipeline{
		logger:       logger,
		providers:    providers,
		heuristic:    heuristic,
		callTimeout:  callTimeout,
		maxSummarize: maxSummarize,
	}
}

// Rank scores the candidates for the given urgency. Empty input
// short-circuits to an empty result with tag None and no provider calls. The
// returned tag identifies the provider whose ranking won the fallback chain.
func (p *RankingPipeline) Rank(ctx context.Context, candidates []domain.DonorCandidate, urgency domain.UrgencyLevel) ([]domain.ScoredMatch, domain.ProviderTag) {
	if len(candidates) == 0 {
		return nil, domain.PROVIDER_NONE
	}

	for _, provider := range p.providers {
		matches, err := p.tryProvider(ctx, provider, candidates, urgency)
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"provider":   provider.Tag().String(),
				"candidates": len(candidates),
			}).Warn("Ranking provider failed, advancing fallback chain")
			continue
		}

		p.sortMatches(matches)
		p.logger.WithFields(logrus.Fields{
			"provider": provider.Tag().String(),
			"matches":  len(matches),
			"urgency":  urgency.String(),
		}).Info("Ranking completed via provider")
		return matches, provider.Tag()
	}

	// Terminal fallback: the heuristic always succeeds.
	matches := p.heuristic.ScoreAll(candidates, urgency)
	p.sortMatches(matches)
	p.logger.WithFields(logrus.Fields{
		"matches": len(matches),
		"urgency": urgency.String(),
	}).Info("Ranking completed via heuristic fallback")
	return matches, domain.PROVIDER_HEURISTIC
}

// tryProvider performs a single bounded attempt against one provider and
// validates the response defensively. Candidates beyond the summarization
// cap, and candidates the provider skipped, are filled in with heuristic
// scores so that every candidate yields exactly one match.
func (p *RankingPipeline) tryProvider(
	ctx context.Context,
	provider domain.RankingProvider,
	candidates []domain.DonorCandidate,
	urgency domain.UrgencyLevel,
) ([]domain.ScoredMatch, error) {
	subset := candidates
	if len(subset) > p.maxSummarize {
		subset = subset[:p.maxSummarize]
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	rankings, err := provider.Rank(callCtx, subset, urgency)
	if err != nil {
		return nil, err
	}
	if len(rankings) == 0 {
		return nil, domain.NewProviderParseError(provider.Tag(), fmt.Errorf("provider returned no rankings"))
	}

	seen := make(map[int]bool, len(rankings))
	matches := make([]domain.ScoredMatch, 0, len(candidates))
	for _, r := range rankings {
		if r.Index < 0 || r.Index >= len(subset) {
			return nil, domain.NewProviderParseError(provider.Tag(), fmt.Errorf("ranking index %d out of range [0,%d)", r.Index, len(subset)))
		}
		if seen[r.Index] {
			return nil, domain.NewProviderParseError(provider.Tag(), fmt.Errorf("duplicate ranking for candidate index %d", r.Index))
		}
		seen[r.Index] = true

		candidate := subset[r.Index]
		minutes := r.EstimatedMinutes
		if minutes < 0 {
			minutes = 0
		}
		reasoning := []string{}
		if r.Reason != "" {
			reasoning = append(reasoning, r.Reason)
		}
		matches = append(matches, domain.ScoredMatch{
			DonorID:          candidate.DonorID,
			Confidence:       domain.ClampScore(r.Score),
			EstimatedMinutes: minutes,
			Reasoning:        reasoning,
			Provider:         provider.Tag(),
			DistanceKm:       candidate.DistanceKm,
			DonationCount:    candidate.DonationCount,
		})
	}

	// Fill candidates the provider never scored: skipped indices within the
	// subset and everything beyond the summarization cap.
	for i, candidate := range candidates {
		if i < len(subset) && seen[i] {
			continue
		}
		matches = append(matches, p.heuristic.Score(candidate, urgency))
	}

	return matches, nil
}

// sortMatches orders by confidence descending; ties break by ascending
// distance, then by donor identifier for determinism.
func (p *RankingPipeline) sortMatches(matches []domain.ScoredMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		if matches[i].DistanceKm != matches[j].DistanceKm {
			return matches[i].DistanceKm < matches[j].DistanceKm
		}
		return matches[i].DonorID < matches[j].DonorID
	})
}
