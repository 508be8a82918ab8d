package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/emergency-match-server/internal/domain"
)

const (
	providerBreakerInterval = 30 * time.Second
	providerBreakerTimeout  = 60 * time.Second
)

// ResilientProvider wraps a ranking provider with a circuit breaker and a
// rate limiter. An open breaker or an exhausted rate budget reads as an
// unavailable provider, which advances the pipeline's fallback chain
// immediately instead of burning the call timeout.
type ResilientProvider struct {
	inner   domain.RankingProvider
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     *logrus.Logger
}

// NewResilientProvider wraps a provider. Zero rate limit disables the
// limiter.
func NewResilientProvider(inner domain.RankingProvider, config domain.ProviderConfig, logger *logrus.Logger) *ResilientProvider {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        inner.Tag().String(),
		MaxRequests: 3,
		Interval:    providerBreakerInterval,
		Timeout:     providerBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"provider": name,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("Ranking provider circuit breaker state changed")
		},
	})

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return &ResilientProvider{
		inner:   inner,
		breaker: breaker,
		limiter: limiter,
		log:     logger,
	}
}

// Tag implements domain.RankingProvider.
func (p *ResilientProvider) Tag() domain.ProviderTag {
	return p.inner.Tag()
}

// Rank implements domain.RankingProvider.
func (p *ResilientProvider) Rank(ctx context.Context, candidates []domain.DonorCandidate, urgency domain.UrgencyLevel) ([]domain.ProviderRanking, error) {
	if p.limiter != nil && !p.limiter.Allow() {
		return nil, domain.NewProviderUnavailable(p.Tag(), fmt.Errorf("rate limit exceeded"))
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.inner.Rank(ctx, candidates, urgency)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domain.NewProviderUnavailable(p.Tag(), fmt.Errorf("circuit breaker open"))
		}
		return nil, err
	}

	return result.([]domain.ProviderRanking), nil
}
