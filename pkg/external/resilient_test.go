package external

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emergency-match-server/internal/domain"
)

type stubProvider struct {
	tag   domain.ProviderTag
	err   error
	calls int
}

func (s *stubProvider) Tag() domain.ProviderTag { return s.tag }

func (s *stubProvider) Rank(ctx context.Context, candidates []domain.DonorCandidate, urgency domain.UrgencyLevel) ([]domain.ProviderRanking, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []domain.ProviderRanking{{Index: 0, Score: 75}}, nil
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestResilientProviderPassesThrough(t *testing.T) {
	inner := &stubProvider{tag: domain.PROVIDER_OPENAI}
	provider := NewResilientProvider(inner, domain.ProviderConfig{Timeout: time.Second}, discardLogger())

	if provider.Tag() != domain.PROVIDER_OPENAI {
		t.Errorf("Unexpected tag %s", provider.Tag())
	}

	rankings, err := provider.Rank(context.Background(), rankCandidates(), domain.URGENCY_HIGH)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(rankings) != 1 {
		t.Errorf("Expected 1 ranking, got %d", len(rankings))
	}
}

func TestResilientProviderBreakerOpens(t *testing.T) {
	inner := &stubProvider{
		tag: domain.PROVIDER_GEMINI,
		err: domain.NewProviderUnavailable(domain.PROVIDER_GEMINI, fmt.Errorf("timeout")),
	}
	provider := NewResilientProvider(inner, domain.ProviderConfig{Timeout: time.Second}, discardLogger())

	// Enough consecutive failures trip the breaker.
	for i := 0; i < 5; i++ {
		provider.Rank(context.Background(), rankCandidates(), domain.URGENCY_HIGH)
	}

	callsBefore := inner.calls
	_, err := provider.Rank(context.Background(), rankCandidates(), domain.URGENCY_HIGH)
	assertProviderError(t, err, domain.ProviderUnavailable)
	if inner.calls != callsBefore {
		t.Errorf("Expected the open breaker to short-circuit, inner called %d more times", inner.calls-callsBefore)
	}
}

func TestResilientProviderRateLimit(t *testing.T) {
	inner := &stubProvider{tag: domain.PROVIDER_OPENAI}
	provider := NewResilientProvider(inner, domain.ProviderConfig{
		Timeout:   time.Second,
		RateLimit: 0.001,
		RateBurst: 1,
	}, discardLogger())

	if _, err := provider.Rank(context.Background(), rankCandidates(), domain.URGENCY_HIGH); err != nil {
		t.Fatalf("Expected the first call within the burst budget, got %v", err)
	}

	_, err := provider.Rank(context.Background(), rankCandidates(), domain.URGENCY_HIGH)
	assertProviderError(t, err, domain.ProviderUnavailable)
	if inner.calls != 1 {
		t.Errorf("Expected the rate limiter to block before the inner call, got %d calls", inner.calls)
	}
}
