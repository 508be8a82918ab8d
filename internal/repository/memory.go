// Package repository provides the match record stores: a Postgres-backed
// store for production and an in-memory store for lite deployments and tests.
package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emergency-match-server/internal/domain"
)

// Per-subscriber buffer. A subscriber that falls this far behind loses
// updates; the monitor's resubscribe loop recovers from that.
const subscriberBuffer = 16

// MemoryMatchStore is a thread-safe in-memory MatchStore. Updates fan out to
// subscribers in-process.
type MemoryMatchStore struct {
	mu        sync.RWMutex
	records   map[string]*domain.MatchRecord
	byRequest map[string][]string
	subs      map[string]map[chan domain.MatchRecord]struct{}
	now       func() time.Time
}

// NewMemoryMatchStore creates an empty in-memory store.
func NewMemoryMatchStore() *MemoryMatchStore {
	return &MemoryMatchStore{
		records:   make(map[string]*domain.MatchRecord),
		byRequest: make(map[string][]string),
		subs:      make(map[string]map[chan domain.MatchRecord]struct{}),
		now:       time.Now,
	}
}

// Write persists one record per scored match, in rank order, all Pending.
func (s *MemoryMatchStore) Write(ctx context.Context, requestID string, matches []domain.ScoredMatch) ([]domain.MatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := make([]domain.MatchRecord, 0, len(matches))
	for _, match := range matches {
		rec := domain.MatchRecord{
			ID:            uuid.New().String(),
			RequestID:     requestID,
			Match:         match,
			ResponseState: domain.RESPONSE_PENDING,
			CreatedAt:     s.now(),
		}
		s.records[rec.ID] = &rec
		s.byRequest[requestID] = append(s.byRequest[requestID], rec.ID)
		created = append(created, rec)
	}
	return created, nil
}

// GetByRequest returns copies of the request's records in rank order.
func (s *MemoryMatchStore) GetByRequest(ctx context.Context, requestID string) ([]domain.MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byRequest[requestID]
	out := make([]domain.MatchRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.records[id])
	}
	return out, nil
}

// UpdateResponse applies a donor response to a record and fans the updated
// record out to subscribers. The record's own state machine rejects a second
// response with domain.ErrAlreadyResponded.
func (s *MemoryMatchStore) UpdateResponse(ctx context.Context, matchID string, state domain.ResponseState) (*domain.MatchRecord, error) {
	s.mu.Lock()
	rec, ok := s.records[matchID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("match %s: %w", matchID, domain.ErrNotFound)
	}
	if err := rec.ApplyResponse(state, s.now()); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	snapshot := *rec
	subs := s.subs[rec.RequestID]
	for ch := range subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
	s.mu.Unlock()

	return &snapshot, nil
}

// HasAccepted reports whether any of the request's records is Accepted.
func (s *MemoryMatchStore) HasAccepted(ctx context.Context, requestID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.byRequest[requestID] {
		if s.records[id].ResponseState == domain.RESPONSE_ACCEPTED {
			return true, nil
		}
	}
	return false, nil
}

// Subscribe streams record updates for a request until ctx is cancelled.
func (s *MemoryMatchStore) Subscribe(ctx context.Context, requestID string) (<-chan domain.MatchRecord, error) {
	ch := make(chan domain.MatchRecord, subscriberBuffer)

	s.mu.Lock()
	if s.subs[requestID] == nil {
		s.subs[requestID] = make(map[chan domain.MatchRecord]struct{})
	}
	s.subs[requestID][ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs[requestID], ch)
		s.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// MemoryNotifiedGuard is the in-process NotifiedGuard for lite deployments.
// It does not survive restarts; production uses the Redis guard.
type MemoryNotifiedGuard struct {
	mu       sync.Mutex
	notified map[string]struct{}
}

// NewMemoryNotifiedGuard creates an empty guard.
func NewMemoryNotifiedGuard() *MemoryNotifiedGuard {
	return &MemoryNotifiedGuard{notified: make(map[string]struct{})}
}

// MarkNotified implements domain.NotifiedGuard.
func (g *MemoryNotifiedGuard) MarkNotified(ctx context.Context, requestID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.notified[requestID]; ok {
		return false, nil
	}
	g.notified[requestID] = struct{}{}
	return true, nil
}
