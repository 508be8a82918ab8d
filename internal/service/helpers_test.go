package service

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/emergency-match-server/internal/audit"
	"github.com/emergency-match-server/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeProvider struct {
	tag    domain.ProviderTag
	rankFn func(candidates []domain.DonorCandidate, urgency domain.UrgencyLevel) ([]domain.ProviderRanking, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) Tag() domain.ProviderTag { return f.tag }

func (f *fakeProvider) Rank(ctx context.Context, candidates []domain.DonorCandidate, urgency domain.UrgencyLevel) ([]domain.ProviderRanking, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.rankFn(candidates, urgency)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSource struct {
	candidates []domain.DonorCandidate
	err        error
}

func (f *fakeSource) Find(ctx context.Context, bloodType domain.BloodType, urgency domain.UrgencyLevel, lat, lon, radiusKm float64) ([]domain.DonorCandidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

type fakeStore struct {
	mu           sync.Mutex
	records      []domain.MatchRecord
	writeErr     error
	accepted     bool
	acceptedErr  error
	checks       int
	updates      chan domain.MatchRecord
	subscribeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{updates: make(chan domain.MatchRecord, 16)}
}

func (f *fakeStore) Write(ctx context.Context, requestID string, matches []domain.ScoredMatch) ([]domain.MatchRecord, error) {
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	created := make([]domain.MatchRecord, 0, len(matches))
	for _, match := range matches {
		rec := domain.MatchRecord{
			ID:            requestID + "-" + match.DonorID,
			RequestID:     requestID,
			Match:         match,
			ResponseState: domain.RESPONSE_PENDING,
		}
		f.records = append(f.records, rec)
		created = append(created, rec)
	}
	return created, nil
}

func (f *fakeStore) GetByRequest(ctx context.Context, requestID string) ([]domain.MatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.MatchRecord
	for _, rec := range f.records {
		if rec.RequestID == requestID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateResponse(ctx context.Context, matchID string, state domain.ResponseState) (*domain.MatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].ID == matchID {
			f.records[i].ResponseState = state
			rec := f.records[i]
			return &rec, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeStore) HasAccepted(ctx context.Context, requestID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return f.accepted, f.acceptedErr
}

func (f *fakeStore) Subscribe(ctx context.Context, requestID string) (<-chan domain.MatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	return f.updates, nil
}

func (f *fakeStore) setAccepted(accepted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = accepted
}

func (f *fakeStore) acceptanceChecks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks
}

type sentPush struct {
	donorID string
	title   string
	message string
}

type fakeDelivery struct {
	mu      sync.Mutex
	sent    []sentPush
	failFor map[string]error
}

func (f *fakeDelivery) Send(ctx context.Context, donorID, title, message string, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[donorID]; ok {
		return err
	}
	f.sent = append(f.sent, sentPush{donorID: donorID, title: title, message: message})
	return nil
}

func (f *fakeDelivery) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeDelivery) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.sent))
	for _, p := range f.sent {
		ids = append(ids, p.donorID)
	}
	return ids
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeNotifier) Notify(ctx context.Context, requesterID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeNotifier) notifyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeGuard struct {
	mu    sync.Mutex
	seen  map[string]bool
	err   error
	first bool
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{seen: make(map[string]bool), first: true}
}

func (f *fakeGuard) MarkNotified(ctx context.Context, requestID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if !f.first {
		return false, nil
	}
	if f.seen[requestID] {
		return false, nil
	}
	f.seen[requestID] = true
	return true, nil
}

type fakeRecorder struct {
	mu         sync.Mutex
	waves      []audit.WaveRecord
	deliveries []audit.DeliveryRecord
}

func (f *fakeRecorder) RecordWave(ctx context.Context, rec *audit.WaveRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waves = append(f.waves, *rec)
	return nil
}

func (f *fakeRecorder) RecordDelivery(ctx context.Context, rec *audit.DeliveryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, *rec)
	return nil
}

func (f *fakeRecorder) waveRecords() []audit.WaveRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]audit.WaveRecord, len(f.waves))
	copy(out, f.waves)
	return out
}
