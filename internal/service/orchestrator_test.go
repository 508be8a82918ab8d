package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/emergency-match-server/internal/domain"
)

func newTestOrchestrator(t *testing.T, source *fakeSource, store *fakeStore, delivery *fakeDelivery, notifier *fakeNotifier) *MatchOrchestrator {
	t.Helper()
	pipeline := newTestPipeline()
	escalator := newTestEscalator(delivery, store, &fakeRecorder{}, time.Hour)
	monitor := newTestMonitor(t, store, newFakeGuard(), notifier, escalator)
	return NewMatchOrchestrator(testLogger(), source, pipeline, store, escalator, monitor)
}

func TestProcessEmergencyRequestHappyPath(t *testing.T) {
	source := &fakeSource{candidates: testCandidates(12)}
	store := newFakeStore()
	delivery := &fakeDelivery{}
	orchestrator := newTestOrchestrator(t, source, store, delivery, &fakeNotifier{})

	req := testRequest(domain.URGENCY_HIGH)
	summary, err := orchestrator.ProcessEmergencyRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if summary.MatchesFound != 12 {
		t.Errorf("Expected 12 matches, got %d", summary.MatchesFound)
	}
	if len(summary.TopMatches) != 5 {
		t.Errorf("Expected top 5 matches in the summary, got %d", len(summary.TopMatches))
	}
	if summary.Provider != domain.PROVIDER_HEURISTIC {
		t.Errorf("Expected heuristic provider with no externals configured, got %s", summary.Provider)
	}
	if summary.WavesScheduled != 1 {
		t.Errorf("Expected 1 wave for high urgency, got %d", summary.WavesScheduled)
	}
	if summary.EstimatedResponseTime != summary.TopMatches[0].EstimatedMinutes {
		t.Errorf("Expected ETA from the best match, got %d", summary.EstimatedResponseTime)
	}

	// High urgency notifies the top 10 immediately.
	if delivery.sendCount() != 10 {
		t.Errorf("Expected 10 donor notifications, got %d", delivery.sendCount())
	}

	records, err := orchestrator.Matches(context.Background(), summary.RequestID)
	if err != nil {
		t.Fatalf("Expected persisted matches, got error %v", err)
	}
	if len(records) != 12 {
		t.Errorf("Expected 12 persisted records, got %d", len(records))
	}
}

func TestProcessEmergencyRequestGeneratesRequestID(t *testing.T) {
	source := &fakeSource{candidates: testCandidates(3)}
	orchestrator := newTestOrchestrator(t, source, newFakeStore(), &fakeDelivery{}, &fakeNotifier{})

	req := testRequest(domain.URGENCY_NORMAL)
	req.RequestID = ""
	summary, err := orchestrator.ProcessEmergencyRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if summary.RequestID == "" {
		t.Error("Expected a generated request ID")
	}
}

func TestProcessEmergencyRequestValidation(t *testing.T) {
	orchestrator := newTestOrchestrator(t, &fakeSource{}, newFakeStore(), &fakeDelivery{}, &fakeNotifier{})

	tests := []struct {
		name   string
		mutate func(*domain.EmergencyRequest)
	}{
		{"missing requester", func(r *domain.EmergencyRequest) { r.RequesterID = "" }},
		{"invalid blood type", func(r *domain.EmergencyRequest) { r.BloodType = "X+" }},
		{"invalid urgency", func(r *domain.EmergencyRequest) { r.Urgency = "PANIC" }},
		{"zero units", func(r *domain.EmergencyRequest) { r.UnitsNeeded = 0 }},
		{"latitude out of range", func(r *domain.EmergencyRequest) { r.Latitude = 91 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest(domain.URGENCY_HIGH)
			tt.mutate(&req)
			if _, err := orchestrator.ProcessEmergencyRequest(context.Background(), req); err == nil {
				t.Error("Expected a validation error")
			}
		})
	}
}

func TestProcessEmergencyRequestSearchFailure(t *testing.T) {
	source := &fakeSource{err: fmt.Errorf("donor search timeout")}
	delivery := &fakeDelivery{}
	orchestrator := newTestOrchestrator(t, source, newFakeStore(), delivery, &fakeNotifier{})

	summary, err := orchestrator.ProcessEmergencyRequest(context.Background(), testRequest(domain.URGENCY_CRITICAL))
	if err != nil {
		t.Fatalf("Expected search failure absorbed, got error %v", err)
	}
	if summary.MatchesFound != 0 || summary.Provider != domain.PROVIDER_NONE {
		t.Errorf("Expected empty summary, got %d matches via %s", summary.MatchesFound, summary.Provider)
	}
	if delivery.sendCount() != 0 {
		t.Errorf("Expected no notifications, got %d", delivery.sendCount())
	}
}

func TestProcessEmergencyRequestNoCandidates(t *testing.T) {
	source := &fakeSource{candidates: nil}
	orchestrator := newTestOrchestrator(t, source, newFakeStore(), &fakeDelivery{}, &fakeNotifier{})

	summary, err := orchestrator.ProcessEmergencyRequest(context.Background(), testRequest(domain.URGENCY_HIGH))
	if err != nil {
		t.Fatalf("Expected no error for empty search, got %v", err)
	}
	if summary.MatchesFound != 0 || summary.WavesScheduled != 0 {
		t.Errorf("Expected empty summary with no waves, got %+v", summary)
	}
}

func TestProcessEmergencyRequestStoreFailureStillEscalates(t *testing.T) {
	source := &fakeSource{candidates: testCandidates(6)}
	store := newFakeStore()
	store.writeErr = fmt.Errorf("database unavailable")
	delivery := &fakeDelivery{}
	orchestrator := newTestOrchestrator(t, source, store, delivery, &fakeNotifier{})

	summary, err := orchestrator.ProcessEmergencyRequest(context.Background(), testRequest(domain.URGENCY_HIGH))
	if err != nil {
		t.Fatalf("Expected persistence failure absorbed, got error %v", err)
	}
	if summary.MatchesFound != 6 {
		t.Errorf("Expected 6 matches despite write failure, got %d", summary.MatchesFound)
	}
	if delivery.sendCount() != 6 {
		t.Errorf("Expected donors still notified, got %d", delivery.sendCount())
	}
}

func TestProcessEmergencyRequestFiltersUnusableCandidates(t *testing.T) {
	candidates := testCandidates(4)
	candidates[1].Available = false
	candidates[2].DonorID = ""
	source := &fakeSource{candidates: candidates}
	orchestrator := newTestOrchestrator(t, source, newFakeStore(), &fakeDelivery{}, &fakeNotifier{})

	summary, err := orchestrator.ProcessEmergencyRequest(context.Background(), testRequest(domain.URGENCY_NORMAL))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if summary.MatchesFound != 2 {
		t.Errorf("Expected unavailable and invalid candidates dropped, got %d matches", summary.MatchesFound)
	}
}

func TestRecordDonorResponse(t *testing.T) {
	source := &fakeSource{candidates: testCandidates(2)}
	store := newFakeStore()
	orchestrator := newTestOrchestrator(t, source, store, &fakeDelivery{}, &fakeNotifier{})

	req := testRequest(domain.URGENCY_NORMAL)
	if _, err := orchestrator.ProcessEmergencyRequest(context.Background(), req); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	records, _ := store.GetByRequest(context.Background(), req.RequestID)
	if len(records) == 0 {
		t.Fatal("Setup produced no records")
	}

	rec, err := orchestrator.RecordDonorResponse(context.Background(), records[0].ID, domain.RESPONSE_ACCEPTED)
	if err != nil {
		t.Fatalf("Expected acceptance recorded, got %v", err)
	}
	if rec.ResponseState != domain.RESPONSE_ACCEPTED {
		t.Errorf("Expected ACCEPTED state, got %s", rec.ResponseState)
	}

	if _, err := orchestrator.RecordDonorResponse(context.Background(), records[0].ID, domain.RESPONSE_PENDING); err != domain.ErrInvalidResponse {
		t.Errorf("Expected ErrInvalidResponse for a non-terminal state, got %v", err)
	}

	if _, err := orchestrator.RecordDonorResponse(context.Background(), "no-such-match", domain.RESPONSE_DECLINED); err != domain.ErrNotFound {
		t.Errorf("Expected ErrNotFound for unknown match, got %v", err)
	}
}
