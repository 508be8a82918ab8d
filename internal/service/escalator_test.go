package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/emergency-match-server/internal/domain"
)

func scoredMatches(n int) []domain.ScoredMatch {
	matches := make([]domain.ScoredMatch, 0, n)
	for i := 0; i < n; i++ {
		matches = append(matches, domain.ScoredMatch{
			DonorID:          fmt.Sprintf("donor-%02d", i),
			Confidence:       100 - i,
			EstimatedMinutes: 20 + i,
			Provider:         domain.PROVIDER_HEURISTIC,
			DistanceKm:       float64(i + 1),
		})
	}
	return matches
}

func testRequest(urgency domain.UrgencyLevel) domain.EmergencyRequest {
	return domain.EmergencyRequest{
		RequestID:   "req-1",
		RequesterID: "hospital-1",
		PatientName: "Jane Doe",
		BloodType:   domain.BLOOD_O_NEG,
		UnitsNeeded: 2,
		Urgency:     urgency,
		Latitude:    40.7,
		Longitude:   -74.0,
		RadiusKm:    25,
	}
}

// eventually polls until the condition holds or the deadline passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newTestEscalator(delivery *fakeDelivery, store *fakeStore, recorder *fakeRecorder, wave2Delay time.Duration) *NotificationEscalator {
	return NewNotificationEscalator(testLogger(), delivery, store, recorder, wave2Delay, time.Second)
}

func TestScheduleCriticalWaves(t *testing.T) {
	delivery := &fakeDelivery{}
	store := newFakeStore()
	recorder := &fakeRecorder{}
	escalator := newTestEscalator(delivery, store, recorder, time.Hour)

	waves := escalator.Schedule(testRequest(domain.URGENCY_CRITICAL), scoredMatches(20))

	if len(waves) != 2 {
		t.Fatalf("Expected 2 waves for critical urgency, got %d", len(waves))
	}
	if waves[0].Priority != domain.PRIORITY_CRITICAL || len(waves[0].DonorIDs) != 5 {
		t.Errorf("Expected wave 1 with 5 CRITICAL donors, got %d %s", len(waves[0].DonorIDs), waves[0].Priority)
	}
	if waves[1].Priority != domain.PRIORITY_URGENT || len(waves[1].DonorIDs) != 10 {
		t.Errorf("Expected wave 2 with 10 URGENT donors, got %d %s", len(waves[1].DonorIDs), waves[1].Priority)
	}
	if waves[1].DonorIDs[0] != "donor-05" || waves[1].DonorIDs[9] != "donor-14" {
		t.Errorf("Expected wave 2 to cover ranks 6-15, got %v", waves[1].DonorIDs)
	}

	// Only wave 1 fires immediately.
	if delivery.sendCount() != 5 {
		t.Errorf("Expected 5 immediate notifications, got %d", delivery.sendCount())
	}

	escalator.CancelPending("req-1")
}

func TestScheduleCriticalMessageIncludesDistance(t *testing.T) {
	delivery := &fakeDelivery{}
	escalator := newTestEscalator(delivery, newFakeStore(), &fakeRecorder{}, time.Hour)

	escalator.Schedule(testRequest(domain.URGENCY_CRITICAL), scoredMatches(3))

	delivery.mu.Lock()
	defer delivery.mu.Unlock()
	for _, push := range delivery.sent {
		if !strings.Contains(push.message, "km away") {
			t.Errorf("Expected critical push to mention distance, got %q", push.message)
		}
	}
}

func TestScheduleHighSingleWave(t *testing.T) {
	delivery := &fakeDelivery{}
	escalator := newTestEscalator(delivery, newFakeStore(), &fakeRecorder{}, time.Hour)

	waves := escalator.Schedule(testRequest(domain.URGENCY_HIGH), scoredMatches(20))

	if len(waves) != 1 {
		t.Fatalf("Expected single wave for high urgency, got %d", len(waves))
	}
	if waves[0].Priority != domain.PRIORITY_HIGH || len(waves[0].DonorIDs) != 10 {
		t.Errorf("Expected 10 HIGH donors, got %d %s", len(waves[0].DonorIDs), waves[0].Priority)
	}
	if delivery.sendCount() != 10 {
		t.Errorf("Expected 10 notifications, got %d", delivery.sendCount())
	}
}

func TestScheduleNormalSingleWave(t *testing.T) {
	delivery := &fakeDelivery{}
	escalator := newTestEscalator(delivery, newFakeStore(), &fakeRecorder{}, time.Hour)

	waves := escalator.Schedule(testRequest(domain.URGENCY_NORMAL), scoredMatches(20))

	if len(waves) != 1 {
		t.Fatalf("Expected single wave for normal urgency, got %d", len(waves))
	}
	if waves[0].Priority != domain.PRIORITY_STANDARD || len(waves[0].DonorIDs) != 8 {
		t.Errorf("Expected 8 STANDARD donors, got %d %s", len(waves[0].DonorIDs), waves[0].Priority)
	}
}

func TestScheduleEmptyMatches(t *testing.T) {
	delivery := &fakeDelivery{}
	escalator := newTestEscalator(delivery, newFakeStore(), &fakeRecorder{}, time.Hour)

	if waves := escalator.Schedule(testRequest(domain.URGENCY_CRITICAL), nil); waves != nil {
		t.Errorf("Expected no waves without matches, got %d", len(waves))
	}
	if delivery.sendCount() != 0 {
		t.Errorf("Expected no notifications, got %d", delivery.sendCount())
	}
}

func TestDelayedWaveFires(t *testing.T) {
	delivery := &fakeDelivery{}
	store := newFakeStore()
	escalator := newTestEscalator(delivery, store, &fakeRecorder{}, 30*time.Millisecond)

	escalator.Schedule(testRequest(domain.URGENCY_CRITICAL), scoredMatches(12))

	if delivery.sendCount() != 5 {
		t.Fatalf("Expected 5 immediate notifications, got %d", delivery.sendCount())
	}

	eventually(t, time.Second, func() bool {
		return delivery.sendCount() == 12
	}, "Expected delayed wave to notify the remaining 7 donors")

	if store.acceptanceChecks() != 1 {
		t.Errorf("Expected one acceptance re-check before the delayed wave, got %d", store.acceptanceChecks())
	}
}

func TestCancelPendingSuppressesDelayedWave(t *testing.T) {
	delivery := &fakeDelivery{}
	recorder := &fakeRecorder{}
	escalator := newTestEscalator(delivery, newFakeStore(), recorder, 40*time.Millisecond)

	escalator.Schedule(testRequest(domain.URGENCY_CRITICAL), scoredMatches(12))
	escalator.CancelPending("req-1")

	time.Sleep(100 * time.Millisecond)
	if delivery.sendCount() != 5 {
		t.Errorf("Expected cancelled wave 2 to stay silent, got %d notifications", delivery.sendCount())
	}

	eventually(t, time.Second, func() bool {
		for _, rec := range recorder.waveRecords() {
			if rec.WaveNumber == 2 && rec.Cancelled {
				return true
			}
		}
		return false
	}, "Expected a cancelled audit record for wave 2")
}

func TestDelayedWaveSkippedAfterAcceptance(t *testing.T) {
	delivery := &fakeDelivery{}
	store := newFakeStore()
	recorder := &fakeRecorder{}
	escalator := newTestEscalator(delivery, store, recorder, 30*time.Millisecond)

	escalator.Schedule(testRequest(domain.URGENCY_CRITICAL), scoredMatches(12))
	store.setAccepted(true)

	eventually(t, time.Second, func() bool {
		return store.acceptanceChecks() == 1
	}, "Expected the delayed wave to re-check acceptance")

	time.Sleep(50 * time.Millisecond)
	if delivery.sendCount() != 5 {
		t.Errorf("Expected wave 2 skipped after acceptance, got %d notifications", delivery.sendCount())
	}
}

func TestDelayedWaveFiresDespiteAcceptanceCheckError(t *testing.T) {
	delivery := &fakeDelivery{}
	store := newFakeStore()
	store.acceptedErr = fmt.Errorf("database unavailable")
	escalator := newTestEscalator(delivery, store, &fakeRecorder{}, 30*time.Millisecond)

	escalator.Schedule(testRequest(domain.URGENCY_CRITICAL), scoredMatches(12))

	eventually(t, time.Second, func() bool {
		return delivery.sendCount() == 12
	}, "Expected the delayed wave to fire when the acceptance check fails")
}

func TestDispatchIsolatesDonorFailures(t *testing.T) {
	delivery := &fakeDelivery{failFor: map[string]error{
		"donor-01": fmt.Errorf("push token expired"),
	}}
	recorder := &fakeRecorder{}
	escalator := newTestEscalator(delivery, newFakeStore(), recorder, time.Hour)

	escalator.Schedule(testRequest(domain.URGENCY_HIGH), scoredMatches(4))

	if delivery.sendCount() != 3 {
		t.Errorf("Expected 3 successful deliveries around the failure, got %d", delivery.sendCount())
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	failed := 0
	for _, rec := range recorder.deliveries {
		if !rec.Delivered {
			failed++
			if rec.DonorID != "donor-01" {
				t.Errorf("Expected the failure recorded for donor-01, got %s", rec.DonorID)
			}
		}
	}
	if failed != 1 {
		t.Errorf("Expected exactly one failed delivery record, got %d", failed)
	}
}
