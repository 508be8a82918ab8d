package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emergency-match-server/internal/audit"
	"github.com/emergency-match-server/internal/domain"
)

// Tiering policy per urgency. Wave 1 always fires immediately; only Critical
// requests get a delayed second wave, covering ranks 6-15.
const (
	criticalWave1Size = 5
	criticalWave2End  = 15
	highWave1Size     = 10
	normalWave1Size   = 8

	defaultWave2Delay      = 2 * time.Minute
	defaultDispatchTimeout = 10 * time.Second
)

// pendingWave is the cancellable handle for a scheduled delayed wave.
type pendingWave struct {
	cancel chan struct{}
}

// NotificationEscalator schedules tiered notification waves over a ranked
// match list. Wave dispatch runs detached from the caller's request context
// so an HTTP response ending never aborts donor notifications.
type NotificationEscalator struct {
	logger          *logrus.Logger
	delivery        domain.NotificationDelivery
	store           domain.MatchStore
	recorder        audit.Recorder
	wave2Delay      time.Duration
	dispatchTimeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingWave
}

// NewNotificationEscalator creates an escalator. Zero durations fall back to
// the defaults (2m second-wave delay, 10s dispatch timeout).
func NewNotificationEscalator(
	logger *logrus.Logger,
	delivery domain.NotificationDelivery,
	store domain.MatchStore,
	recorder audit.Recorder,
	wave2Delay time.Duration,
	dispatchTimeout time.Duration,
) *NotificationEscalator {
	if wave2Delay <= 0 {
		wave2Delay = defaultWave2Delay
	}
	if dispatchTimeout <= 0 {
		dispatchTimeout = defaultDispatchTimeout
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &NotificationEscalator{
		logger:          logger,
		delivery:        delivery,
		store:           store,
		recorder:        recorder,
		wave2Delay:      wave2Delay,
		dispatchTimeout: dispatchTimeout,
		pending:         make(map[string]*pendingWave),
	}
}

// Schedule plans the notification waves for a ranked match list, dispatches
// wave 1 immediately and, for Critical requests, arms the cancellable delayed
// second wave. It returns the planned waves.
func (e *NotificationEscalator) Schedule(req domain.EmergencyRequest, matches []domain.ScoredMatch) []domain.NotificationWave {
	if len(matches) == 0 {
		return nil
	}

	now := time.Now()
	var waves []domain.NotificationWave
	var segments [][]domain.ScoredMatch

	switch req.Urgency {
	case domain.URGENCY_CRITICAL:
		wave1 := matches[:min(criticalWave1Size, len(matches))]
		waves = append(waves, e.buildWave(req, 1, domain.PRIORITY_CRITICAL, wave1, now))
		segments = append(segments, wave1)
		if len(matches) > criticalWave1Size {
			wave2 := matches[criticalWave1Size:min(criticalWave2End, len(matches))]
			waves = append(waves, e.buildWave(req, 2, domain.PRIORITY_URGENT, wave2, now.Add(e.wave2Delay)))
			segments = append(segments, wave2)
		}
	case domain.URGENCY_HIGH:
		wave1 := matches[:min(highWave1Size, len(matches))]
		waves = append(waves, e.buildWave(req, 1, domain.PRIORITY_HIGH, wave1, now))
		segments = append(segments, wave1)
	default:
		wave1 := matches[:min(normalWave1Size, len(matches))]
		waves = append(waves, e.buildWave(req, 1, domain.PRIORITY_STANDARD, wave1, now))
		segments = append(segments, wave1)
	}

	e.logger.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"urgency":    req.Urgency.String(),
		"waves":      len(waves),
		"wave1_size": len(segments[0]),
	}).Info("Notification escalation scheduled")

	e.dispatchWave(req, waves[0], segments[0])

	if len(waves) > 1 {
		e.armDelayedWave(req, waves[1], segments[1])
	}

	return waves
}

// CancelPending aborts the delayed wave for a request, if one is armed.
// Called by the response monitor as soon as an acceptance arrives.
func (e *NotificationEscalator) CancelPending(requestID string) {
	e.mu.Lock()
	pw := e.pending[requestID]
	delete(e.pending, requestID)
	e.mu.Unlock()

	if pw != nil {
		close(pw.cancel)
		e.logger.WithField("request_id", requestID).Info("Delayed notification wave cancelled")
	}
}

// buildWave composes the wave metadata and payload template.
func (e *NotificationEscalator) buildWave(req domain.EmergencyRequest, number int, priority domain.WavePriority, matches []domain.ScoredMatch, fireAt time.Time) domain.NotificationWave {
	donorIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		donorIDs = append(donorIDs, m.DonorID)
	}

	return domain.NotificationWave{
		RequestID: req.RequestID,
		Number:    number,
		Priority:  priority,
		DonorIDs:  donorIDs,
		FireAt:    fireAt,
		Title:     fmt.Sprintf("%s: %s blood needed", priority, req.BloodType),
		Message:   fmt.Sprintf("Patient %s needs %d unit(s) of %s blood.", req.PatientName, req.UnitsNeeded, req.BloodType),
	}
}

// armDelayedWave starts the cancellable timer for wave 2. Immediately before
// dispatch it re-checks the store for an acceptance from wave 1 and aborts if
// one arrived, so the cancel signal and the store check back each other up.
func (e *NotificationEscalator) armDelayedWave(req domain.EmergencyRequest, wave domain.NotificationWave, matches []domain.ScoredMatch) {
	pw := &pendingWave{cancel: make(chan struct{})}

	e.mu.Lock()
	e.pending[req.RequestID] = pw
	e.mu.Unlock()

	go func() {
		timer := time.NewTimer(e.wave2Delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-pw.cancel:
			e.recordWave(req.RequestID, wave, true)
			return
		}

		e.mu.Lock()
		if e.pending[req.RequestID] == pw {
			delete(e.pending, req.RequestID)
		}
		e.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), e.dispatchTimeout)
		accepted, err := e.store.HasAccepted(ctx, req.RequestID)
		cancel()
		if err != nil {
			// Donor safety outranks a failed bookkeeping read: dispatch anyway.
			e.logger.WithError(err).WithField("request_id", req.RequestID).Warn("Acceptance check failed before delayed wave")
		}
		if accepted {
			e.logger.WithField("request_id", req.RequestID).Info("Delayed wave skipped, request already accepted")
			e.recordWave(req.RequestID, wave, true)
			return
		}

		e.dispatchWave(req, wave, matches)
	}()
}

// dispatchWave sends one notification per donor in the wave. A single
// donor's delivery failure is logged and audited without blocking the rest.
func (e *NotificationEscalator) dispatchWave(req domain.EmergencyRequest, wave domain.NotificationWave, matches []domain.ScoredMatch) {
	e.recordWave(req.RequestID, wave, false)

	metadata := map[string]string{
		"request_id": req.RequestID,
		"wave":       fmt.Sprintf("%d", wave.Number),
		"priority":   string(wave.Priority),
		"urgency":    req.Urgency.String(),
	}

	delivered := 0
	for _, match := range matches {
		message := wave.Message
		if wave.Priority == domain.PRIORITY_CRITICAL {
			message = fmt.Sprintf("%s You are %.1f km away.", message, match.DistanceKm)
		}

		ctx, cancel := context.WithTimeout(context.Background(), e.dispatchTimeout)
		err := e.delivery.Send(ctx, match.DonorID, wave.Title, message, metadata)
		cancel()

		rec := &audit.DeliveryRecord{
			RequestID:  req.RequestID,
			WaveNumber: wave.Number,
			DonorID:    match.DonorID,
			Delivered:  err == nil,
		}
		if err != nil {
			rec.Error = err.Error()
			e.logger.WithError(err).WithFields(logrus.Fields{
				"request_id": req.RequestID,
				"donor_id":   match.DonorID,
				"wave":       wave.Number,
			}).Warn("Donor notification delivery failed")
		} else {
			delivered++
		}
		e.recordDelivery(rec)
	}

	e.logger.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"wave":       wave.Number,
		"priority":   string(wave.Priority),
		"delivered":  delivered,
		"total":      len(matches),
	}).Info("Notification wave dispatched")
}

func (e *NotificationEscalator) recordWave(requestID string, wave domain.NotificationWave, cancelled bool) {
	ctx, cancel := context.WithTimeout(context.Background(), e.dispatchTimeout)
	defer cancel()

	err := e.recorder.RecordWave(ctx, &audit.WaveRecord{
		RequestID:  requestID,
		WaveNumber: wave.Number,
		Priority:   wave.Priority,
		DonorCount: len(wave.DonorIDs),
		Cancelled:  cancelled,
	})
	if err != nil {
		e.logger.WithError(err).WithField("request_id", requestID).Warn("Failed to record wave audit entry")
	}
}

func (e *NotificationEscalator) recordDelivery(rec *audit.DeliveryRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), e.dispatchTimeout)
	defer cancel()

	if err := e.recorder.RecordDelivery(ctx, rec); err != nil {
		e.logger.WithError(err).WithField("request_id", rec.RequestID).Warn("Failed to record delivery audit entry")
	}
}
