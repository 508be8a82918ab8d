package service

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/emergency-match-server/internal/domain"
)

const (
	defaultWatchWindow      = 30 * time.Minute
	defaultResubscribeDelay = 2 * time.Second

	// Bounds the in-process dedup cache; the durable guard covers eviction.
	notifiedCacheSize = 4096
)

// ResponseMonitor watches donor responses for a request and notifies the
// requester exactly once on the first acceptance. Dedup is two-layered: an
// in-process LRU as the fast path, backed by a durable guard shared across
// instances. The first acceptance also cancels any pending delayed wave.
type ResponseMonitor struct {
	logger           *logrus.Logger
	store            domain.MatchStore
	guard            domain.NotifiedGuard
	notifier         domain.RequesterNotifier
	escalator        *NotificationEscalator
	notified         *lru.Cache[string, struct{}]
	watchWindow      time.Duration
	resubscribeDelay time.Duration
}

// NewResponseMonitor creates a monitor. Zero durations fall back to the
// defaults (30m watch window, 2s resubscribe delay).
func NewResponseMonitor(
	logger *logrus.Logger,
	store domain.MatchStore,
	guard domain.NotifiedGuard,
	notifier domain.RequesterNotifier,
	escalator *NotificationEscalator,
	watchWindow time.Duration,
	resubscribeDelay time.Duration,
) (*ResponseMonitor, error) {
	if watchWindow <= 0 {
		watchWindow = defaultWatchWindow
	}
	if resubscribeDelay <= 0 {
		resubscribeDelay = defaultResubscribeDelay
	}

	cache, err := lru.New[string, struct{}](notifiedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create notified cache: %w", err)
	}

	return &ResponseMonitor{
		logger:           logger,
		store:            store,
		guard:            guard,
		notifier:         notifier,
		escalator:        escalator,
		notified:         cache,
		watchWindow:      watchWindow,
		resubscribeDelay: resubscribeDelay,
	}, nil
}

// Watch starts monitoring donor responses for the request in the background.
// The watch runs on its own context bounded by the watch window, so it
// survives the originating request's lifecycle.
func (m *ResponseMonitor) Watch(req domain.EmergencyRequest) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.watchWindow)
		defer cancel()

		m.logger.WithFields(logrus.Fields{
			"request_id": req.RequestID,
			"window":     m.watchWindow.String(),
		}).Info("Donor response monitoring started")

		m.run(ctx, req)
	}()
}

// run drives the subscribe loop, reconnecting after a delay whenever the
// subscription drops, until the watch window closes.
func (m *ResponseMonitor) run(ctx context.Context, req domain.EmergencyRequest) {
	for {
		updates, err := m.store.Subscribe(ctx, req.RequestID)
		if err != nil {
			m.logger.WithError(err).WithField("request_id", req.RequestID).Warn("Response subscription failed")
		} else if m.consume(ctx, req, updates) {
			return
		}

		select {
		case <-ctx.Done():
			m.logger.WithField("request_id", req.RequestID).Debug("Response watch window closed")
			return
		case <-time.After(m.resubscribeDelay):
		}
	}
}

// consume drains one subscription. It returns true when the watch is
// finished (window closed) and false when the subscription dropped and a
// resubscribe is warranted.
func (m *ResponseMonitor) consume(ctx context.Context, req domain.EmergencyRequest, updates <-chan domain.MatchRecord) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case rec, ok := <-updates:
			if !ok {
				m.logger.WithField("request_id", req.RequestID).Warn("Response subscription dropped, resubscribing")
				return false
			}
			m.handleUpdate(ctx, req, rec)
		}
	}
}

func (m *ResponseMonitor) handleUpdate(ctx context.Context, req domain.EmergencyRequest, rec domain.MatchRecord) {
	fields := logrus.Fields{
		"request_id": req.RequestID,
		"match_id":   rec.ID,
		"donor_id":   rec.Match.DonorID,
	}

	switch rec.ResponseState {
	case domain.RESPONSE_ACCEPTED:
		m.handleAcceptance(ctx, req, rec)
	case domain.RESPONSE_DECLINED:
		m.logger.WithFields(fields).Info("Donor declined")
	default:
		m.logger.WithFields(fields).WithField("state", rec.ResponseState.String()).Debug("Ignoring non-terminal response update")
	}
}

// handleAcceptance notifies the requester for the first acceptance only.
// Acceptances after the first are recorded in the log and otherwise
// suppressed.
func (m *ResponseMonitor) handleAcceptance(ctx context.Context, req domain.EmergencyRequest, rec domain.MatchRecord) {
	fields := logrus.Fields{
		"request_id": req.RequestID,
		"match_id":   rec.ID,
		"donor_id":   rec.Match.DonorID,
	}

	if m.notified.Contains(req.RequestID) {
		m.logger.WithFields(fields).Info("Additional acceptance suppressed")
		return
	}

	first, err := m.guard.MarkNotified(ctx, req.RequestID)
	if err != nil {
		// Degrade to in-process dedup: better a rare duplicate requester
		// notification than a missed one.
		m.logger.WithError(err).WithFields(fields).Warn("Durable notified guard unavailable")
		first = true
	}
	if !first {
		m.notified.Add(req.RequestID, struct{}{})
		m.logger.WithFields(fields).Info("Additional acceptance suppressed")
		return
	}

	m.notified.Add(req.RequestID, struct{}{})

	if m.escalator != nil {
		m.escalator.CancelPending(req.RequestID)
	}

	message := fmt.Sprintf("Donor %s accepted your request for %s blood (ETA ~%d min).",
		rec.Match.DonorID, req.BloodType, rec.Match.EstimatedMinutes)
	if err := m.notifier.Notify(ctx, req.RequesterID, message); err != nil {
		m.logger.WithError(err).WithFields(fields).Error("Failed to notify requester of acceptance")
		return
	}

	m.logger.WithFields(fields).Info("Requester notified of first acceptance")
}
