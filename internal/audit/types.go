// Package audit persists the dispatch trail of the notification escalator:
// which waves fired for which request, and how each donor delivery went.
// Postgres backs production deployments; SQLite backs lite deployments.
package audit

import (
	"context"
	"time"

	"github.com/emergency-match-server/internal/domain"
)

// WaveRecord is one dispatched (or cancelled) notification wave.
type WaveRecord struct {
	ID         int64               `json:"id"`
	RequestID  string              `json:"request_id"`
	WaveNumber int                 `json:"wave_number"`
	Priority   domain.WavePriority `json:"priority"`
	DonorCount int                 `json:"donor_count"`
	Cancelled  bool                `json:"cancelled"`
	CreatedAt  time.Time           `json:"created_at"`
}

// DeliveryRecord is one per-donor delivery outcome within a wave.
type DeliveryRecord struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	WaveNumber int       `json:"wave_number"`
	DonorID    string    `json:"donor_id"`
	Delivered  bool      `json:"delivered"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Recorder writes audit entries. Recording must never block or fail the
// emergency path; callers log recorder errors and continue.
type Recorder interface {
	RecordWave(ctx context.Context, rec *WaveRecord) error
	RecordDelivery(ctx context.Context, rec *DeliveryRecord) error
}

// Store extends Recorder with the read side used by operators.
type Store interface {
	Recorder
	ListWaves(ctx context.Context, requestID string) ([]*WaveRecord, error)
	ListDeliveries(ctx context.Context, requestID string) ([]*DeliveryRecord, error)
	Close() error
}

// NopRecorder discards audit entries. Used in tests and as a fallback when no
// audit backend is configured.
type NopRecorder struct{}

// RecordWave implements Recorder.
func (NopRecorder) RecordWave(ctx context.Context, rec *WaveRecord) error { return nil }

// RecordDelivery implements Recorder.
func (NopRecorder) RecordDelivery(ctx context.Context, rec *DeliveryRecord) error { return nil }
