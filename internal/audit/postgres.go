package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/emergency-match-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL audit store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL audit store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// RecordWave stores one dispatched or cancelled wave.
func (s *PostgresStore) RecordWave(ctx context.Context, rec *WaveRecord) error {
	query := `
		INSERT INTO notification_waves (request_id, wave_number, priority, donor_count, cancelled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		rec.RequestID,
		rec.WaveNumber,
		string(rec.Priority),
		rec.DonorCount,
		rec.Cancelled,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record wave: %w", err)
	}
	return nil
}

// RecordDelivery stores one per-donor delivery outcome.
func (s *PostgresStore) RecordDelivery(ctx context.Context, rec *DeliveryRecord) error {
	query := `
		INSERT INTO notification_deliveries (request_id, wave_number, donor_id, delivered, error)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		rec.RequestID,
		rec.WaveNumber,
		rec.DonorID,
		rec.Delivered,
		rec.Error,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// ListWaves returns a request's waves in dispatch order.
func (s *PostgresStore) ListWaves(ctx context.Context, requestID string) ([]*WaveRecord, error) {
	query := `
		SELECT id, request_id, wave_number, priority, donor_count, cancelled, created_at
		FROM notification_waves
		WHERE request_id = $1
		ORDER BY wave_number, created_at
	`

	rows, err := s.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list waves: %w", err)
	}
	defer rows.Close()

	var result []*WaveRecord
	for rows.Next() {
		rec := &WaveRecord{}
		var priority string
		err := rows.Scan(&rec.ID, &rec.RequestID, &rec.WaveNumber, &priority, &rec.DonorCount, &rec.Cancelled, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec.Priority = domain.WavePriority(priority)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// ListDeliveries returns a request's per-donor delivery outcomes.
func (s *PostgresStore) ListDeliveries(ctx context.Context, requestID string) ([]*DeliveryRecord, error) {
	query := `
		SELECT id, request_id, wave_number, donor_id, delivered, error, created_at
		FROM notification_deliveries
		WHERE request_id = $1
		ORDER BY wave_number, created_at
	`

	rows, err := s.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var result []*DeliveryRecord
	for rows.Next() {
		rec := &DeliveryRecord{}
		err := rows.Scan(&rec.ID, &rec.RequestID, &rec.WaveNumber, &rec.DonorID, &rec.Delivered, &rec.Error, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
