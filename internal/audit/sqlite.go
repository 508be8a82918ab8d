package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/emergency-match-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite audit store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS notification_waves (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		wave_number INTEGER NOT NULL,
		priority TEXT NOT NULL,
		donor_count INTEGER NOT NULL DEFAULT 0,
		cancelled INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS notification_deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		wave_number INTEGER NOT NULL,
		donor_id TEXT NOT NULL,
		delivered INTEGER NOT NULL DEFAULT 0,
		error TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_waves_request ON notification_waves(request_id);
	CREATE INDEX IF NOT EXISTS idx_deliveries_request ON notification_deliveries(request_id);
	`

	_, err := db.Exec(schema)
	return err
}

// RecordWave stores one dispatched or cancelled wave.
func (s *SQLiteStore) RecordWave(ctx context.Context, rec *WaveRecord) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_waves (request_id, wave_number, priority, donor_count, cancelled)
		VALUES (?, ?, ?, ?, ?)
	`,
		rec.RequestID,
		rec.WaveNumber,
		string(rec.Priority),
		rec.DonorCount,
		rec.Cancelled,
	)
	if err != nil {
		return fmt.Errorf("failed to insert wave: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	rec.ID = id
	return nil
}

// RecordDelivery stores one per-donor delivery outcome.
func (s *SQLiteStore) RecordDelivery(ctx context.Context, rec *DeliveryRecord) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_deliveries (request_id, wave_number, donor_id, delivered, error)
		VALUES (?, ?, ?, ?, ?)
	`,
		rec.RequestID,
		rec.WaveNumber,
		rec.DonorID,
		rec.Delivered,
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	rec.ID = id
	return nil
}

// ListWaves returns a request's waves in dispatch order.
func (s *SQLiteStore) ListWaves(ctx context.Context, requestID string) ([]*WaveRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, wave_number, priority, donor_count, cancelled, created_at
		FROM notification_waves
		WHERE request_id = ?
		ORDER BY wave_number, created_at
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query waves: %w", err)
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
func (s *SQLiteStore) ListDeliveries(ctx context.Context, requestID string) ([]*DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, wave_number, donor_id, delivered, error, created_at
		FROM notification_deliveries
		WHERE request_id = ?
		ORDER BY wave_number, created_at
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
