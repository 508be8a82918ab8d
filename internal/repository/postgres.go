package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/emergency-match-server/internal/domain"
)

// Channel the match_records trigger NOTIFYs on for every response update.
const responseChannel = "match_response_updates"

// PostgresMatchStore persists match records in Postgres. Subscribe rides the
// database's LISTEN/NOTIFY so donor responses reach every instance, not just
// the one that handled the donor's request.
type PostgresMatchStore struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresMatchStore creates a Postgres-backed match store.
func NewPostgresMatchStore(db *pgxpool.Pool, logger *logrus.Logger) *PostgresMatchStore {
	return &PostgresMatchStore{
		db:  db,
		log: logger,
	}
}

// Write inserts one row per scored match, keeping rank order, all Pending.
func (s *PostgresMatchStore) Write(ctx context.Context, requestID string, matches []domain.ScoredMatch) ([]domain.MatchRecord, error) {
	query := `
		INSERT INTO match_records (
			request_id, rank, donor_id, confidence, estimated_minutes,
			reasoning, provider, distance_km, donation_count, response_state
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'PENDING')
		RETURNING id, created_at`

	batch := &pgx.Batch{}
	for rank, match := range matches {
		batch.Queue(query,
			requestID,
			rank,
			match.DonorID,
			match.Confidence,
			match.EstimatedMinutes,
			match.Reasoning,
			string(match.Provider),
			match.DistanceKm,
			match.DonationCount,
		)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	created := make([]domain.MatchRecord, 0, len(matches))
	for _, match := range matches {
		rec := domain.MatchRecord{
			RequestID:     requestID,
			Match:         match,
			ResponseState: domain.RESPONSE_PENDING,
		}
		if err := results.QueryRow().Scan(&rec.ID, &rec.CreatedAt); err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"error":      err,
			}).Error("Failed to insert match records")
			return nil, fmt.Errorf("inserting match records: %w", err)
		}
		created = append(created, rec)
	}

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"records":    len(created),
	}).Info("Match records persisted")

	return created, nil
}

// GetByRequest returns the request's records in rank order.
func (s *PostgresMatchStore) GetByRequest(ctx context.Context, requestID string) ([]domain.MatchRecord, error) {
	query := `
		SELECT id, request_id, donor_id, confidence, estimated_minutes,
			   reasoning, provider, distance_km, donation_count,
			   response_state, responded_at, created_at
		FROM match_records
		WHERE request_id = $1
		ORDER BY rank`

	rows, err := s.db.Query(ctx, query, requestID)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err,
		}).Error("Failed to get match records")
		return nil, fmt.Errorf("getting match records: %w", err)
	}
	defer rows.Close()

	var records []domain.MatchRecord
	for rows.Next() {
		rec, err := scanMatchRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match record row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating match record rows: %w", err)
	}

	return records, nil
}

// UpdateResponse applies a donor response. The WHERE clause enforces the
// set-at-most-once state machine at the database level, so concurrent
// responses from two app instances cannot both win.
func (s *PostgresMatchStore) UpdateResponse(ctx context.Context, matchID string, state domain.ResponseState) (*domain.MatchRecord, error) {
	if !state.IsTerminal() {
		return nil, domain.ErrInvalidResponse
	}

	query := `
		UPDATE match_records
		SET response_state = $2, responded_at = NOW()
		WHERE id = $1 AND response_state = 'PENDING'
		RETURNING id, request_id, donor_id, confidence, estimated_minutes,
				  reasoning, provider, distance_km, donation_count,
				  response_state, responded_at, created_at`

	rec, err := scanMatchRecord(s.db.QueryRow(ctx, query, matchID, string(state)))
	if err == nil {
		s.log.WithFields(logrus.Fields{
			"match_id": matchID,
			"state":    state.String(),
		}).Info("Donor response persisted")
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		s.log.WithFields(logrus.Fields{
			"match_id": matchID,
			"error":    err,
		}).Error("Failed to update donor response")
		return nil, fmt.Errorf("updating donor response: %w", err)
	}

	// No row matched: either the match does not exist or it already carries
	// a response. Distinguish for the caller.
	var existing domain.ResponseState
	err = s.db.QueryRow(ctx, `SELECT response_state FROM match_records WHERE id = $1`, matchID).Scan(&existing)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("match %s: %w", matchID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("checking donor response state: %w", err)
	}
	return nil, fmt.Errorf("match %s already %s: %w", matchID, existing, domain.ErrAlreadyResponded)
}

// HasAccepted reports whether any of the request's records is Accepted.
func (s *PostgresMatchStore) HasAccepted(ctx context.Context, requestID string) (bool, error) {
	var accepted bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM match_records WHERE request_id = $1 AND response_state = 'ACCEPTED')`,
		requestID,
	).Scan(&accepted)
	if err != nil {
		return false, fmt.Errorf("checking accepted matches: %w", err)
	}
	return accepted, nil
}

// responseEvent is the trigger's NOTIFY payload.
type responseEvent struct {
	MatchID   string `json:"match_id"`
	RequestID string `json:"request_id"`
}

// Subscribe LISTENs on the response channel with a dedicated connection and
// streams the request's updated records. The channel closes when ctx is
// cancelled or the connection drops; callers resubscribe.
func (s *PostgresMatchStore) Subscribe(ctx context.Context, requestID string) (<-chan domain.MatchRecord, error) {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+responseChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listening on %s: %w", responseChannel, err)
	}

	updates := make(chan domain.MatchRecord, subscriberBuffer)

	go func() {
		defer close(updates)
		defer conn.Release()

		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.log.WithFields(logrus.Fields{
						"request_id": requestID,
						"error":      err,
					}).Warn("Response listen connection lost")
				}
				return
			}

			var event responseEvent
			if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
				s.log.WithField("payload", notification.Payload).Warn("Discarding malformed response notification")
				continue
			}
			if event.RequestID != requestID {
				continue
			}

			rec, err := s.getByID(ctx, event.MatchID)
			if err != nil {
				s.log.WithFields(logrus.Fields{
					"match_id": event.MatchID,
					"error":    err,
				}).Warn("Failed to load notified match record")
				continue
			}

			select {
			case updates <- *rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	return updates, nil
}

func (s *PostgresMatchStore) getByID(ctx context.Context, matchID string) (*domain.MatchRecord, error) {
	query := `
		SELECT id, request_id, donor_id, confidence, estimated_minutes,
			   reasoning, provider, distance_km, donation_count,
			   response_state, responded_at, created_at
		FROM match_records
		WHERE id = $1`

	rec, err := scanMatchRecord(s.db.QueryRow(ctx, query, matchID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("match %s: %w", matchID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting match record: %w", err)
	}
	return rec, nil
}

func scanMatchRecord(row pgx.Row) (*domain.MatchRecord, error) {
	var rec domain.MatchRecord
	var provider string
	var state string
	var respondedAt *time.Time

	err := row.Scan(
		&rec.ID,
		&rec.RequestID,
		&rec.Match.DonorID,
		&rec.Match.Confidence,
		&rec.Match.EstimatedMinutes,
		&rec.Match.Reasoning,
		&provider,
		&rec.Match.DistanceKm,
		&rec.Match.DonationCount,
		&state,
		&respondedAt,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Match.Provider = domain.ProviderTag(provider)
	rec.ResponseState = domain.ResponseState(state)
	rec.RespondedAt = respondedAt
	return &rec, nil
}
