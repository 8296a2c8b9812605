// Package postgres persists the violation ledger in PostgreSQL. The
// increment is a single INSERT ... ON CONFLICT ... DO UPDATE statement, so
// concurrent Record calls for the same rule ID serialize inside the database
// with no read-modify-write race, and durability holds once the statement
// commits.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"governor/internal/ledger"
	"governor/pkg/platform/sentinel"
)

// Schema for the violations table. Applied by migrations; kept here so the
// store and its DDL stay in one place.
const Schema = `
CREATE TABLE IF NOT EXISTS violations (
	rule_id          TEXT PRIMARY KEY,
	incident_count   BIGINT NOT NULL DEFAULT 0,
	first_occurrence TIMESTAMPTZ NOT NULL,
	last_occurrence  TIMESTAMPTZ NOT NULL
)`

// Store implements ledger.Store over database/sql.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL-backed ledger store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the violations table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure violations schema: %w", err)
	}
	return nil
}

// Record atomically increments or creates the tally for ruleID.
func (s *Store) Record(ctx context.Context, ruleID string, at time.Time) (ledger.Record, error) {
	query := `
		INSERT INTO violations (rule_id, incident_count, first_occurrence, last_occurrence)
		VALUES ($1, 1, $2, $2)
		ON CONFLICT (rule_id) DO UPDATE
		SET incident_count  = violations.incident_count + 1,
		    last_occurrence = EXCLUDED.last_occurrence
		RETURNING incident_count, first_occurrence, last_occurrence
	`
	rec := ledger.Record{RuleID: ruleID}
	err := s.db.QueryRowContext(ctx, query, ruleID, at).
		Scan(&rec.IncidentCount, &rec.FirstOccurrence, &rec.LastOccurrence)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("record violation %s: %w", ruleID, wrapUnavailable(err))
	}
	return rec, nil
}

// Get returns a snapshot of the record for ruleID.
func (s *Store) Get(ctx context.Context, ruleID string) (ledger.Record, error) {
	query := `
		SELECT incident_count, first_occurrence, last_occurrence
		FROM violations
		WHERE rule_id = $1
	`
	rec := ledger.Record{RuleID: ruleID}
	err := s.db.QueryRowContext(ctx, query, ruleID).
		Scan(&rec.IncidentCount, &rec.FirstOccurrence, &rec.LastOccurrence)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Record{}, sentinel.ErrNotFound
		}
		return ledger.Record{}, fmt.Errorf("get violation %s: %w", ruleID, wrapUnavailable(err))
	}
	return rec, nil
}

// Export returns all records ordered by rule ID.
func (s *Store) Export(ctx context.Context) ([]ledger.Record, error) {
	query := `
		SELECT rule_id, incident_count, first_occurrence, last_occurrence
		FROM violations
		ORDER BY rule_id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("export violations: %w", wrapUnavailable(err))
	}
	defer rows.Close()

	var records []ledger.Record
	for rows.Next() {
		var rec ledger.Record
		if err := rows.Scan(&rec.RuleID, &rec.IncidentCount, &rec.FirstOccurrence, &rec.LastOccurrence); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate violations: %w", err)
	}
	return records, nil
}

// wrapUnavailable tags connection-level failures so the validator's
// degradation path can distinguish an unreachable store from a bad query.
func wrapUnavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
}
