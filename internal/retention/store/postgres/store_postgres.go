// Package postgres persists the retention store in PostgreSQL with pgvector
// for similarity search. Entries land in a monthly partition key column so
// sweeps and old-range queries stay off the hot partition's index range.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"governor/internal/retention"
	"governor/pkg/platform/sentinel"
)

// DefaultDimensions is the embedding width when none is configured.
const DefaultDimensions = 1536

// Store implements retention.Store over a pgx pool.
type Store struct {
	pool     *pgxpool.Pool
	policies *retention.Policies
	dims     int
}

// Option configures a Store.
type Option func(*Store)

// WithDimensions sets the embedding column width.
func WithDimensions(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.dims = n
		}
	}
}

// New creates a PostgreSQL-backed retention store.
func New(pool *pgxpool.Pool, policies *retention.Policies, opts ...Option) *Store {
	s := &Store{pool: pool, policies: policies, dims: DefaultDimensions}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema creates the memory_entries table and indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS memory_entries (
			id         UUID PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			bucket     TEXT NOT NULL,
			content    TEXT NOT NULL,
			salience   DOUBLE PRECISION NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			embedding  vector(%d),
			policy     TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS memory_entries_bucket_idx ON memory_entries (bucket);
		CREATE INDEX IF NOT EXISTS memory_entries_policy_ts_idx ON memory_entries (policy, ts);
		CREATE INDEX IF NOT EXISTS memory_entries_session_idx ON memory_entries (session_id);
	`, s.dims)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure memory_entries schema: %w", err)
	}
	return nil
}

// Append stores a new entry and returns its ID.
func (s *Store) Append(ctx context.Context, entry retention.Entry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	var embedding any
	if len(entry.Embedding) > 0 {
		embedding = pgvector.NewVector(entry.Embedding)
	}

	query := `
		INSERT INTO memory_entries (id, ts, bucket, content, salience, session_id, embedding, policy)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, query,
		entry.ID,
		entry.Timestamp,
		entry.Timestamp.UTC().Format("2006-01"),
		entry.Content,
		entry.Salience,
		entry.SessionID,
		embedding,
		entry.Policy,
	)
	if err != nil {
		return "", fmt.Errorf("append memory entry: %w", wrapUnavailable(err))
	}
	return entry.ID, nil
}

// Query returns up to k entries matching the filter. Similarity requests
// rank embedded entries by cosine distance; entries without embeddings rank
// after them by recency, so missing embeddings degrade instead of erroring.
func (s *Store) Query(ctx context.Context, filter retention.Filter, k int) ([]retention.Entry, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.SessionID != "" {
		where = append(where, "session_id = "+arg(filter.SessionID))
	}
	if filter.Policy != "" {
		where = append(where, "policy = "+arg(filter.Policy))
	}
	if !filter.Since.IsZero() {
		where = append(where, "ts >= "+arg(filter.Since))
	}

	order := "ORDER BY ts DESC"
	if len(filter.Embedding) > 0 {
		vec := arg(pgvector.NewVector(filter.Embedding))
		order = fmt.Sprintf(
			"ORDER BY (embedding IS NULL), embedding <=> %s, ts DESC", vec)
	}

	query := "SELECT id, ts, content, salience, session_id, embedding, policy FROM memory_entries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " " + order
	if k > 0 {
		query += " LIMIT " + arg(k)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memory entries: %w", wrapUnavailable(err))
	}
	defer rows.Close()

	var entries []retention.Entry
	for rows.Next() {
		var (
			e   retention.Entry
			vec *pgvector.Vector
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Content, &e.Salience, &e.SessionID, &vec, &e.Policy); err != nil {
			return nil, fmt.Errorf("scan memory entry: %w", err)
		}
		if vec != nil {
			e.Embedding = vec.Slice()
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory entries: %w", err)
	}
	return entries, nil
}

// Rescore updates the salience of one entry.
func (s *Store) Rescore(ctx context.Context, id string, salience float64) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE memory_entries SET salience = $1 WHERE id = $2", salience, id)
	if err != nil {
		return fmt.Errorf("rescore memory entry %s: %w", id, wrapUnavailable(err))
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Evict removes entries no longer satisfying their policy. Each policy is
// swept in its own short statements so no long transaction blocks appends.
func (s *Store) Evict(ctx context.Context, now time.Time) (int, error) {
	removed := 0

	for _, policy := range s.policies.All() {
		if !policy.NeverExpires() {
			cutoff := now.AddDate(0, 0, -policy.RetentionDays)
			tag, err := s.pool.Exec(ctx, `
				DELETE FROM memory_entries
				WHERE policy = $1 AND ts < $2 AND salience < $3
			`, policy.Name, cutoff, policy.MinSalience)
			if err != nil {
				return removed, fmt.Errorf("sweep policy %s: %w", policy.Name, wrapUnavailable(err))
			}
			removed += int(tag.RowsAffected())
		}

		if policy.MaxItems > 0 {
			// Keep the highest-salience, newest MaxItems entries;
			// everything else under this policy goes.
			tag, err := s.pool.Exec(ctx, `
				DELETE FROM memory_entries
				WHERE policy = $1 AND id NOT IN (
					SELECT id FROM memory_entries
					WHERE policy = $1
					ORDER BY salience DESC, ts DESC
					LIMIT $2
				)
			`, policy.Name, policy.MaxItems)
			if err != nil {
				return removed, fmt.Errorf("cap policy %s: %w", policy.Name, wrapUnavailable(err))
			}
			removed += int(tag.RowsAffected())
		}
	}

	return removed, nil
}

func wrapUnavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
}
