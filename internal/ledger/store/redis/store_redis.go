// Package redis persists the violation ledger in Redis for deployments where
// multiple governor processes share one ledger. HINCRBY is atomic on the
// server, so concurrent Record calls cannot lose updates; durability follows
// the Redis persistence configuration (AOF recommended).
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"governor/internal/ledger"
	"governor/pkg/platform/sentinel"
)

const keyPrefix = "governor:ledger:"

const (
	fieldCount = "incident_count"
	fieldFirst = "first_occurrence"
	fieldLast  = "last_occurrence"
)

// Store implements ledger.Store over a Redis hash per rule ID.
type Store struct {
	client goredis.UniversalClient
}

// New creates a Redis-backed ledger store.
func New(client goredis.UniversalClient) *Store {
	return &Store{client: client}
}

// Record atomically increments or creates the tally for ruleID.
func (s *Store) Record(ctx context.Context, ruleID string, at time.Time) (ledger.Record, error) {
	key := keyPrefix + ruleID
	stamp := at.UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, fieldCount, 1)
	pipe.HSetNX(ctx, key, fieldFirst, stamp)
	pipe.HSet(ctx, key, fieldLast, stamp)
	if _, err := pipe.Exec(ctx); err != nil {
		return ledger.Record{}, fmt.Errorf("record violation %s: %w", ruleID, wrapUnavailable(err))
	}

	// The pipeline stamped last_occurrence with this call's time; first
	// may predate it, so read it back.
	first, err := s.client.HGet(ctx, key, fieldFirst).Result()
	if err != nil {
		return ledger.Record{}, fmt.Errorf("read first occurrence %s: %w", ruleID, wrapUnavailable(err))
	}
	firstAt, err := time.Parse(time.RFC3339Nano, first)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("parse first occurrence %s: %w", ruleID, err)
	}

	return ledger.Record{
		RuleID:          ruleID,
		IncidentCount:   incr.Val(),
		FirstOccurrence: firstAt,
		LastOccurrence:  at.UTC(),
	}, nil
}

// Get returns a snapshot of the record for ruleID.
func (s *Store) Get(ctx context.Context, ruleID string) (ledger.Record, error) {
	fields, err := s.client.HGetAll(ctx, keyPrefix+ruleID).Result()
	if err != nil {
		return ledger.Record{}, fmt.Errorf("get violation %s: %w", ruleID, wrapUnavailable(err))
	}
	if len(fields) == 0 {
		return ledger.Record{}, sentinel.ErrNotFound
	}
	return recordFromFields(ruleID, fields)
}

// Export returns all records ordered by rule ID.
func (s *Store) Export(ctx context.Context) ([]ledger.Record, error) {
	var records []ledger.Record

	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("export violation %s: %w", key, wrapUnavailable(err))
		}
		if len(fields) == 0 {
			continue
		}
		rec, err := recordFromFields(key[len(keyPrefix):], fields)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan ledger keys: %w", wrapUnavailable(err))
	}

	sort.Slice(records, func(i, j int) bool { return records[i].RuleID < records[j].RuleID })
	return records, nil
}

func recordFromFields(ruleID string, fields map[string]string) (ledger.Record, error) {
	count, err := strconv.ParseInt(fields[fieldCount], 10, 64)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("parse incident count %s: %w", ruleID, err)
	}
	first, err := time.Parse(time.RFC3339Nano, fields[fieldFirst])
	if err != nil {
		return ledger.Record{}, fmt.Errorf("parse first occurrence %s: %w", ruleID, err)
	}
	last, err := time.Parse(time.RFC3339Nano, fields[fieldLast])
	if err != nil {
		return ledger.Record{}, fmt.Errorf("parse last occurrence %s: %w", ruleID, err)
	}
	return ledger.Record{
		RuleID:          ruleID,
		IncidentCount:   count,
		FirstOccurrence: first,
		LastOccurrence:  last,
	}, nil
}

func wrapUnavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
}
