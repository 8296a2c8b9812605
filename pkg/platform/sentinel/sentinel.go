package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record or entry does not exist in the store
// - ErrConflict: concurrent write detected; stores retry internally
// - ErrUnavailable: backing store temporarily unreachable
//
// For validation errors (bad input, unknown tier or policy name), use
// pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
