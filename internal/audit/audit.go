// Package audit maintains the append-only trail of security-relevant
// decisions. Records are written once and never mutated or deleted.
package audit

import (
	"context"
	"time"
)

// Outcome values recorded per event.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Record is one append-only audit event. UserID is nil for unauthenticated
// attempts.
type Record struct {
	ID        string
	UserID    *int64
	Action    string
	Resource  string
	Result    string
	Details   string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

// Filter narrows List and Stats queries.
type Filter struct {
	UserID *int64
	Action string
	Result string
	Offset int
	Limit  int
}

// Stats aggregates the trail for reporting.
type Stats struct {
	Total    int64
	ByAction map[string]int64
	ByResult map[string]int64
}

// Store persists audit records. Append must be single-statement atomic;
// deletes are not part of the interface on purpose.
type Store interface {
	Append(ctx context.Context, rec *Record) error
	List(ctx context.Context, f Filter) ([]*Record, error)
	Stats(ctx context.Context, f Filter) (Stats, error)
}
