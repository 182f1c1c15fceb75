package audit

import (
	"context"
	"time"

	"authkeep.org/internal/ids"
	"authkeep.org/internal/obs"
)

// Event describes a decision to be recorded.
type Event struct {
	UserID    *int64
	Action    string
	Resource  string
	Result    string
	Details   string
	IPAddress string
	UserAgent string
}

// Recorder appends audit records best-effort: a failed write is logged and
// swallowed so an audit-store outage never blocks the authentication decision
// it describes. Losing an entry is less harmful than losing all logins.
type Recorder struct {
	store Store
	now   func() time.Time
}

// RecorderOption configures Recorder behavior.
type RecorderOption func(*Recorder)

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder over the given store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one event and mirrors it as a structured log line. It never
// returns an error; the returned record is what was handed to the store.
func (r *Recorder) Record(ctx context.Context, ev Event) *Record {
	rec := &Record{
		ID:        ids.New(),
		UserID:    ev.UserID,
		Action:    ev.Action,
		Resource:  ev.Resource,
		Result:    ev.Result,
		Details:   ev.Details,
		IPAddress: ev.IPAddress,
		UserAgent: ev.UserAgent,
		CreatedAt: r.now().UTC(),
	}

	fields := map[string]any{
		"type":   "audit",
		"action": rec.Action,
		"result": rec.Result,
	}
	if rec.UserID != nil {
		fields["user_id"] = *rec.UserID
	}
	if rec.Resource != "" {
		fields["resource"] = rec.Resource
	}
	if rec.Details != "" {
		fields["details"] = rec.Details
	}
	obs.Info("audit event", fields)

	if r.store == nil {
		return rec
	}
	if err := r.store.Append(ctx, rec); err != nil {
		obs.Error("audit append failed", map[string]any{
			"action": rec.Action,
			"result": rec.Result,
			"err":    err.Error(),
		})
	}
	return rec
}
