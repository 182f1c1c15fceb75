package audit

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store used in development mode and tests.
type MemStore struct {
	mu   sync.Mutex
	recs []*Record
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory audit store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Append(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.recs = append(s.recs, &cp)
	return nil
}

func (s *MemStore) List(ctx context.Context, f Filter) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Record
	// Newest first, matching the SQL ordering.
	for i := len(s.recs) - 1; i >= 0; i-- {
		rec := s.recs[i]
		if !matches(rec, f) {
			continue
		}
		matched = append(matched, rec)
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if f.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]*Record, len(matched))
	for i, rec := range matched {
		cp := *rec
		out[i] = &cp
	}
	return out, nil
}

func (s *MemStore) Stats(ctx context.Context, f Filter) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{ByAction: map[string]int64{}, ByResult: map[string]int64{}}
	for _, rec := range s.recs {
		if !matches(rec, f) {
			continue
		}
		stats.Total++
		stats.ByAction[rec.Action]++
		stats.ByResult[rec.Result]++
	}
	return stats, nil
}

func matches(rec *Record, f Filter) bool {
	if f.UserID != nil && (rec.UserID == nil || *rec.UserID != *f.UserID) {
		return false
	}
	if f.Action != "" && rec.Action != f.Action {
		return false
	}
	if f.Result != "" && rec.Result != f.Result {
		return false
	}
	return true
}
