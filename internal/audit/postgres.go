package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, rec *Record) error {
	var userID sql.NullInt64
	if rec.UserID != nil {
		userID = sql.NullInt64{Int64: *rec.UserID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`insert into audit_logs(id, user_id, action, resource, result, details, ip_address, user_agent, created_at)
		 values($1,$2,$3,nullif($4,''),$5,nullif($6,''),nullif($7,''),nullif($8,''),$9)`,
		rec.ID, userID, rec.Action, rec.Resource, rec.Result, rec.Details,
		rec.IPAddress, rec.UserAgent, rec.CreatedAt,
	)
	return err
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]*Record, error) {
	where, args := buildFilter(f)
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	args = append(args, limit, f.Offset)
	query := fmt.Sprintf(`
		select id, user_id, coalesce(action,''), coalesce(resource,''), coalesce(result,''),
		       coalesce(details,''), coalesce(ip_address,''), coalesce(user_agent,''), created_at
		from audit_logs %s
		order by created_at desc
		limit $%d offset $%d`, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Record
	for rows.Next() {
		var (
			rec    Record
			userID sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &userID, &rec.Action, &rec.Resource, &rec.Result,
			&rec.Details, &rec.IPAddress, &rec.UserAgent, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if userID.Valid {
			rec.UserID = &userID.Int64
		}
		res = append(res, &rec)
	}
	return res, rows.Err()
}

func (s *PGStore) Stats(ctx context.Context, f Filter) (Stats, error) {
	where, args := buildFilter(f)
	stats := Stats{ByAction: map[string]int64{}, ByResult: map[string]int64{}}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`select action, result, count(*) from audit_logs %s group by action, result`, where), args...)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			action, result string
			count          int64
		)
		if err := rows.Scan(&action, &result, &count); err != nil {
			return Stats{}, err
		}
		stats.Total += count
		stats.ByAction[action] += count
		stats.ByResult[result] += count
	}
	return stats, rows.Err()
}

func buildFilter(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.UserID != nil {
		args = append(args, *f.UserID)
		conds = append(conds, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		conds = append(conds, fmt.Sprintf("action=$%d", len(args)))
	}
	if f.Result != "" {
		args = append(args, f.Result)
		conds = append(conds, fmt.Sprintf("result=$%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "where " + strings.Join(conds, " and "), args
}
