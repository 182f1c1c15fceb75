package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"authkeep.org/internal/ids"
)

const pgUniqueViolation = "23505"

// PGStore implements Store on PostgreSQL via database/sql over the pgx
// stdlib driver.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(ctx context.Context) UserStore       { return &pgUserStore{db: s.db} }
func (s *PGStore) Sessions(ctx context.Context) SessionStore { return &pgSessionStore{db: s.db} }

// User store ---------------------------------------------------------------

type pgUserStore struct{ db *sql.DB }

const userColumns = `id, username, coalesce(email,''), password_hash, is_active, is_admin, created_at, updated_at, last_login`

func (s *pgUserStore) Create(ctx context.Context, u *User) error {
	err := s.db.QueryRowContext(ctx,
		`insert into users(username, email, password_hash, is_active, is_admin)
		 values($1, nullif($2,''), $3, $4, $5)
		 returning id, created_at, updated_at`,
		u.Username, u.Email, u.PasswordHash, u.IsActive, u.IsAdmin,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *pgUserStore) Find(ctx context.Context, id int64) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *pgUserStore) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username=$1 or email=$1`, identifier))
}

func (s *pgUserStore) List(ctx context.Context, offset, limit int) ([]*User, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users order by id asc limit $1 offset $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *pgUserStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&n)
	return n, err
}

func (s *pgUserStore) Update(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx,
		`update users set email=nullif($2,''), is_active=$3, is_admin=$4, updated_at=now() where id=$1`,
		u.ID, u.Email, u.IsActive, u.IsAdmin,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrConflict
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgUserStore) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `update users set last_login=$2 where id=$1`, id, at)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u         User
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.IsActive, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	return &u, nil
}

// Session store ------------------------------------------------------------

type pgSessionStore struct{ db *sql.DB }

func (s *pgSessionStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into user_sessions(id, user_id, token_id, ip_address, user_agent, created_at, expires_at, is_active)
		 values($1,$2,$3,nullif($4,''),nullif($5,''),$6,$7,$8)`,
		sess.ID, sess.UserID, sess.TokenID, sess.IPAddress, sess.UserAgent,
		sess.CreatedAt, sess.ExpiresAt, sess.IsActive,
	)
	return err
}

// GetActive filters stale rows in the query itself: an expired session is
// absent even when its active flag was never flipped.
func (s *pgSessionStore) GetActive(ctx context.Context, tokenID string) (*Session, error) {
	var (
		sess      Session
		ip, agent sql.NullString
		revokedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`select id, user_id, token_id, ip_address, user_agent, created_at, expires_at, revoked_at, is_active
		 from user_sessions
		 where token_id=$1 and is_active=true and expires_at > now()`, tokenID,
	).Scan(&sess.ID, &sess.UserID, &sess.TokenID, &ip, &agent,
		&sess.CreatedAt, &sess.ExpiresAt, &revokedAt, &sess.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.IPAddress = ip.String
	sess.UserAgent = agent.String
	if revokedAt.Valid {
		sess.RevokedAt = &revokedAt.Time
	}
	return &sess, nil
}

// Revoke's is_active guard makes the second call a no-op reporting false.
func (s *pgSessionStore) Revoke(ctx context.Context, tokenID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update user_sessions set is_active=false, revoked_at=$2 where token_id=$1 and is_active=true`,
		tokenID, at,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
