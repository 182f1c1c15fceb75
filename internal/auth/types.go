package auth

import "time"

// User is a named security subject. The password hash is one-way and never
// leaves this package in plaintext-recoverable form.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}

// Session is the ledger's persisted counterpart to an access token, keyed by
// the token's jti. It is mutated only by revocation and never physically
// deleted; expiry is a computed property.
type Session struct {
	ID        string     `json:"id"`
	UserID    int64      `json:"user_id"`
	TokenID   string     `json:"token_id"`
	IPAddress string     `json:"ip_address,omitempty"`
	UserAgent string     `json:"user_agent,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	IsActive  bool       `json:"is_active"`
}

// ClientContext carries the originating address and agent string of a
// request, recorded alongside sessions and audit entries.
type ClientContext struct {
	IPAddress string
	UserAgent string
}

// Principal is the outcome of a successful verification: the verified claims
// and, once resolved, the backing user.
type Principal struct {
	User   *User
	Claims *Claims
}

// LoginResult is returned by Login and Refresh.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	User         *User
}
