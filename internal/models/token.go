package models

import "time"

// TokenKind distinguishes access from refresh tokens inside the signed claims.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// RefreshRecord is the ledger entry backing a refresh token, keyed by TokenID.
type RefreshRecord struct {
	TokenID   string     `db:"token_id" json:"token_id"`
	UserID    string     `db:"user_id" json:"user_id"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	UserAgent string     `db:"user_agent" json:"user_agent"`
	IPAddress string     `db:"ip_address" json:"ip_address"`
}

// Revoked reports whether the record has been used or revoked.
func (r *RefreshRecord) Revoked() bool {
	return r.RevokedAt != nil
}

// Expired reports whether the ledger expiry has passed at now.
func (r *RefreshRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
