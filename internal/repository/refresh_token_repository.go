package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-adp-auth/internal/models"
	appErrors "github.com/noah-isme/sma-adp-auth/pkg/errors"
)

const uniqueViolation = pq.ErrorCode("23505")

// RefreshTokenRepository is the PostgreSQL refresh-token ledger. The primary
// key on token_id rejects duplicate identifiers and the conditional UPDATE in
// RevokeIfActive is the single serialization point for rotation.
type RefreshTokenRepository struct {
	db *sqlx.DB
}

// NewRefreshTokenRepository constructs the ledger repository.
func NewRefreshTokenRepository(db *sqlx.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create inserts a new ledger record.
func (r *RefreshTokenRepository) Create(ctx context.Context, record *models.RefreshRecord) error {
	const query = `INSERT INTO refresh_tokens (token_id, user_id, expires_at, created_at, revoked_at, user_agent, ip_address) VALUES (:token_id, :user_id, :expires_at, :created_at, :revoked_at, :user_agent, :ip_address)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return appErrors.ErrDuplicateTokenID
		}
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindByTokenID returns the ledger record for a token identifier.
func (r *RefreshTokenRepository) FindByTokenID(ctx context.Context, tokenID string) (*models.RefreshRecord, error) {
	const query = `SELECT token_id, user_id, expires_at, created_at, revoked_at, user_agent, ip_address FROM refresh_tokens WHERE token_id = $1 LIMIT 1`
	var record models.RefreshRecord
	if err := r.db.GetContext(ctx, &record, query, tokenID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrRecordNotFound
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &record, nil
}

// RevokeIfActive sets revoked_at only when it is still NULL. Exactly one
// caller observes a nil error for a given token identifier.
func (r *RefreshTokenRepository) RevokeIfActive(ctx context.Context, tokenID string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE token_id = $1 AND revoked_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, tokenID, revokedAt)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke refresh token rows: %w", err)
	}
	if affected == 1 {
		return nil
	}

	const exists = `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token_id = $1)`
	var found bool
	if err := r.db.GetContext(ctx, &found, exists, tokenID); err != nil {
		return fmt.Errorf("check refresh token: %w", err)
	}
	if !found {
		return appErrors.ErrRecordNotFound
	}
	return appErrors.ErrAlreadyRevoked
}

// Revoke marks a record revoked. Unknown and already revoked identifiers are no-ops.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenID string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE token_id = $1 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, tokenID, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every live record of the user and returns how many changed.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, userID, revokedAt)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens rows: %w", err)
	}
	return affected, nil
}

// Ping checks connectivity for readiness probes.
func (r *RefreshTokenRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
