package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/sma-adp-auth/internal/models"
	appErrors "github.com/noah-isme/sma-adp-auth/pkg/errors"
)

const (
	createStatusDuplicate int64 = 0
	createStatusCreated   int64 = 1

	revokeStatusNotFound int64 = 0
	revokeStatusRevoked  int64 = 1
	revokeStatusAlready  int64 = 2
)

// KEYS[1] record hash, KEYS[2] per-user index set.
// ARGV: user_id, expires_at ms, created_at ms, user_agent, ip_address, ttl ms, token_id.
const createRecordScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "user_id", ARGV[1],
  "expires_at", ARGV[2],
  "created_at", ARGV[3],
  "revoked_at", "",
  "user_agent", ARGV[4],
  "ip_address", ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[6])
redis.call("SADD", KEYS[2], ARGV[7])
local ttl = redis.call("PTTL", KEYS[2])
if ttl < tonumber(ARGV[6]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[6])
end
return 1
`

// KEYS[1] record hash. ARGV[1] revoked_at ms.
const revokeIfActiveScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local revoked = redis.call("HGET", KEYS[1], "revoked_at")
if revoked and revoked ~= "" then
  return 2
end
redis.call("HSET", KEYS[1], "revoked_at", ARGV[1])
return 1
`

var (
	createRecordLua   = redis.NewScript(createRecordScript)
	revokeIfActiveLua = redis.NewScript(revokeIfActiveScript)
)

// RedisRefreshTokenRepository is a Redis refresh-token ledger. Create and
// revoke run as Lua scripts so the existence check and the write are atomic.
// Records outlive their expiry by retention so late replays are still
// reported as revoked or expired rather than unknown.
type RedisRefreshTokenRepository struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisRefreshTokenRepository constructs the Redis ledger.
func NewRedisRefreshTokenRepository(client redis.UniversalClient, prefix string, retention time.Duration) *RedisRefreshTokenRepository {
	if prefix == "" {
		prefix = "refresh"
	}
	if retention < 0 {
		retention = 0
	}
	return &RedisRefreshTokenRepository{client: client, prefix: prefix, retention: retention}
}

func (r *RedisRefreshTokenRepository) recordKey(tokenID string) string {
	return fmt.Sprintf("%s:token:%s", r.prefix, tokenID)
}

func (r *RedisRefreshTokenRepository) userKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", r.prefix, userID)
}

// Create stores a new ledger record, rejecting an existing token identifier.
func (r *RedisRefreshTokenRepository) Create(ctx context.Context, record *models.RefreshRecord) error {
	ttl := record.ExpiresAt.Sub(record.CreatedAt) + r.retention
	if ttl < time.Second {
		ttl = time.Second
	}

	status, err := createRecordLua.Run(ctx, r.client,
		[]string{r.recordKey(record.TokenID), r.userKey(record.UserID)},
		record.UserID,
		record.ExpiresAt.UnixMilli(),
		record.CreatedAt.UnixMilli(),
		record.UserAgent,
		record.IPAddress,
		ttl.Milliseconds(),
		record.TokenID,
	).Int64()
	if err != nil {
		return fmt.Errorf("redis create refresh token: %w", err)
	}
	if status == createStatusDuplicate {
		return appErrors.ErrDuplicateTokenID
	}
	return nil
}

// FindByTokenID returns the ledger record for a token identifier.
func (r *RedisRefreshTokenRepository) FindByTokenID(ctx context.Context, tokenID string) (*models.RefreshRecord, error) {
	fields, err := r.client.HGetAll(ctx, r.recordKey(tokenID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis find refresh token: %w", err)
	}
	if len(fields) == 0 {
		return nil, appErrors.ErrRecordNotFound
	}
	return decodeRecord(tokenID, fields)
}

// RevokeIfActive atomically sets revoked_at when it is still empty.
func (r *RedisRefreshTokenRepository) RevokeIfActive(ctx context.Context, tokenID string, revokedAt time.Time) error {
	status, err := revokeIfActiveLua.Run(ctx, r.client, []string{r.recordKey(tokenID)}, revokedAt.UnixMilli()).Int64()
	if err != nil {
		return fmt.Errorf("redis revoke refresh token: %w", err)
	}
	switch status {
	case revokeStatusRevoked:
		return nil
	case revokeStatusAlready:
		return appErrors.ErrAlreadyRevoked
	case revokeStatusNotFound:
		return appErrors.ErrRecordNotFound
	default:
		return fmt.Errorf("redis revoke refresh token: unexpected status %d: %w", status, appErrors.ErrCorruptRecord)
	}
}

// Revoke marks a record revoked. Unknown and already revoked identifiers are no-ops.
func (r *RedisRefreshTokenRepository) Revoke(ctx context.Context, tokenID string, revokedAt time.Time) error {
	if _, err := revokeIfActiveLua.Run(ctx, r.client, []string{r.recordKey(tokenID)}, revokedAt.UnixMilli()).Int64(); err != nil {
		return fmt.Errorf("redis revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every live record indexed under the user.
func (r *RedisRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error) {
	tokenIDs, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list user refresh tokens: %w", err)
	}

	var revoked int64
	stale := make([]interface{}, 0)
	for _, tokenID := range tokenIDs {
		status, err := revokeIfActiveLua.Run(ctx, r.client, []string{r.recordKey(tokenID)}, revokedAt.UnixMilli()).Int64()
		if err != nil {
			return revoked, fmt.Errorf("redis revoke refresh token: %w", err)
		}
		switch status {
		case revokeStatusRevoked:
			revoked++
		case revokeStatusNotFound:
			stale = append(stale, tokenID)
		}
	}

	if len(stale) > 0 {
		if err := r.client.SRem(ctx, r.userKey(userID), stale...).Err(); err != nil {
			return revoked, fmt.Errorf("redis prune user refresh tokens: %w", err)
		}
	}

	return revoked, nil
}

// Ping checks connectivity for readiness probes.
func (r *RedisRefreshTokenRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// redactTokenID keeps a prefix of a token identifier for error messages.
func redactTokenID(tokenID string) string {
	if len(tokenID) <= 8 {
		return tokenID
	}
	return tokenID[:8] + "..."
}

func decodeRecord(tokenID string, fields map[string]string) (*models.RefreshRecord, error) {
	logID := redactTokenID(tokenID)
	userID := fields["user_id"]
	if userID == "" {
		return nil, fmt.Errorf("refresh token %s: missing user_id: %w", logID, appErrors.ErrCorruptRecord)
	}

	expiresAt, err := parseMillis(fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("refresh token %s: expires_at: %w", logID, appErrors.ErrCorruptRecord)
	}
	createdAt, err := parseMillis(fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("refresh token %s: created_at: %w", logID, appErrors.ErrCorruptRecord)
	}

	record := &models.RefreshRecord{
		TokenID:   tokenID,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
		UserAgent: fields["user_agent"],
		IPAddress: fields["ip_address"],
	}

	if raw := fields["revoked_at"]; raw != "" {
		revokedAt, err := parseMillis(raw)
		if err != nil {
			return nil, fmt.Errorf("refresh token %s: revoked_at: %w", logID, appErrors.ErrCorruptRecord)
		}
		record.RevokedAt = &revokedAt
	}

	return record, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
