package service

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/sma-adp-auth/internal/models"
	appErrors "github.com/noah-isme/sma-adp-auth/pkg/errors"
)

// RefreshLedger is the storage contract behind the refresh-token ledger.
// Implementations must make Create reject duplicate identifiers and
// RevokeIfActive a single atomic check-and-set.
type RefreshLedger interface {
	Create(ctx context.Context, record *models.RefreshRecord) error
	FindByTokenID(ctx context.Context, tokenID string) (*models.RefreshRecord, error)
	Revoke(ctx context.Context, tokenID string, revokedAt time.Time) error
	RevokeIfActive(ctx context.Context, tokenID string, revokedAt time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error)
}

// LedgerService is the refresh ledger client: it bounds every call with the
// upstream timeout and translates storage failures into error kinds.
// Not-found and already-revoked outcomes are returned as the
// appErrors.ErrRecordNotFound and appErrors.ErrAlreadyRevoked sentinels.
type LedgerService struct {
	store   RefreshLedger
	timeout time.Duration
	metrics *MetricsService
	now     func() time.Time
}

// NewLedgerService constructs the ledger client.
func NewLedgerService(store RefreshLedger, timeout time.Duration, metrics *MetricsService) *LedgerService {
	return &LedgerService{store: store, timeout: timeout, metrics: metrics, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new record. A duplicate identifier is a Conflict.
func (s *LedgerService) Create(ctx context.Context, userID, tokenID string, expiresAt time.Time, userAgent, clientAddress string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	defer s.observe("create", time.Now())

	record := &models.RefreshRecord{
		TokenID:   tokenID,
		UserID:    userID,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: s.now(),
		UserAgent: userAgent,
		IPAddress: clientAddress,
	}
	if err := s.store.Create(ctx, record); err != nil {
		if errors.Is(err, appErrors.ErrDuplicateTokenID) {
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "token identifier already exists")
		}
		return upstreamError(err, "refresh ledger unavailable")
	}
	return nil
}

// Fetch returns the record for tokenID.
func (s *LedgerService) Fetch(ctx context.Context, tokenID string) (*models.RefreshRecord, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	defer s.observe("fetch", time.Now())

	record, err := s.store.FindByTokenID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, appErrors.ErrRecordNotFound) {
			return nil, appErrors.ErrRecordNotFound
		}
		return nil, upstreamError(err, "refresh ledger unavailable")
	}
	return record, nil
}

// Revoke marks tokenID revoked; repeating it is a no-op.
func (s *LedgerService) Revoke(ctx context.Context, tokenID string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	defer s.observe("revoke", time.Now())

	if err := s.store.Revoke(ctx, tokenID, s.now()); err != nil {
		return upstreamError(err, "refresh ledger unavailable")
	}
	return nil
}

// RevokeIfActive is the rotation serialization point. Exactly one caller per
// token identifier gets a nil error.
func (s *LedgerService) RevokeIfActive(ctx context.Context, tokenID string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	defer s.observe("revoke_if_active", time.Now())

	err := s.store.RevokeIfActive(ctx, tokenID, s.now())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, appErrors.ErrAlreadyRevoked):
		return appErrors.ErrAlreadyRevoked
	case errors.Is(err, appErrors.ErrRecordNotFound):
		return appErrors.ErrRecordNotFound
	default:
		return upstreamError(err, "refresh ledger unavailable")
	}
}

// RevokeAllForUser revokes every live record owned by userID.
func (s *LedgerService) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	defer s.observe("revoke_all", time.Now())

	n, err := s.store.RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		return n, upstreamError(err, "refresh ledger unavailable")
	}
	return n, nil
}

func (s *LedgerService) observe(op string, start time.Time) {
	s.metrics.ObserveLedgerOperation(op, time.Since(start))
}
