package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-adp-auth/internal/models"
	appErrors "github.com/noah-isme/sma-adp-auth/pkg/errors"
)

// CredentialStore is the read side of the users table plus the last-login stamp.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

// CredentialService looks users up and checks secrets against stored hashes.
type CredentialService struct {
	store     CredentialStore
	timeout   time.Duration
	dummyHash []byte
}

// NewCredentialService constructs the verifier. The dummy hash is generated
// with the same cost as stored hashes so an unknown identifier costs as much
// as a wrong password.
func NewCredentialService(store CredentialStore, timeout time.Duration, cost int) (*CredentialService, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	seed, err := NewTokenID()
	if err != nil {
		return nil, fmt.Errorf("seed dummy hash: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(seed), cost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}
	return &CredentialService{store: store, timeout: timeout, dummyHash: dummy}, nil
}

// FindByLoginIdentifier returns the user for a login identifier or
// appErrors.ErrRecordNotFound.
func (s *CredentialService) FindByLoginIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.store.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(identifier)))
	if err != nil {
		if errors.Is(err, appErrors.ErrRecordNotFound) {
			return nil, appErrors.ErrRecordNotFound
		}
		return nil, upstreamError(err, "credential store unavailable")
	}
	return user, nil
}

// FindByID returns the user for an identifier or appErrors.ErrRecordNotFound.
func (s *CredentialService) FindByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, appErrors.ErrRecordNotFound) {
			return nil, appErrors.ErrRecordNotFound
		}
		return nil, upstreamError(err, "credential store unavailable")
	}
	return user, nil
}

// VerifySecret reports whether plaintext matches storedHash.
func (s *CredentialService) VerifySecret(plaintext, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plaintext)) == nil
}

// VerifyDummy performs a comparison that always fails.
func (s *CredentialService) VerifyDummy(plaintext string) bool {
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(plaintext))
	return false
}

// RecordLogin stamps the last successful login.
func (s *CredentialService) RecordLogin(ctx context.Context, id string, ts time.Time) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.UpdateLastLogin(ctx, id, ts); err != nil {
		return upstreamError(err, "credential store unavailable")
	}
	return nil
}
