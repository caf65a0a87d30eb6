package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-adp-auth/internal/models"
	appErrors "github.com/noah-isme/sma-adp-auth/pkg/errors"
)

func TestCredentialServiceFindByLoginIdentifierNormalizes(t *testing.T) {
	users := newMemoryUsers(&models.User{ID: "u1", Email: "a@x.com", Active: true})
	svc, err := NewCredentialService(users, time.Second, bcrypt.MinCost)
	require.NoError(t, err)

	user, err := svc.FindByLoginIdentifier(context.Background(), "  A@X.com ")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	_, err = svc.FindByLoginIdentifier(context.Background(), "b@x.com")
	assert.ErrorIs(t, err, appErrors.ErrRecordNotFound)
}

func TestCredentialServiceStoreFailure(t *testing.T) {
	users := newMemoryUsers()
	users.findErr = errors.New("too many connections")
	svc, err := NewCredentialService(users, time.Second, bcrypt.MinCost)
	require.NoError(t, err)

	_, err = svc.FindByID(context.Background(), "u1")
	assert.True(t, appErrors.Is(err, appErrors.ErrUpstreamUnavailable))

	_, err = svc.FindByLoginIdentifier(context.Background(), "a@x.com")
	assert.True(t, appErrors.Is(err, appErrors.ErrUpstreamUnavailable))
}

func TestCredentialServiceVerifySecret(t *testing.T) {
	svc, err := NewCredentialService(newMemoryUsers(), time.Second, bcrypt.MinCost)
	require.NoError(t, err)
	hash := hashSecret(t, "correct")

	assert.True(t, svc.VerifySecret("correct", hash))
	assert.False(t, svc.VerifySecret("incorrect", hash))
	assert.False(t, svc.VerifySecret("correct", "not-a-hash"))
	assert.False(t, svc.VerifyDummy("correct"))
}

func TestCredentialServiceOutOfRangeCostFallsBack(t *testing.T) {
	svc, err := NewCredentialService(newMemoryUsers(), time.Second, 99)
	require.NoError(t, err)

	cost, err := bcrypt.Cost(svc.dummyHash)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}

func TestCredentialServiceRecordLogin(t *testing.T) {
	users := newMemoryUsers(&models.User{ID: "u1", Email: "a@x.com"})
	svc, err := NewCredentialService(users, time.Second, bcrypt.MinCost)
	require.NoError(t, err)
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, svc.RecordLogin(context.Background(), "u1", ts))
	require.NotNil(t, users.users["u1"].LastLogin)
	assert.Equal(t, ts, *users.users["u1"].LastLogin)

	users.lastLoginErr = errors.New("read-only transaction")
	err = svc.RecordLogin(context.Background(), "u1", ts)
	assert.True(t, appErrors.Is(err, appErrors.ErrUpstreamUnavailable))
}
