package service

import (
	"context"
	"errors"
	"time"

	appErrors "github.com/noah-isme/sma-adp-auth/pkg/errors"
)

// withTimeout bounds a single credential store or ledger call.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// upstreamError classifies a storage failure. Corrupt stored data is an
// internal error; everything else, including deadlines and cancellation, is
// reported as the upstream being unavailable.
func upstreamError(err error, message string) error {
	if errors.Is(err, appErrors.ErrCorruptRecord) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status, message)
}
