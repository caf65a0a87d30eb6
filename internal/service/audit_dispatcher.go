package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-auth/internal/models"
	"github.com/noah-isme/sma-adp-auth/pkg/jobs"
)

const auditJobKind = "audit_log"

// AuditDispatcher writes audit rows from a background queue so session
// endpoints never wait on the audit table.
type AuditDispatcher struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditDispatcher wires store behind a worker queue. The caller owns
// Start and Stop of the returned dispatcher.
func NewAuditDispatcher(store auditRecorder, timeout time.Duration, cfg jobs.QueueConfig) *AuditDispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	handler := func(_ context.Context, job jobs.Job) error {
		entry, ok := job.Payload.(*models.AuditLog)
		if !ok {
			return fmt.Errorf("unexpected audit payload %T", job.Payload)
		}
		ctx, cancel := withTimeout(context.Background(), timeout)
		defer cancel()
		return store.CreateAuditLog(ctx, entry)
	}
	return &AuditDispatcher{
		queue:  jobs.NewQueue("audit", handler, cfg),
		logger: cfg.Logger,
	}
}

// Start launches the audit workers.
func (d *AuditDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop flushes buffered audit rows.
func (d *AuditDispatcher) Stop() {
	d.queue.Stop()
}

// CreateAuditLog queues entry. A full queue drops the row.
func (d *AuditDispatcher) CreateAuditLog(_ context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := d.queue.Offer(jobs.Job{ID: entry.ID, Kind: auditJobKind, Payload: entry}); err != nil {
		d.logger.Warn("audit log dropped", zap.String("action", entry.Action), zap.Error(err))
		return err
	}
	return nil
}
