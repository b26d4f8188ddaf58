package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

// PendingSource is the read side of the outbox used by Deliverer.
type PendingSource interface {
	FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Deliverer polls the outbox and hands each event to the handler.
// Delivery is at least once.
type Deliverer struct {
	store     PendingSource
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

// NewDeliverer drains store into handler.
func NewDeliverer(store PendingSource, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:     store,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

// WithBatchSize sets how many entries one poll fetches.
func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

// WithInterval sets the idle poll interval.
func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// Start drains once, then every interval until ctx is cancelled. A full
// batch is followed straight away by the next one.
func (d *Deliverer) Start(ctx context.Context) error {
	if d.store == nil || d.handler == nil {
		return nil
	}
	d.logger.Info("outbox deliverer started", "interval", d.interval, "batch_size", d.batchSize)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		for ctx.Err() == nil {
			if d.Drain(ctx) < int(d.batchSize) {
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Drain delivers one batch and returns how many entries were delivered.
// Failures are counted on the entry and retried on a later pass.
func (d *Deliverer) Drain(ctx context.Context) int {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return 0
	}
	delivered := 0
	for _, entry := range entries {
		logger := d.logger.WithOrg(entry.OrgID).With("event_id", entry.ID, "type", entry.Type)
		if err := d.handler.Handle(ctx, entry); err != nil {
			logger.Warn("outbox delivery failed", "error", err, "attempt", entry.Attempts+1)
			if merr := d.store.MarkFailed(ctx, entry.ID, err.Error()); merr != nil {
				logger.Error("failed to record outbox failure", "error", merr)
			}
			continue
		}
		ok, err := d.store.MarkDelivered(ctx, entry.ID)
		switch {
		case err != nil:
			logger.Error("failed to mark outbox delivered", "error", err)
		case ok:
			delivered++
			logger.Debug("outbox delivered")
		}
	}
	return delivered
}
