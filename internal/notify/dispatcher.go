// Package notify delivers per-recipient notification records for new
// messages, with idempotent rows and bounded retries.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/metrics"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/models"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/registry"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/store"
)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 200 * time.Millisecond
)

// Dispatcher fans one message out to every room member except the author.
// Each recipient gets at most one Notification row (unique on message +
// recipient), so re-invocation after a partial failure never duplicates.
type Dispatcher struct {
	store    store.DataStore
	registry *registry.RoomRegistry
	logger   zerolog.Logger

	maxAttempts int
	backoff     time.Duration

	// onDelivered fires when a retried delivery eventually succeeds, so the
	// recipient's unread badge can still be refreshed.
	onDelivered func(ctx context.Context, recipient, roomID uuid.UUID)

	wg sync.WaitGroup
}

// Option tunes a Dispatcher.
type Option func(*Dispatcher)

// WithRetry overrides the attempt limit and initial backoff.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(d *Dispatcher) {
		d.maxAttempts = maxAttempts
		d.backoff = backoff
	}
}

// WithDeliveredHook registers a callback for late (retried) deliveries.
func WithDeliveredHook(fn func(ctx context.Context, recipient, roomID uuid.UUID)) Option {
	return func(d *Dispatcher) { d.onDelivered = fn }
}

// New creates a Dispatcher.
func New(ds store.DataStore, reg *registry.RoomRegistry, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:       ds,
		registry:    reg,
		logger:      logger.With().Str("component", "notify").Logger(),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NotifyAll creates a notification per recipient and returns the recipients
// delivered on the first attempt. A failure for one recipient never blocks
// the others; failed recipients are retried in the background and surface
// only through logs and counters.
func (d *Dispatcher) NotifyAll(ctx context.Context, msg *models.Message) ([]uuid.UUID, error) {
	members, err := d.registry.MembersOf(ctx, msg.RoomID)
	if err != nil {
		return nil, err
	}

	recipients := lo.Reject(lo.Uniq(members), func(id uuid.UUID, _ int) bool {
		return id == msg.AuthorID
	})

	delivered := make([]uuid.UUID, 0, len(recipients))
	for _, recipient := range recipients {
		if err := d.deliver(ctx, msg, recipient); err != nil {
			d.logger.Warn().Err(err).
				Str("message_id", msg.ID).
				Str("recipient_id", recipient.String()).
				Msg("delivery failed, scheduling retries")
			d.retryLater(context.WithoutCancel(ctx), msg, recipient)
			continue
		}
		delivered = append(delivered, recipient)
	}
	return delivered, nil
}

// deliver upserts the notification row and marks it delivered. Both steps
// are idempotent, so a retry after a partial failure is safe.
func (d *Dispatcher) deliver(ctx context.Context, msg *models.Message, recipient uuid.UUID) error {
	_, err := d.store.InsertNotification(ctx, &models.Notification{
		RecipientID: recipient,
		MessageID:   msg.ID,
		RoomID:      msg.RoomID,
	})
	if err != nil {
		return err
	}
	if err := d.store.MarkDelivered(ctx, msg.ID, recipient); err != nil {
		return err
	}
	metrics.NotificationsDelivered.Inc()
	return nil
}

func (d *Dispatcher) retryLater(ctx context.Context, msg *models.Message, recipient uuid.UUID) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		backoff := d.backoff
		for attempt := 2; attempt <= d.maxAttempts; attempt++ {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if err := d.deliver(ctx, msg, recipient); err == nil {
				if d.onDelivered != nil {
					d.onDelivered(ctx, recipient, msg.RoomID)
				}
				return
			}
			backoff *= 2
		}

		// Exhausted: the row (if any) stays delivered=false permanently.
		metrics.NotificationFailures.Inc()
		d.logger.Error().
			Str("message_id", msg.ID).
			Str("recipient_id", recipient.String()).
			Int("attempts", d.maxAttempts).
			Msg("notification delivery abandoned")
	}()
}

// Wait blocks until in-flight retries finish. Used in tests and shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
