// Package broadcast publishes room events to live subscribers.
package broadcast

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/attach"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/metrics"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/models"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/store"
)

// FanoutBroadcaster renders committed messages and publishes them to the
// room topic, plus one unread-count event per affected recipient. Publish
// failures are logged and counted, never surfaced to message creation.
type FanoutBroadcaster struct {
	pub      Publisher
	store    store.DataStore
	pipeline *attach.Pipeline
	cache    *store.RedisStore // optional unread-count cache
	logger   zerolog.Logger
}

// New creates a FanoutBroadcaster. cache may be nil.
func New(pub Publisher, ds store.DataStore, pipeline *attach.Pipeline, cache *store.RedisStore, logger zerolog.Logger) *FanoutBroadcaster {
	return &FanoutBroadcaster{
		pub:      pub,
		store:    ds,
		pipeline: pipeline,
		cache:    cache,
		logger:   logger.With().Str("component", "broadcast").Logger(),
	}
}

// Publish emits the message-appended event followed by unread-count events
// for the given recipients. Callers invoke it from the per-room post-commit
// sequence, which is what preserves per-room event ordering.
func (b *FanoutBroadcaster) Publish(ctx context.Context, msg *models.Message, recipients []uuid.UUID) error {
	topic := RoomTopic(msg.RoomID)

	view := b.render(ctx, msg)
	if err := b.pub.Publish(ctx, topic, Envelope{
		Type:    TypeMessageAppended,
		RoomID:  msg.RoomID,
		Message: view,
	}); err != nil {
		metrics.BroadcastFailures.Inc()
		b.logger.Error().Err(err).Str("message_id", msg.ID).Msg("message-appended publish failed")
	} else {
		metrics.BroadcastEvents.WithLabelValues(TypeMessageAppended).Inc()
	}

	for _, recipient := range recipients {
		b.PublishUnread(ctx, recipient, msg.RoomID)
	}
	return nil
}

// PublishUnread recomputes a recipient's unread count for the room and
// emits an unread-count-changed event.
func (b *FanoutBroadcaster) PublishUnread(ctx context.Context, recipient uuid.UUID, roomID uuid.UUID) {
	count, err := b.store.CountUnread(ctx, recipient, roomID)
	if err != nil {
		b.logger.Error().Err(err).Str("recipient_id", recipient.String()).Msg("unread count lookup failed")
		return
	}
	if b.cache != nil {
		if err := b.cache.CacheUnreadCount(ctx, recipient.String(), roomID.String(), count); err != nil {
			b.logger.Debug().Err(err).Msg("unread cache write failed")
		}
	}

	if err := b.pub.Publish(ctx, RoomTopic(roomID), Envelope{
		Type:   TypeUnreadCountChanged,
		RoomID: roomID,
		Unread: &UnreadCount{UserID: recipient, RoomID: roomID, Count: count},
	}); err != nil {
		metrics.BroadcastFailures.Inc()
		b.logger.Error().Err(err).Str("recipient_id", recipient.String()).Msg("unread-count publish failed")
		return
	}
	metrics.BroadcastEvents.WithLabelValues(TypeUnreadCountChanged).Inc()
}

// render builds the renderable message view. Attachments whose chat
// thumbnail is already cached carry its URL; the rest render a placeholder
// that updates once the variant is computed.
func (b *FanoutBroadcaster) render(ctx context.Context, msg *models.Message) *MessageView {
	view := &MessageView{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		AuthorID:  msg.AuthorID,
		Body:      msg.Body,
		CreatedAt: msg.CreatedAt,
	}

	atts := msg.Attachments
	if atts == nil {
		var err error
		atts, err = b.store.AttachmentsOf(ctx, msg.ID)
		if err != nil {
			b.logger.Error().Err(err).Str("message_id", msg.ID).Msg("attachment load failed")
			return view
		}
	}

	for _, att := range atts {
		av := AttachmentView{
			ID:          att.ID,
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Kind:        string(att.Kind),
		}
		if att.Kind.Resizable() {
			if ref, ok := b.pipeline.CachedVariant(att.ID, models.VariantChat); ok {
				av.Thumbnail = "/blobs/" + ref.Ref
			} else {
				av.Placeholder = true
			}
		}
		view.Attachments = append(view.Attachments, av)
	}
	return view
}
