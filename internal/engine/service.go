// Package engine coordinates the message fan-out pipeline: validate,
// persist, attach, then touch/notify/broadcast as ordered post-commit
// effects.
package engine

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/attach"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/broadcast"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/errs"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/metrics"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/models"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/notify"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/registry"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/store"
)

const maxBodyBytes = 4096

// MessageUpdate describes an edit to an existing message. Body, additions
// and removals are independent; supplying several applies all of them.
type MessageUpdate struct {
	Body              *string
	AddAttachments    []attach.Upload
	RemoveAttachments []uuid.UUID
}

type messageInput struct {
	Body string `validate:"omitempty,max=4096"`
}

// Service is the coordination core. It owns the only write path for
// messages; the HTTP layer calls nothing else.
type Service struct {
	store       store.DataStore
	registry    *registry.RoomRegistry
	pipeline    *attach.Pipeline
	dispatcher  *notify.Dispatcher
	broadcaster *broadcast.FanoutBroadcaster
	cache       *store.RedisStore // optional
	validate    *validator.Validate
	logger      zerolog.Logger
	seq         *sequencer
}

// New wires the service. cache may be nil.
func New(
	ds store.DataStore,
	reg *registry.RoomRegistry,
	pipeline *attach.Pipeline,
	dispatcher *notify.Dispatcher,
	broadcaster *broadcast.FanoutBroadcaster,
	cache *store.RedisStore,
	logger zerolog.Logger,
) *Service {
	return &Service{
		store:       ds,
		registry:    reg,
		pipeline:    pipeline,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		cache:       cache,
		validate:    validator.New(),
		logger:      logger.With().Str("component", "engine").Logger(),
		seq:         newSequencer(),
	}
}

// CreateMessage validates, persists the message, binds its attachments, and
// queues the post-commit effects (touch, notify, broadcast) on the room's
// ordered sequence. Validation and authorization failures abort before any
// side effect; once the row is committed, downstream failures never undo it.
func (s *Service) CreateMessage(ctx context.Context, authorID, roomID uuid.UUID, body string, uploads []attach.Upload) (*models.Message, error) {
	room, err := s.registry.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if body == "" && len(uploads) == 0 {
		return nil, errs.Validation("body", "is required without attachments")
	}
	if err := s.validate.Struct(messageInput{Body: body}); err != nil {
		return nil, errs.Validation("body", "exceeds 4096 bytes")
	}

	if room.IsPrivate {
		ok, err := s.registry.IsParticipant(ctx, authorID, roomID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errs.ErrForbidden
		}
	}

	msg := &models.Message{
		ID:        ulid.Make().String(),
		RoomID:    roomID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, errs.Transient(err)
	}

	// The row is durable; attachment binding references it by id.
	var bindErr error
	for _, up := range uploads {
		att, err := s.pipeline.Attach(ctx, msg.ID, up)
		if err != nil {
			bindErr = err
			s.logger.Error().Err(err).Str("message_id", msg.ID).Str("filename", up.Filename).
				Msg("attachment binding failed")
			continue
		}
		msg.Attachments = append(msg.Attachments, *att)
	}

	// An attachment-only message whose every bind failed would be the empty
	// state validation rejects. No post-commit effect has been queued yet,
	// so remove the row and fail the create instead of half-creating it.
	if body == "" && len(msg.Attachments) == 0 {
		if _, err := s.store.DeleteMessage(ctx, roomID, msg.ID); err != nil {
			s.logger.Error().Err(err).Str("message_id", msg.ID).Msg("orphan message cleanup failed")
		}
		return nil, bindErr
	}

	roomType := "public"
	if room.IsPrivate {
		roomType = "private"
	}
	metrics.MessagesCreated.WithLabelValues(roomType).Inc()

	s.enqueueFanout(ctx, msg)
	return msg, nil
}

// enqueueFanout schedules touch → notify → broadcast on the room's FIFO
// queue. Each stage is isolated: a failure in one is logged and the next
// still runs, and nothing here can fail the committed message.
func (s *Service) enqueueFanout(ctx context.Context, msg *models.Message) {
	effectCtx := context.WithoutCancel(ctx)
	s.seq.enqueue(msg.RoomID, func() {
		s.registry.Touch(effectCtx, msg.RoomID, msg.CreatedAt)

		delivered, err := s.dispatcher.NotifyAll(effectCtx, msg)
		if err != nil {
			s.logger.Error().Err(err).Str("message_id", msg.ID).Msg("notification fan-out failed")
		}

		if err := s.broadcaster.Publish(effectCtx, msg, delivered); err != nil {
			s.logger.Error().Err(err).Str("message_id", msg.ID).Msg("broadcast failed")
		}
	})
}

// UpdateMessage applies a body edit and attachment changes. Only the author
// may edit; removals release storage via background purge; no notifications
// are produced.
func (s *Service) UpdateMessage(ctx context.Context, actorID, roomID uuid.UUID, messageID string, update MessageUpdate) (*models.Message, error) {
	msg, err := s.store.GetMessage(ctx, roomID, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, errs.ErrNotFound
	}
	if msg.AuthorID != actorID {
		return nil, errs.ErrForbidden
	}

	for _, attID := range update.RemoveAttachments {
		blobRef, err := s.store.RemoveAttachment(ctx, messageID, attID)
		if err != nil {
			return nil, err
		}
		if blobRef == "" {
			return nil, errs.ErrNotFound
		}
		s.pipeline.Release(attID, blobRef)
	}

	for _, up := range update.AddAttachments {
		if _, err := s.pipeline.Attach(ctx, messageID, up); err != nil {
			return nil, err
		}
	}

	if update.Body != nil {
		if err := s.validate.Struct(messageInput{Body: *update.Body}); err != nil {
			return nil, errs.Validation("body", "exceeds 4096 bytes")
		}
		remaining, err := s.store.AttachmentsOf(ctx, messageID)
		if err != nil {
			return nil, err
		}
		if *update.Body == "" && len(remaining) == 0 {
			return nil, errs.Validation("body", "is required without attachments")
		}
		if err := s.store.UpdateMessageBody(ctx, messageID, *update.Body); err != nil {
			return nil, err
		}
	}

	return s.GetMessage(ctx, roomID, messageID)
}

// DeleteMessage removes a message and cascades attachment release. Only the
// author may delete.
func (s *Service) DeleteMessage(ctx context.Context, actorID, roomID uuid.UUID, messageID string) error {
	msg, err := s.store.GetMessage(ctx, roomID, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return errs.ErrNotFound
	}
	if msg.AuthorID != actorID {
		return errs.ErrForbidden
	}

	atts, err := s.store.AttachmentsOf(ctx, messageID)
	if err != nil {
		return err
	}

	blobRefs, err := s.store.DeleteMessage(ctx, roomID, messageID)
	if err != nil {
		return err
	}
	if blobRefs == nil {
		return errs.ErrNotFound
	}

	for _, att := range atts {
		s.pipeline.Release(att.ID, att.BlobRef)
	}
	return nil
}

// GetMessage loads one message with its attachments.
func (s *Service) GetMessage(ctx context.Context, roomID uuid.UUID, messageID string) (*models.Message, error) {
	msg, err := s.store.GetMessage(ctx, roomID, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, errs.ErrNotFound
	}
	atts, err := s.store.AttachmentsOf(ctx, messageID)
	if err != nil {
		return nil, err
	}
	msg.Attachments = atts
	return msg, nil
}

// ListMessages returns a room's messages, newest first, with attachments.
func (s *Service) ListMessages(ctx context.Context, roomID uuid.UUID, limit int, before time.Time) ([]models.Message, error) {
	if _, err := s.registry.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	messages, err := s.store.ListRoomMessages(ctx, roomID, limit, before)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		atts, err := s.store.AttachmentsOf(ctx, messages[i].ID)
		if err != nil {
			return nil, err
		}
		messages[i].Attachments = atts
	}
	return messages, nil
}

// MarkRead clears the user's unread notifications for the room and pushes
// the fresh (zero) badge to subscribers.
func (s *Service) MarkRead(ctx context.Context, userID, roomID uuid.UUID) error {
	if _, err := s.registry.GetRoom(ctx, roomID); err != nil {
		return err
	}
	if _, err := s.store.MarkRead(ctx, userID, roomID, time.Now().UTC()); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.InvalidateUnreadCount(ctx, userID.String(), roomID.String())
	}
	s.broadcaster.PublishUnread(ctx, userID, roomID)
	return nil
}

// UnreadCount returns the user's unread badge for a room, served from the
// cache when fresh.
func (s *Service) UnreadCount(ctx context.Context, userID, roomID uuid.UUID) (int, error) {
	if s.cache != nil {
		if count, ok := s.cache.CachedUnreadCount(ctx, userID.String(), roomID.String()); ok {
			return count, nil
		}
	}
	count, err := s.store.CountUnread(ctx, userID, roomID)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.CacheUnreadCount(ctx, userID.String(), roomID.String(), count); err != nil {
			s.logger.Debug().Err(err).Msg("unread cache write failed")
		}
	}
	return count, nil
}

// Flush waits for queued post-commit effects and in-flight notification
// retries. Tests and shutdown use it; request paths never do.
func (s *Service) Flush() {
	s.seq.flush()
	s.dispatcher.Wait()
}

// Close drains the effect queues and releases background resources.
func (s *Service) Close() {
	s.seq.close()
	s.dispatcher.Wait()
	s.pipeline.Close()
}
