// Package registry tracks room membership and room-level metadata.
package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/errs"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/models"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/store"
)

// RoomRegistry answers membership questions and keeps room activity current.
type RoomRegistry struct {
	store  store.DataStore
	logger zerolog.Logger
}

// New creates a RoomRegistry backed by the given store.
func New(ds store.DataStore, logger zerolog.Logger) *RoomRegistry {
	return &RoomRegistry{store: ds, logger: logger.With().Str("component", "registry").Logger()}
}

// CreateRoom creates a room. The creator automatically joins it.
func (r *RoomRegistry) CreateRoom(ctx context.Context, name string, isPrivate bool, createdBy uuid.UUID) (*models.Room, error) {
	if name == "" {
		return nil, errs.Validation("name", "is required")
	}
	room, err := r.store.CreateRoom(ctx, name, isPrivate, &createdBy)
	if err != nil {
		return nil, err
	}
	if err := r.store.AddMember(ctx, createdBy, room.ID); err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoom loads a room or fails with ErrNotFound.
func (r *RoomRegistry) GetRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	room, err := r.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, errs.ErrNotFound
	}
	return room, nil
}

// ListPublicRooms returns public rooms ordered by recent activity.
func (r *RoomRegistry) ListPublicRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error) {
	return r.store.ListPublicRooms(ctx, limit, offset)
}

// Join adds a user to a room's membership. Joining twice is a no-op.
// Private rooms only accept users invited by a current participant.
func (r *RoomRegistry) Join(ctx context.Context, userID, roomID uuid.UUID, invitedBy *uuid.UUID) error {
	room, err := r.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.IsPrivate {
		if invitedBy == nil {
			return errs.ErrForbidden
		}
		ok, err := r.store.IsMember(ctx, *invitedBy, roomID)
		if err != nil {
			return err
		}
		if !ok {
			return errs.ErrForbidden
		}
	}
	return r.store.AddMember(ctx, userID, roomID)
}

// Leave removes a user from a room's membership.
func (r *RoomRegistry) Leave(ctx context.Context, userID, roomID uuid.UUID) error {
	return r.store.RemoveMember(ctx, userID, roomID)
}

// MembersOf returns the current membership of a room.
func (r *RoomRegistry) MembersOf(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	return r.store.MembersOf(ctx, roomID)
}

// IsParticipant reports whether the user may post in the room.
func (r *RoomRegistry) IsParticipant(ctx context.Context, userID, roomID uuid.UUID) (bool, error) {
	return r.store.IsMember(ctx, userID, roomID)
}

// Touch advances the room's last_message_at. The store applies
// max(existing, ts), so a delayed retry never regresses the timestamp.
func (r *RoomRegistry) Touch(ctx context.Context, roomID uuid.UUID, ts time.Time) {
	if err := r.store.TouchRoom(ctx, roomID, ts); err != nil {
		r.logger.Error().Err(err).Str("room_id", roomID.String()).Msg("room touch failed")
	}
}
