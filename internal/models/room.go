package models

import (
	"time"

	"github.com/google/uuid"
)

// Room represents a chat channel, public or private.
type Room struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	IsPrivate     bool       `json:"is_private"`
	CreatedBy     *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt time.Time  `json:"last_message_at"`
}

// Membership links a user to a room. For private rooms it is the
// authoritative participant list; for public rooms it drives the
// recipient set and unread counts.
type Membership struct {
	UserID   uuid.UUID `json:"user_id"`
	RoomID   uuid.UUID `json:"room_id"`
	JoinedAt time.Time `json:"joined_at"`
}
