package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification records that a message should be surfaced to a recipient.
// At most one row exists per (message, recipient) pair.
type Notification struct {
	ID          uuid.UUID  `json:"id"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	MessageID   string     `json:"message_id"`
	RoomID      uuid.UUID  `json:"room_id"`
	Delivered   bool       `json:"delivered"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
