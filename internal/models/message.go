package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a chat message posted to a room.
type Message struct {
	ID          string       `json:"id"` // ULID, time-sortable
	RoomID      uuid.UUID    `json:"room_id"`
	AuthorID    uuid.UUID    `json:"author_id"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
