package broadcast

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types published to room topics.
const (
	TypeMessageAppended    = "message-appended"
	TypeUnreadCountChanged = "unread-count-changed"
)

// RoomTopic is the pub/sub topic carrying a room's events.
func RoomTopic(roomID uuid.UUID) string {
	return fmt.Sprintf("room:%s", roomID)
}

// AttachmentView is the renderable shape of one attachment. Thumbnail is
// set when the chat variant is already rendered; otherwise Placeholder is
// true and clients swap in the real thumbnail once it is computed.
type AttachmentView struct {
	ID          uuid.UUID `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Kind        string    `json:"kind"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Placeholder bool      `json:"placeholder,omitempty"`
}

// MessageView is the renderable representation carried by a
// message-appended event.
type MessageView struct {
	ID          string           `json:"id"`
	RoomID      uuid.UUID        `json:"room_id"`
	AuthorID    uuid.UUID        `json:"author_id"`
	Body        string           `json:"body"`
	Attachments []AttachmentView `json:"attachments,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// UnreadCount reports one recipient's unread badge for a room.
type UnreadCount struct {
	UserID uuid.UUID `json:"user_id"`
	RoomID uuid.UUID `json:"room_id"`
	Count  int       `json:"count"`
}

// Envelope is the wire format for room events. Exactly one payload field is
// set, selected by Type. Clients dedupe message-appended events by message
// id; delivery is at-least-once.
type Envelope struct {
	Type    string       `json:"type"`
	RoomID  uuid.UUID    `json:"room_id"`
	Message *MessageView `json:"message,omitempty"`
	Unread  *UnreadCount `json:"unread,omitempty"`
}
