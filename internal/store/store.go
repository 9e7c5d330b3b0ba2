package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/models"
)

// DataStore defines the interface for persistent storage of users, rooms,
// messages, attachments and notifications.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, name, email string) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetUserAvatar(ctx context.Context, id uuid.UUID, blobRef string) error

	// Room operations
	CreateRoom(ctx context.Context, name string, isPrivate bool, createdBy *uuid.UUID) (*models.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListPublicRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error)
	// TouchRoom advances last_message_at; a timestamp older than the stored
	// one leaves the row unchanged.
	TouchRoom(ctx context.Context, id uuid.UUID, ts time.Time) error

	// Membership operations
	AddMember(ctx context.Context, userID, roomID uuid.UUID) error
	RemoveMember(ctx context.Context, userID, roomID uuid.UUID) error
	MembersOf(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error)
	IsMember(ctx context.Context, userID, roomID uuid.UUID) (bool, error)

	// Message operations
	CreateMessage(ctx context.Context, msg *models.Message) error
	// GetMessage returns nil when no message with this id exists in the room.
	GetMessage(ctx context.Context, roomID uuid.UUID, messageID string) (*models.Message, error)
	UpdateMessageBody(ctx context.Context, messageID, body string) error
	// DeleteMessage removes the message, its attachments and its notifications,
	// returning the blob refs released by the cascade.
	DeleteMessage(ctx context.Context, roomID uuid.UUID, messageID string) ([]string, error)
	ListRoomMessages(ctx context.Context, roomID uuid.UUID, limit int, before time.Time) ([]models.Message, error)

	// Attachment operations
	AddAttachment(ctx context.Context, att *models.Attachment) error
	// CountBlobRefs reports how many attachments and avatars reference a
	// blob. Blobs are content-addressed, so identical uploads share a ref
	// and only an unreferenced blob may be purged.
	CountBlobRefs(ctx context.Context, blobRef string) (int, error)
	GetAttachment(ctx context.Context, id uuid.UUID) (*models.Attachment, error)
	AttachmentsOf(ctx context.Context, messageID string) ([]models.Attachment, error)
	// RemoveAttachment unbinds one attachment from its message and returns the
	// released blob ref, or "" when no such attachment exists.
	RemoveAttachment(ctx context.Context, messageID string, attachmentID uuid.UUID) (string, error)

	// Notification operations
	// InsertNotification is idempotent on (message, recipient); it reports
	// whether a new row was created.
	InsertNotification(ctx context.Context, n *models.Notification) (bool, error)
	MarkDelivered(ctx context.Context, messageID string, recipientID uuid.UUID) error
	MarkRead(ctx context.Context, recipientID, roomID uuid.UUID, ts time.Time) (int64, error)
	CountUnread(ctx context.Context, recipientID, roomID uuid.UUID) (int, error)
}
