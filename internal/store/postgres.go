package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL,
		email TEXT DEFAULT '',
		avatar_blob TEXT DEFAULT '',
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL,
		is_private BOOLEAN DEFAULT FALSE,
		created_by UUID,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		last_message_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS memberships (
		user_id UUID NOT NULL,
		room_id UUID NOT NULL,
		joined_at TIMESTAMPTZ DEFAULT NOW(),
		PRIMARY KEY (user_id, room_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		room_id UUID NOT NULL,
		author_id UUID NOT NULL,
		body TEXT DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attachments (
		id UUID PRIMARY KEY,
		message_id TEXT NOT NULL,
		blob_ref TEXT NOT NULL,
		filename TEXT DEFAULT '',
		content_type TEXT DEFAULT '',
		kind TEXT DEFAULT 'other',
		byte_size BIGINT DEFAULT 0,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY,
		recipient_id UUID NOT NULL,
		message_id TEXT NOT NULL,
		room_id UUID NOT NULL,
		delivered BOOLEAN DEFAULT FALSE,
		read_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		UNIQUE (message_id, recipient_id)
	);

	CREATE INDEX IF NOT EXISTS idx_rooms_is_private ON rooms(is_private);
	CREATE INDEX IF NOT EXISTS idx_rooms_last_message ON rooms(last_message_at);
	CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id);
	CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, room_id);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, name, email string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (name, email)
		VALUES ($1, $2)
		RETURNING id, name, email, avatar_blob, created_at, updated_at
	`, name, email).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.AvatarBlob,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, avatar_blob, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.AvatarBlob,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// SetUserAvatar records the avatar blob ref for a user.
func (s *PostgresStore) SetUserAvatar(ctx context.Context, id uuid.UUID, blobRef string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET avatar_blob = $1, updated_at = NOW() WHERE id = $2
	`, blobRef, id)
	return err
}

// CreateRoom creates a new room.
func (s *PostgresStore) CreateRoom(ctx context.Context, name string, isPrivate bool, createdBy *uuid.UUID) (*models.Room, error) {
	room := &models.Room{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rooms (name, is_private, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, name, is_private, created_by, created_at, last_message_at
	`, name, isPrivate, createdBy).Scan(
		&room.ID,
		&room.Name,
		&room.IsPrivate,
		&room.CreatedBy,
		&room.CreatedAt,
		&room.LastMessageAt,
	)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoom retrieves a room by ID.
func (s *PostgresStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	room := &models.Room{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, is_private, created_by, created_at, last_message_at
		FROM rooms WHERE id = $1
	`, id).Scan(
		&room.ID,
		&room.Name,
		&room.IsPrivate,
		&room.CreatedBy,
		&room.CreatedAt,
		&room.LastMessageAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// ListPublicRooms retrieves public rooms with pagination.
func (s *PostgresStore) ListPublicRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms WHERE is_private = FALSE`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, is_private, created_by, created_at, last_message_at
		FROM rooms
		WHERE is_private = FALSE
		ORDER BY last_message_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		err := rows.Scan(
			&room.ID,
			&room.Name,
			&room.IsPrivate,
			&room.CreatedBy,
			&room.CreatedAt,
			&room.LastMessageAt,
		)
		if err != nil {
			return nil, 0, err
		}
		rooms = append(rooms, room)
	}

	return rooms, total, nil
}

// TouchRoom advances last_message_at monotonically; stale touches are no-ops.
func (s *PostgresStore) TouchRoom(ctx context.Context, id uuid.UUID, ts time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE rooms SET last_message_at = GREATEST(last_message_at, $1) WHERE id = $2
	`, ts.UTC(), id)
	return err
}

// AddMember joins a user to a room. Re-joining is a no-op.
func (s *PostgresStore) AddMember(ctx context.Context, userID, roomID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memberships (user_id, room_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, room_id) DO NOTHING
	`, userID, roomID)
	return err
}

// RemoveMember removes a user from a room.
func (s *PostgresStore) RemoveMember(ctx context.Context, userID, roomID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM memberships WHERE user_id = $1 AND room_id = $2
	`, userID, roomID)
	return err
}

// MembersOf returns the ids of every user joined to the room.
func (s *PostgresStore) MembersOf(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id FROM memberships WHERE room_id = $1
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

// IsMember reports whether the user has joined the room.
func (s *PostgresStore) IsMember(ctx context.Context, userID, roomID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM memberships WHERE user_id = $1 AND room_id = $2)
	`, userID, roomID).Scan(&exists)
	return exists, err
}

// CreateMessage persists a message row.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, room_id, author_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.RoomID, msg.AuthorID, msg.Body, msg.CreatedAt.UTC())
	return err
}

// GetMessage retrieves a message by ID, scoped to a room.
func (s *PostgresStore) GetMessage(ctx context.Context, roomID uuid.UUID, messageID string) (*models.Message, error) {
	msg := &models.Message{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, room_id, author_id, body, created_at
		FROM messages WHERE id = $1 AND room_id = $2
	`, messageID, roomID).Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.AuthorID,
		&msg.Body,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// UpdateMessageBody replaces the message body.
func (s *PostgresStore) UpdateMessageBody(ctx context.Context, messageID, body string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET body = $1 WHERE id = $2
	`, body, messageID)
	return err
}

// DeleteMessage removes a message with its attachments and notifications,
// returning the blob refs released by the cascade.
func (s *PostgresStore) DeleteMessage(ctx context.Context, roomID uuid.UUID, messageID string) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT blob_ref FROM attachments WHERE message_id = $1
	`, messageID)
	if err != nil {
		return nil, err
	}
	var blobRefs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			rows.Close()
			return nil, err
		}
		blobRefs = append(blobRefs, ref)
	}
	rows.Close()

	tag, err := tx.Exec(ctx, `
		DELETE FROM messages WHERE id = $1 AND room_id = $2
	`, messageID, roomID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM attachments WHERE message_id = $1`, messageID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM notifications WHERE message_id = $1`, messageID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if blobRefs == nil {
		blobRefs = []string{}
	}
	return blobRefs, nil
}

// ListRoomMessages retrieves messages from a room, newest first.
func (s *PostgresStore) ListRoomMessages(ctx context.Context, roomID uuid.UUID, limit int, before time.Time) ([]models.Message, error) {
	if before.IsZero() {
		before = time.Now().UTC().Add(time.Hour)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, room_id, author_id, body, created_at
		FROM messages
		WHERE room_id = $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, roomID, before.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.AuthorID, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// AddAttachment binds an attachment row to its message.
func (s *PostgresStore) AddAttachment(ctx context.Context, att *models.Attachment) error {
	if att.ID == uuid.Nil {
		att.ID = uuid.New()
	}
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attachments (id, message_id, blob_ref, filename, content_type, kind, byte_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, att.ID, att.MessageID, att.BlobRef, att.Filename, att.ContentType, string(att.Kind), att.ByteSize, att.CreatedAt)
	return err
}

// CountBlobRefs counts the attachments and avatars referencing a blob.
func (s *PostgresStore) CountBlobRefs(ctx context.Context, blobRef string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM attachments WHERE blob_ref = $1)
		     + (SELECT COUNT(*) FROM users WHERE avatar_blob = $1)
	`, blobRef).Scan(&count)
	return count, err
}

// GetAttachment retrieves an attachment by ID.
func (s *PostgresStore) GetAttachment(ctx context.Context, id uuid.UUID) (*models.Attachment, error) {
	att := &models.Attachment{}
	var kind string
	err := s.pool.QueryRow(ctx, `
		SELECT id, message_id, blob_ref, filename, content_type, kind, byte_size, created_at
		FROM attachments WHERE id = $1
	`, id).Scan(
		&att.ID,
		&att.MessageID,
		&att.BlobRef,
		&att.Filename,
		&att.ContentType,
		&kind,
		&att.ByteSize,
		&att.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	att.Kind = models.AttachmentKind(kind)
	return att, nil
}

// AttachmentsOf returns the attachments bound to a message, oldest first.
func (s *PostgresStore) AttachmentsOf(ctx context.Context, messageID string) ([]models.Attachment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, message_id, blob_ref, filename, content_type, kind, byte_size, created_at
		FROM attachments WHERE message_id = $1
		ORDER BY created_at ASC, id ASC
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var atts []models.Attachment
	for rows.Next() {
		var att models.Attachment
		var kind string
		if err := rows.Scan(&att.ID, &att.MessageID, &att.BlobRef, &att.Filename, &att.ContentType, &kind, &att.ByteSize, &att.CreatedAt); err != nil {
			return nil, err
		}
		att.Kind = models.AttachmentKind(kind)
		atts = append(atts, att)
	}
	return atts, rows.Err()
}

// RemoveAttachment unbinds an attachment from its message and returns the
// released blob ref, or "" when no such attachment exists.
func (s *PostgresStore) RemoveAttachment(ctx context.Context, messageID string, attachmentID uuid.UUID) (string, error) {
	var blobRef string
	err := s.pool.QueryRow(ctx, `
		DELETE FROM attachments WHERE id = $1 AND message_id = $2
		RETURNING blob_ref
	`, attachmentID, messageID).Scan(&blobRef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return blobRef, nil
}

// InsertNotification creates a notification row if none exists for the
// (message, recipient) pair. Reports whether a new row was created.
func (s *PostgresStore) InsertNotification(ctx context.Context, n *models.Notification) (bool, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, message_id, room_id, delivered, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id, recipient_id) DO NOTHING
	`, n.ID, n.RecipientID, n.MessageID, n.RoomID, n.Delivered, n.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkDelivered flags the notification for (message, recipient) as delivered.
func (s *PostgresStore) MarkDelivered(ctx context.Context, messageID string, recipientID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications SET delivered = TRUE WHERE message_id = $1 AND recipient_id = $2
	`, messageID, recipientID)
	return err
}

// MarkRead stamps read_at on the recipient's unread notifications for a room.
func (s *PostgresStore) MarkRead(ctx context.Context, recipientID, roomID uuid.UUID, ts time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read_at = $1
		WHERE recipient_id = $2 AND room_id = $3 AND read_at IS NULL
	`, ts.UTC(), recipientID, roomID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountUnread counts delivered, unread notifications for a recipient in a room.
func (s *PostgresStore) CountUnread(ctx context.Context, recipientID, roomID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND room_id = $2 AND delivered = TRUE AND read_at IS NULL
	`, recipientID, roomID).Scan(&count)
	return count, err
}
