package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/turbochat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/turbochat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT DEFAULT '',
		avatar_blob TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_private INTEGER DEFAULT 0,
		created_by TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_message_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS memberships (
		user_id TEXT NOT NULL,
		room_id TEXT NOT NULL,
		joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, room_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		body TEXT DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		message_id TEXT NOT NULL,
		blob_ref TEXT NOT NULL,
		filename TEXT DEFAULT '',
		content_type TEXT DEFAULT '',
		kind TEXT DEFAULT 'other',
		byte_size INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		room_id TEXT NOT NULL,
		delivered INTEGER DEFAULT 0,
		read_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (message_id, recipient_id)
	);

	CREATE INDEX IF NOT EXISTS idx_rooms_is_private ON rooms(is_private);
	CREATE INDEX IF NOT EXISTS idx_rooms_last_message ON rooms(last_message_at);
	CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id);
	CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, room_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email string) (*models.User, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, name, email, now, now)
	if err != nil {
		return nil, err
	}

	return s.GetUser(ctx, uuid.MustParse(id))
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, avatar_blob, created_at, updated_at
		FROM users WHERE id = ?
	`, id.String()).Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.AvatarBlob,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID = uuid.MustParse(idStr)
	return user, nil
}

// SetUserAvatar records the avatar blob ref for a user.
func (s *SQLiteStore) SetUserAvatar(ctx context.Context, id uuid.UUID, blobRef string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET avatar_blob = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, blobRef, id.String())
	return err
}

// CreateRoom creates a new room.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string, isPrivate bool, createdBy *uuid.UUID) (*models.Room, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	var createdByStr *string
	if createdBy != nil {
		str := createdBy.String()
		createdByStr = &str
	}

	isPrivateInt := 0
	if isPrivate {
		isPrivateInt = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, name, is_private, created_by, created_at, last_message_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, name, isPrivateInt, createdByStr, now, now)
	if err != nil {
		return nil, err
	}

	return s.GetRoom(ctx, uuid.MustParse(id))
}

// GetRoom retrieves a room by ID.
func (s *SQLiteStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	room := &models.Room{}
	var idStr string
	var createdByStr *string
	var isPrivateInt int

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, is_private, created_by, created_at, last_message_at
		FROM rooms WHERE id = ?
	`, id.String()).Scan(
		&idStr,
		&room.Name,
		&isPrivateInt,
		&createdByStr,
		&room.CreatedAt,
		&room.LastMessageAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	room.ID = uuid.MustParse(idStr)
	room.IsPrivate = isPrivateInt == 1
	if createdByStr != nil {
		createdBy := uuid.MustParse(*createdByStr)
		room.CreatedBy = &createdBy
	}
	return room, nil
}

// ListPublicRooms retrieves public rooms with pagination.
func (s *SQLiteStore) ListPublicRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms WHERE is_private = 0`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, is_private, created_by, created_at, last_message_at
		FROM rooms
		WHERE is_private = 0
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		var idStr string
		var createdByStr *string
		var isPrivateInt int

		err := rows.Scan(
			&idStr,
			&room.Name,
			&isPrivateInt,
			&createdByStr,
			&room.CreatedAt,
			&room.LastMessageAt,
		)
		if err != nil {
			return nil, 0, err
		}

		room.ID = uuid.MustParse(idStr)
		room.IsPrivate = isPrivateInt == 1
		if createdByStr != nil {
			createdBy := uuid.MustParse(*createdByStr)
			room.CreatedBy = &createdBy
		}
		rooms = append(rooms, room)
	}

	return rooms, total, nil
}

// TouchRoom advances last_message_at monotonically. A touch carrying a
// timestamp older than the stored one is a no-op, so delayed retries
// cannot regress room activity.
func (s *SQLiteStore) TouchRoom(ctx context.Context, id uuid.UUID, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET last_message_at = MAX(last_message_at, ?) WHERE id = ?
	`, ts.UTC(), id.String())
	return err
}

// AddMember joins a user to a room. Re-joining is a no-op.
func (s *SQLiteStore) AddMember(ctx context.Context, userID, roomID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO memberships (user_id, room_id, joined_at)
		VALUES (?, ?, ?)
	`, userID.String(), roomID.String(), time.Now().UTC())
	return err
}

// RemoveMember removes a user from a room.
func (s *SQLiteStore) RemoveMember(ctx context.Context, userID, roomID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM memberships WHERE user_id = ? AND room_id = ?
	`, userID.String(), roomID.String())
	return err
}

// MembersOf returns the ids of every user joined to the room.
func (s *SQLiteStore) MembersOf(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM memberships WHERE room_id = ?
	`, roomID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		members = append(members, uuid.MustParse(idStr))
	}
	return members, rows.Err()
}

// IsMember reports whether the user has joined the room.
func (s *SQLiteStore) IsMember(ctx context.Context, userID, roomID uuid.UUID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM memberships WHERE user_id = ? AND room_id = ?
	`, userID.String(), roomID.String()).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateMessage persists a message row. Attachments are bound separately
// once the row exists.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, room_id, author_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.RoomID.String(), msg.AuthorID.String(), msg.Body, msg.CreatedAt.UTC())
	return err
}

// GetMessage retrieves a message by ID, scoped to a room.
func (s *SQLiteStore) GetMessage(ctx context.Context, roomID uuid.UUID, messageID string) (*models.Message, error) {
	msg := &models.Message{}
	var roomStr, authorStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, room_id, author_id, body, created_at
		FROM messages WHERE id = ? AND room_id = ?
	`, messageID, roomID.String()).Scan(
		&msg.ID,
		&roomStr,
		&authorStr,
		&msg.Body,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	msg.RoomID = uuid.MustParse(roomStr)
	msg.AuthorID = uuid.MustParse(authorStr)
	return msg, nil
}

// UpdateMessageBody replaces the message body.
func (s *SQLiteStore) UpdateMessageBody(ctx context.Context, messageID, body string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET body = ? WHERE id = ?
	`, body, messageID)
	return err
}

// DeleteMessage removes a message with its attachments and notifications,
// returning the blob refs released by the cascade.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, roomID uuid.UUID, messageID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT blob_ref FROM attachments WHERE message_id = ?
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

	res, err := tx.ExecContext(ctx, `
		DELETE FROM messages WHERE id = ? AND room_id = ?
	`, messageID, roomID.String())
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE message_id = ?`, messageID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE message_id = ?`, messageID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	if blobRefs == nil {
		blobRefs = []string{}
	}
	return blobRefs, nil
}

// ListRoomMessages retrieves messages from a room, newest first.
func (s *SQLiteStore) ListRoomMessages(ctx context.Context, roomID uuid.UUID, limit int, before time.Time) ([]models.Message, error) {
	if before.IsZero() {
		before = time.Now().UTC().Add(time.Hour)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, author_id, body, created_at
		FROM messages
		WHERE room_id = ? AND created_at < ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, roomID.String(), before.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var roomStr, authorStr string
		if err := rows.Scan(&msg.ID, &roomStr, &authorStr, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.RoomID = uuid.MustParse(roomStr)
		msg.AuthorID = uuid.MustParse(authorStr)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// AddAttachment binds an attachment row to its message.
func (s *SQLiteStore) AddAttachment(ctx context.Context, att *models.Attachment) error {
	if att.ID == uuid.Nil {
		att.ID = uuid.New()
	}
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, message_id, blob_ref, filename, content_type, kind, byte_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, att.ID.String(), att.MessageID, att.BlobRef, att.Filename, att.ContentType, string(att.Kind), att.ByteSize, att.CreatedAt)
	return err
}

// CountBlobRefs counts the attachments and avatars referencing a blob.
func (s *SQLiteStore) CountBlobRefs(ctx context.Context, blobRef string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM attachments WHERE blob_ref = ?)
		     + (SELECT COUNT(*) FROM users WHERE avatar_blob = ?)
	`, blobRef, blobRef).Scan(&count)
	return count, err
}

// GetAttachment retrieves an attachment by ID.
func (s *SQLiteStore) GetAttachment(ctx context.Context, id uuid.UUID) (*models.Attachment, error) {
	att := &models.Attachment{}
	var idStr, kind string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, message_id, blob_ref, filename, content_type, kind, byte_size, created_at
		FROM attachments WHERE id = ?
	`, id.String()).Scan(
		&idStr,
		&att.MessageID,
		&att.BlobRef,
		&att.Filename,
		&att.ContentType,
		&kind,
		&att.ByteSize,
		&att.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	att.ID = uuid.MustParse(idStr)
	att.Kind = models.AttachmentKind(kind)
	return att, nil
}

// AttachmentsOf returns the attachments bound to a message, oldest first.
func (s *SQLiteStore) AttachmentsOf(ctx context.Context, messageID string) ([]models.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, blob_ref, filename, content_type, kind, byte_size, created_at
		FROM attachments WHERE message_id = ?
		ORDER BY created_at ASC, id ASC
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var atts []models.Attachment
	for rows.Next() {
		var att models.Attachment
		var idStr, kind string
		if err := rows.Scan(&idStr, &att.MessageID, &att.BlobRef, &att.Filename, &att.ContentType, &kind, &att.ByteSize, &att.CreatedAt); err != nil {
			return nil, err
		}
		att.ID = uuid.MustParse(idStr)
		att.Kind = models.AttachmentKind(kind)
		atts = append(atts, att)
	}
	return atts, rows.Err()
}

// RemoveAttachment unbinds an attachment from its message and returns the
// released blob ref, or "" when no such attachment exists.
func (s *SQLiteStore) RemoveAttachment(ctx context.Context, messageID string, attachmentID uuid.UUID) (string, error) {
	var blobRef string
	err := s.db.QueryRowContext(ctx, `
		SELECT blob_ref FROM attachments WHERE id = ? AND message_id = ?
	`, attachmentID.String(), messageID).Scan(&blobRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM attachments WHERE id = ? AND message_id = ?
	`, attachmentID.String(), messageID)
	if err != nil {
		return "", err
	}
	return blobRef, nil
}

// InsertNotification creates a notification row if none exists for the
// (message, recipient) pair. Reports whether a new row was created.
func (s *SQLiteStore) InsertNotification(ctx context.Context, n *models.Notification) (bool, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	deliveredInt := 0
	if n.Delivered {
		deliveredInt = 1
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO notifications (id, recipient_id, message_id, room_id, delivered, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, n.ID.String(), n.RecipientID.String(), n.MessageID, n.RoomID.String(), deliveredInt, n.CreatedAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkDelivered flags the notification for (message, recipient) as delivered.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, messageID string, recipientID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET delivered = 1 WHERE message_id = ? AND recipient_id = ?
	`, messageID, recipientID.String())
	return err
}

// MarkRead stamps read_at on the recipient's unread notifications for a room.
func (s *SQLiteStore) MarkRead(ctx context.Context, recipientID, roomID uuid.UUID, ts time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = ?
		WHERE recipient_id = ? AND room_id = ? AND read_at IS NULL
	`, ts.UTC(), recipientID.String(), roomID.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountUnread counts delivered, unread notifications for a recipient in a room.
func (s *SQLiteStore) CountUnread(ctx context.Context, recipientID, roomID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = ? AND room_id = ? AND delivered = 1 AND read_at IS NULL
	`, recipientID.String(), roomID.String()).Scan(&count)
	return count, err
}
