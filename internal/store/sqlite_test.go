package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func Test_TouchRoom_Monotonic(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, "general", false, nil)
	req.NoError(err)

	t1 := time.Now().UTC().Add(time.Minute)
	t2 := t1.Add(-30 * time.Second) // stale retry

	req.NoError(s.TouchRoom(ctx, room.ID, t1))
	req.NoError(s.TouchRoom(ctx, room.ID, t2))

	got, err := s.GetRoom(ctx, room.ID)
	req.NoError(err)
	req.WithinDuration(t1, got.LastMessageAt, time.Second)
}

func Test_InsertNotification_Idempotent(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	recipient := uuid.New()
	roomID := uuid.New()

	n := &models.Notification{RecipientID: recipient, MessageID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", RoomID: roomID}
	created, err := s.InsertNotification(ctx, n)
	req.NoError(err)
	req.True(created)

	again := &models.Notification{RecipientID: recipient, MessageID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", RoomID: roomID}
	created, err = s.InsertNotification(ctx, again)
	req.NoError(err)
	req.False(created)
}

func Test_MarkRead_And_CountUnread(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	recipient := uuid.New()
	roomID := uuid.New()

	for _, msgID := range []string{"m1", "m2", "m3"} {
		_, err := s.InsertNotification(ctx, &models.Notification{
			RecipientID: recipient, MessageID: msgID, RoomID: roomID,
		})
		req.NoError(err)
		req.NoError(s.MarkDelivered(ctx, msgID, recipient))
	}

	count, err := s.CountUnread(ctx, recipient, roomID)
	req.NoError(err)
	req.Equal(3, count)

	affected, err := s.MarkRead(ctx, recipient, roomID, time.Now().UTC())
	req.NoError(err)
	req.EqualValues(3, affected)

	count, err = s.CountUnread(ctx, recipient, roomID)
	req.NoError(err)
	req.Zero(count)
}

func Test_UndeliveredNotifications_NotCounted(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	recipient := uuid.New()
	roomID := uuid.New()

	_, err := s.InsertNotification(ctx, &models.Notification{
		RecipientID: recipient, MessageID: "m1", RoomID: roomID,
	})
	req.NoError(err)

	count, err := s.CountUnread(ctx, recipient, roomID)
	req.NoError(err)
	req.Zero(count)
}

func Test_DeleteMessage_Cascades(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	roomID := uuid.New()
	author := uuid.New()
	msg := &models.Message{ID: "m1", RoomID: roomID, AuthorID: author, Body: "hi", CreatedAt: time.Now().UTC()}
	req.NoError(s.CreateMessage(ctx, msg))

	att := &models.Attachment{MessageID: "m1", BlobRef: "blob-a", Kind: models.KindImage}
	req.NoError(s.AddAttachment(ctx, att))
	_, err := s.InsertNotification(ctx, &models.Notification{RecipientID: uuid.New(), MessageID: "m1", RoomID: roomID})
	req.NoError(err)

	refs, err := s.DeleteMessage(ctx, roomID, "m1")
	req.NoError(err)
	req.Equal([]string{"blob-a"}, refs)

	got, err := s.GetMessage(ctx, roomID, "m1")
	req.NoError(err)
	req.Nil(got)

	atts, err := s.AttachmentsOf(ctx, "m1")
	req.NoError(err)
	req.Empty(atts)
}

func Test_DeleteMessage_RoomMismatch(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	roomID := uuid.New()
	msg := &models.Message{ID: "m1", RoomID: roomID, AuthorID: uuid.New(), Body: "hi", CreatedAt: time.Now().UTC()}
	req.NoError(s.CreateMessage(ctx, msg))

	refs, err := s.DeleteMessage(ctx, uuid.New(), "m1")
	req.NoError(err)
	req.Nil(refs)

	// The original message is untouched.
	got, err := s.GetMessage(ctx, roomID, "m1")
	req.NoError(err)
	req.NotNil(got)
}

func Test_CountBlobRefs(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.CountBlobRefs(ctx, "blob-x")
	req.NoError(err)
	req.Zero(count)

	a1 := &models.Attachment{MessageID: "m1", BlobRef: "blob-x", Kind: models.KindImage}
	a2 := &models.Attachment{MessageID: "m2", BlobRef: "blob-x", Kind: models.KindImage}
	req.NoError(s.AddAttachment(ctx, a1))
	req.NoError(s.AddAttachment(ctx, a2))

	// Avatars referencing the same bytes count too.
	user, err := s.CreateUser(ctx, "alice", "")
	req.NoError(err)
	req.NoError(s.SetUserAvatar(ctx, user.ID, "blob-x"))

	count, err = s.CountBlobRefs(ctx, "blob-x")
	req.NoError(err)
	req.Equal(3, count)

	_, err = s.RemoveAttachment(ctx, "m1", a1.ID)
	req.NoError(err)
	count, err = s.CountBlobRefs(ctx, "blob-x")
	req.NoError(err)
	req.Equal(2, count)
}

func Test_Membership_SetSemantics(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	userID := uuid.New()
	roomID := uuid.New()

	req.NoError(s.AddMember(ctx, userID, roomID))
	req.NoError(s.AddMember(ctx, userID, roomID)) // re-join is a no-op

	members, err := s.MembersOf(ctx, roomID)
	req.NoError(err)
	req.Len(members, 1)

	ok, err := s.IsMember(ctx, userID, roomID)
	req.NoError(err)
	req.True(ok)

	req.NoError(s.RemoveMember(ctx, userID, roomID))
	ok, err = s.IsMember(ctx, userID, roomID)
	req.NoError(err)
	req.False(ok)
}

func Test_ListRoomMessages_NewestFirst(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	roomID := uuid.New()
	author := uuid.New()
	base := time.Now().UTC()
	for i, id := range []string{"m1", "m2", "m3"} {
		req.NoError(s.CreateMessage(ctx, &models.Message{
			ID: id, RoomID: roomID, AuthorID: author, Body: id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	messages, err := s.ListRoomMessages(ctx, roomID, 2, time.Time{})
	req.NoError(err)
	req.Len(messages, 2)
	req.Equal("m3", messages[0].ID)
	req.Equal("m2", messages[1].ID)
}
