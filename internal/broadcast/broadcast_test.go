package broadcast

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/attach"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/models"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/store"
)

func Test_Hub_PublishToSubscribers(t *testing.T) {
	req := require.New(t)
	hub := NewHub()
	roomID := uuid.New()
	topic := RoomTopic(roomID)

	ch1, cancel1 := hub.Subscribe(topic)
	ch2, cancel2 := hub.Subscribe(topic)
	defer cancel2()

	other, cancelOther := hub.Subscribe(RoomTopic(uuid.New()))
	defer cancelOther()

	req.NoError(hub.Publish(context.Background(), topic, Envelope{Type: TypeMessageAppended, RoomID: roomID}))

	for _, ch := range []<-chan Envelope{ch1, ch2} {
		select {
		case ev := <-ch:
			req.Equal(TypeMessageAppended, ev.Type)
			req.Equal(roomID, ev.RoomID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
	select {
	case <-other:
		t.Fatal("event leaked to another topic")
	default:
	}

	// After cancel, the channel is closed and no longer receives.
	cancel1()
	_, open := <-ch1
	req.False(open)
	req.NoError(hub.Publish(context.Background(), topic, Envelope{Type: TypeMessageAppended, RoomID: roomID}))
}

func Test_Hub_FullSubscriberDropsNotBlocks(t *testing.T) {
	hub := NewHub()
	topic := RoomTopic(uuid.New())
	_, cancel := hub.Subscribe(topic)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ { // past the 64-slot buffer
			_ = hub.Publish(context.Background(), topic, Envelope{Type: TypeMessageAppended})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func newTestBroadcaster(t *testing.T) (*FanoutBroadcaster, *Hub, store.DataStore, *attach.Pipeline) {
	t.Helper()
	ds, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(ds.Close)

	blobs, err := attach.NewDiskBlobStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	pipeline := attach.NewPipeline(ds, blobs, zerolog.Nop())
	t.Cleanup(pipeline.Close)

	hub := NewHub()
	return New(hub, ds, pipeline, nil, zerolog.Nop()), hub, ds, pipeline
}

func Test_Publish_MessageThenUnreadOrder(t *testing.T) {
	req := require.New(t)
	b, hub, ds, _ := newTestBroadcaster(t)
	ctx := context.Background()

	roomID := uuid.New()
	author, recipient := uuid.New(), uuid.New()
	msg := &models.Message{
		ID: ulid.Make().String(), RoomID: roomID, AuthorID: author,
		Body: "hi", CreatedAt: time.Now().UTC(),
	}
	req.NoError(ds.CreateMessage(ctx, msg))
	_, err := ds.InsertNotification(ctx, &models.Notification{RecipientID: recipient, MessageID: msg.ID, RoomID: roomID})
	req.NoError(err)
	req.NoError(ds.MarkDelivered(ctx, msg.ID, recipient))

	ch, cancel := hub.Subscribe(RoomTopic(roomID))
	defer cancel()

	req.NoError(b.Publish(ctx, msg, []uuid.UUID{recipient}))

	first := <-ch
	req.Equal(TypeMessageAppended, first.Type)
	req.NotNil(first.Message)
	req.Equal(msg.ID, first.Message.ID)
	req.Equal("hi", first.Message.Body)

	second := <-ch
	req.Equal(TypeUnreadCountChanged, second.Type)
	req.NotNil(second.Unread)
	req.Equal(recipient, second.Unread.UserID)
	req.Equal(1, second.Unread.Count)
}

func Test_Publish_AttachmentPlaceholderUntilVariantCached(t *testing.T) {
	req := require.New(t)
	b, hub, ds, pipeline := newTestBroadcaster(t)
	ctx := context.Background()

	roomID := uuid.New()
	msg := &models.Message{
		ID: ulid.Make().String(), RoomID: roomID, AuthorID: uuid.New(),
		Body: "", CreatedAt: time.Now().UTC(),
	}
	req.NoError(ds.CreateMessage(ctx, msg))
	att, err := pipeline.Attach(ctx, msg.ID, attach.Upload{
		Filename:    "photo.jpg",
		ContentType: "image/jpeg",
		Data:        []byte("not really a jpeg"),
	})
	req.NoError(err)
	req.Equal(models.KindImage, att.Kind)

	ch, cancel := hub.Subscribe(RoomTopic(roomID))
	defer cancel()

	req.NoError(b.Publish(ctx, msg, nil))

	ev := <-ch
	req.Equal(TypeMessageAppended, ev.Type)
	req.Len(ev.Message.Attachments, 1)
	req.True(ev.Message.Attachments[0].Placeholder)
	req.Empty(ev.Message.Attachments[0].Thumbnail)
}

func Test_Tee_PublishesToAll(t *testing.T) {
	req := require.New(t)
	hubA, hubB := NewHub(), NewHub()
	topic := RoomTopic(uuid.New())
	chA, cancelA := hubA.Subscribe(topic)
	defer cancelA()
	chB, cancelB := hubB.Subscribe(topic)
	defer cancelB()

	tee := Tee{hubA, hubB}
	req.NoError(tee.Publish(context.Background(), topic, Envelope{Type: TypeMessageAppended}))
	req.Len(chA, 1)
	req.Len(chB, 1)
}
