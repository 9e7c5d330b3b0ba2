package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/errs"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/store"
)

func newTestRegistry(t *testing.T) *RoomRegistry {
	t.Helper()
	s, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return New(s, zerolog.Nop())
}

func Test_CreateRoom_CreatorJoins(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t)
	ctx := context.Background()

	creator := uuid.New()
	room, err := r.CreateRoom(ctx, "general", false, creator)
	req.NoError(err)

	ok, err := r.IsParticipant(ctx, creator, room.ID)
	req.NoError(err)
	req.True(ok)
}

func Test_CreateRoom_RequiresName(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.CreateRoom(context.Background(), "", false, uuid.New())
	require.True(t, errs.IsValidation(err))
}

func Test_Join_PublicRoom(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t)
	ctx := context.Background()

	room, err := r.CreateRoom(ctx, "general", false, uuid.New())
	req.NoError(err)

	joiner := uuid.New()
	req.NoError(r.Join(ctx, joiner, room.ID, nil))

	ok, err := r.IsParticipant(ctx, joiner, room.ID)
	req.NoError(err)
	req.True(ok)
}

func Test_Join_PrivateRoom_RequiresInvite(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t)
	ctx := context.Background()

	owner := uuid.New()
	room, err := r.CreateRoom(ctx, "backchannel", true, owner)
	req.NoError(err)

	joiner := uuid.New()
	req.ErrorIs(r.Join(ctx, joiner, room.ID, nil), errs.ErrForbidden)

	outsider := uuid.New()
	req.ErrorIs(r.Join(ctx, joiner, room.ID, &outsider), errs.ErrForbidden)

	req.NoError(r.Join(ctx, joiner, room.ID, &owner))
	ok, err := r.IsParticipant(ctx, joiner, room.ID)
	req.NoError(err)
	req.True(ok)
}

func Test_Join_UnknownRoom(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Join(context.Background(), uuid.New(), uuid.New(), nil)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func Test_Leave(t *testing.T) {
	req := require.New(t)
	r := newTestRegistry(t)
	ctx := context.Background()

	member := uuid.New()
	room, err := r.CreateRoom(ctx, "general", false, member)
	req.NoError(err)

	req.NoError(r.Leave(ctx, member, room.ID))
	ok, err := r.IsParticipant(ctx, member, room.ID)
	req.NoError(err)
	req.False(ok)
}
