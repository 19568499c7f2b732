package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stealthy-realtime/internal/apperrors"
	"stealthy-realtime/internal/model"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.Now == nil {
		clock := time.UnixMilli(1_000)
		opts.Now = func() time.Time {
			clock = clock.Add(time.Millisecond)
			return clock
		}
	}
	s, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_CreateGroup(t *testing.T) {
	s := newTestStore(t, Options{})

	c, err := s.CreateGroup("u1", " friends ", []string{"u2", "u2", "", "u1", "u3"})
	require.NoError(t, err)
	assert.Equal(t, "friends", c.Name)
	assert.True(t, c.GroupChat)
	assert.Equal(t, "u1", c.Creator)
	assert.Equal(t, []string{"u1", "u2", "u3"}, c.Members)

	members, err := s.MembersOf(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Members, members)

	_, err = s.CreateGroup("u1", "", []string{"u2"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = s.CreateGroup("u1", "solo", []string{"u1"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestStore_CreateGroupLimit(t *testing.T) {
	s := newTestStore(t, Options{MaxGroupMembers: 3})

	_, err := s.CreateGroup("u1", "big", []string{"u2", "u3", "u4"})
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, "Group members limit reached", apperrors.Reason(err))
}

func TestStore_MembersOfUnknownChat(t *testing.T) {
	s := newTestStore(t, Options{})

	_, err := s.MembersOf(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_MembersOfReturnsCopy(t *testing.T) {
	s := newTestStore(t, Options{})
	c, err := s.CreateGroup("u1", "g", []string{"u2"})
	require.NoError(t, err)

	members, err := s.MembersOf(context.Background(), c.ID)
	require.NoError(t, err)
	members[0] = "mutated"

	again, err := s.MembersOf(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, again)
}

func TestStore_MemberOperations(t *testing.T) {
	s := newTestStore(t, Options{MaxGroupMembers: 4})
	c, err := s.CreateGroup("u1", "g", []string{"u2"})
	require.NoError(t, err)

	_, _, err = s.AddMembers(c.ID, "u2", []string{"u3"})
	assert.ErrorIs(t, err, apperrors.ErrPermission)

	updated, added, err := s.AddMembers(c.ID, "u1", []string{"u2", "u3", "u4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u3", "u4"}, added)
	assert.Equal(t, []string{"u1", "u2", "u3", "u4"}, updated.Members)

	_, _, err = s.AddMembers(c.ID, "u1", []string{"u5"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	updated, err = s.RemoveMember(c.ID, "u1", "u3")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u4"}, updated.Members)

	_, err = s.RemoveMember(c.ID, "u1", "u3")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestStore_LeaveGroupHandsOverCreator(t *testing.T) {
	s := newTestStore(t, Options{})
	c, err := s.CreateGroup("u1", "g", []string{"u2", "u3"})
	require.NoError(t, err)

	left, err := s.LeaveGroup(c.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u2", left.Creator)
	assert.Equal(t, []string{"u2", "u3"}, left.Members)

	_, err = s.LeaveGroup(c.ID, "u1")
	assert.ErrorIs(t, err, apperrors.ErrPermission)

	_, err = s.LeaveGroup(c.ID, "u2")
	require.NoError(t, err)
	_, err = s.LeaveGroup(c.ID, "u3")
	require.NoError(t, err)

	_, err = s.MembersOf(context.Background(), c.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_RenameAndDelete(t *testing.T) {
	s := newTestStore(t, Options{})
	c, err := s.CreateGroup("u1", "g", []string{"u2"})
	require.NoError(t, err)

	renamed, err := s.RenameGroup(c.ID, "u1", "new name")
	require.NoError(t, err)
	assert.Equal(t, "new name", renamed.Name)

	_, err = s.DeleteChat(context.Background(), c.ID, "u2")
	assert.ErrorIs(t, err, apperrors.ErrPermission)

	_, err = s.AppendMessage(context.Background(), c.ID, "u1", "hello", nil)
	require.NoError(t, err)

	_, err = s.DeleteChat(context.Background(), c.ID, "u1")
	require.NoError(t, err)
	_, err = s.ChatForMember(c.ID, "u1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	msgs, err := s.Messages(c.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestStore_ChatsForOrdersByActivity(t *testing.T) {
	s := newTestStore(t, Options{})
	first, err := s.CreateGroup("u1", "first", []string{"u2"})
	require.NoError(t, err)
	second, err := s.CreateGroup("u1", "second", []string{"u3"})
	require.NoError(t, err)

	_, err = s.AppendMessage(context.Background(), first.ID, "u2", "bump", nil)
	require.NoError(t, err)

	chats := s.ChatsFor("u1")
	require.Len(t, chats, 2)
	assert.Equal(t, first.ID, chats[0].ID)
	assert.Equal(t, second.ID, chats[1].ID)
	assert.Len(t, s.ChatsFor("u3"), 1)
	assert.Empty(t, s.ChatsFor("nobody"))
}

func TestStore_MessagesPaging(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	var ids []string
	for _, content := range []string{"m1", "m2", "m3", "m4", "m5"} {
		msg, err := s.AppendMessage(ctx, "chat-1", "u1", content, nil)
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}
	_, err := s.AppendMessage(ctx, "chat-10", "u1", "other chat", nil)
	require.NoError(t, err)

	page, err := s.Messages("chat-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m4", page[0].Content)
	assert.Equal(t, "m5", page[1].Content)
	assert.Equal(t, ids[4], page[1].ID)

	older, err := s.Messages("chat-1", 10, page[0].CreatedAt)
	require.NoError(t, err)
	require.Len(t, older, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{older[0].Content, older[1].Content, older[2].Content})
}

func TestStore_AppendRejectsEmptyContent(t *testing.T) {
	s := newTestStore(t, Options{})

	_, err := s.AppendMessage(context.Background(), "c", "u1", "  ", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	msg, err := s.AppendMessage(context.Background(), "c", "u1", "", []model.Attachment{{PublicID: "p", URL: "https://x"}})
	require.NoError(t, err)
	assert.Len(t, msg.Attachments, 1)
}

func TestStore_AppendHonoursCancelledContext(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.AppendMessage(ctx, "c", "u1", "hi", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{BadgerPath: dir})
	require.NoError(t, err)
	_, err = s.AppendMessage(context.Background(), "c", "u1", "durable", nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(Options{BadgerPath: dir})
	require.NoError(t, err)
	defer reopened.Close()

	msgs, err := reopened.Messages("c", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "durable", msgs[0].Content)
}

func TestStore_AppendKeepsBroadcastID(t *testing.T) {
	s := newTestStore(t, Options{})
	chat, err := s.CreateGroup("u1", "band", []string{"u2"})
	require.NoError(t, err)

	err = s.Append(context.Background(), model.Message{ID: "live-1", ChatID: chat.ID, SenderID: "u2", Content: "hi"})
	require.NoError(t, err)

	msgs, err := s.Messages(chat.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "live-1", msgs[0].ID)
	assert.Equal(t, "u2", msgs[0].SenderID)
}

func TestStore_AppendRefusesNonMembers(t *testing.T) {
	s := newTestStore(t, Options{})
	chat, err := s.CreateGroup("alice", "band", []string{"bob"})
	require.NoError(t, err)

	err = s.Append(context.Background(), model.Message{ID: "m", ChatID: chat.ID, SenderID: "mallory", Content: "injected"})
	require.ErrorIs(t, err, apperrors.ErrPermission)

	err = s.Append(context.Background(), model.Message{ID: "m", ChatID: "missing", SenderID: "alice", Content: "hi"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	msgs, err := s.Messages(chat.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
