package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stealthy-realtime/internal/apperrors"
	"stealthy-realtime/internal/model"
)

func TestStore_SendRequestRules(t *testing.T) {
	s := newTestStore(t, Options{})

	_, err := s.SendRequest("u1", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = s.SendRequest("u1", "u1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	r, err := s.SendRequest("u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, r.Status)

	_, err = s.SendRequest("u1", "u2")
	assert.Equal(t, "Request already sent", apperrors.Reason(err))
	_, err = s.SendRequest("u2", "u1")
	assert.Equal(t, "Request already received", apperrors.Reason(err))

	pending := s.PendingRequests("u2")
	require.Len(t, pending, 1)
	assert.Equal(t, r.ID, pending[0].ID)
	assert.Empty(t, s.PendingRequests("u1"))
}

func TestStore_AcceptRequestOpensDirectChat(t *testing.T) {
	s := newTestStore(t, Options{})
	r, err := s.SendRequest("u1", "u2")
	require.NoError(t, err)

	_, _, err = s.RespondRequest(r.ID, "u1", true)
	assert.ErrorIs(t, err, apperrors.ErrPermission)

	answered, chat, err := s.RespondRequest(r.ID, "u2", true)
	require.NoError(t, err)
	assert.Equal(t, model.RequestAccepted, answered.Status)
	require.NotNil(t, chat)
	assert.False(t, chat.GroupChat)
	assert.ElementsMatch(t, []string{"u1", "u2"}, chat.Members)

	_, _, err = s.RespondRequest(r.ID, "u2", true)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = s.SendRequest("u2", "u1")
	assert.Equal(t, "You are already friends", apperrors.Reason(err))

	again, created, err := s.GetOrCreateDirect("u2", "u1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, chat.ID, again.ID)
}

func TestStore_RejectRequest(t *testing.T) {
	s := newTestStore(t, Options{})
	r, err := s.SendRequest("u1", "u2")
	require.NoError(t, err)

	answered, chat, err := s.RespondRequest(r.ID, "u2", false)
	require.NoError(t, err)
	assert.Equal(t, model.RequestRejected, answered.Status)
	assert.Nil(t, chat)
	assert.Empty(t, s.ChatsFor("u1"))

	_, _, err = s.RespondRequest("missing", "u2", true)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
