package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityz/backend/pkg/apperrors"
)

func TestCanSendFriendRequest(t *testing.T) {
	t.Run("clean slate", func(t *testing.T) {
		assert.NoError(t, CanSendFriendRequest(RelationState{}))
	})

	t.Run("blocked pair", func(t *testing.T) {
		err := CanSendFriendRequest(RelationState{BlockedEither: true})
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeBlocked, apperrors.CodeOf(err))
	})

	t.Run("already friends", func(t *testing.T) {
		err := CanSendFriendRequest(RelationState{Friends: true})
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeAlreadyFriends, apperrors.CodeOf(err))
	})

	t.Run("duplicate pending request", func(t *testing.T) {
		err := CanSendFriendRequest(RelationState{PendingRequest: true})
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeAlreadyExists, apperrors.CodeOf(err))
	})
}

func TestCanAcceptFriendRequest(t *testing.T) {
	pending := &FriendRequest{
		ID:         "req-1",
		SenderID:   "alice",
		ReceiverID: "bob",
		Status:     FriendRequestPending,
	}

	t.Run("receiver accepts pending request", func(t *testing.T) {
		assert.NoError(t, CanAcceptFriendRequest(pending, "bob", RelationState{PendingRequest: true}))
	})

	t.Run("sender cannot accept own request", func(t *testing.T) {
		err := CanAcceptFriendRequest(pending, "alice", RelationState{PendingRequest: true})
		require.Error(t, err)
		assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))
	})

	t.Run("resolved request cannot be accepted again", func(t *testing.T) {
		resolved := &FriendRequest{ID: "req-2", SenderID: "alice", ReceiverID: "bob", Status: FriendRequestAccepted}
		err := CanAcceptFriendRequest(resolved, "bob", RelationState{Friends: true})
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeFailedPrecondition, apperrors.CodeOf(err))
	})

	t.Run("block created after the request makes it unacceptable", func(t *testing.T) {
		err := CanAcceptFriendRequest(pending, "bob", RelationState{PendingRequest: true, BlockedEither: true})
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeBlocked, apperrors.CodeOf(err))
	})
}

func TestCanDeclineFriendRequest(t *testing.T) {
	pending := &FriendRequest{
		ID:         "req-1",
		SenderID:   "alice",
		ReceiverID: "bob",
		Status:     FriendRequestPending,
	}

	assert.NoError(t, CanDeclineFriendRequest(pending, "bob"))

	err := CanDeclineFriendRequest(pending, "alice")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))

	declined := &FriendRequest{ID: "req-3", SenderID: "alice", ReceiverID: "bob", Status: FriendRequestDeclined}
	err = CanDeclineFriendRequest(declined, "bob")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeFailedPrecondition, apperrors.CodeOf(err))
}

func TestFriendRequestResolved(t *testing.T) {
	assert.False(t, (&FriendRequest{Status: FriendRequestPending}).Resolved())
	assert.True(t, (&FriendRequest{Status: FriendRequestAccepted}).Resolved())
	assert.True(t, (&FriendRequest{Status: FriendRequestDeclined}).Resolved())
}
