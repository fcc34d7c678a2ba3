package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityz/backend/pkg/apperrors"
)

func TestConversationID(t *testing.T) {
	t.Run("symmetric", func(t *testing.T) {
		assert.Equal(t, ConversationID("alice", "bob"), ConversationID("bob", "alice"))
	})

	t.Run("sorted lexicographically", func(t *testing.T) {
		assert.Equal(t, "a_b", ConversationID("b", "a"))
		assert.Equal(t, "a_b", ConversationID("a", "b"))
	})
}

func TestConversationParticipants(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		id := ConversationID("user-1", "user-2")
		a, b, err := ConversationParticipants(id)
		require.NoError(t, err)
		assert.Equal(t, "user-1", a)
		assert.Equal(t, "user-2", b)
	})

	t.Run("malformed id", func(t *testing.T) {
		_, _, err := ConversationParticipants("no-separator")
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))

		_, _, err = ConversationParticipants("_dangling")
		require.Error(t, err)
	})

	t.Run("membership", func(t *testing.T) {
		id := ConversationID("user-1", "user-2")
		assert.True(t, IsConversationParticipant(id, "user-1"))
		assert.True(t, IsConversationParticipant(id, "user-2"))
		assert.False(t, IsConversationParticipant(id, "user-3"))
	})
}

func TestValidateMessageContent(t *testing.T) {
	assert.NoError(t, ValidateMessageContent("hello"))
	assert.NoError(t, ValidateMessageContent("  padded  "))

	for _, content := range []string{"", "   ", "\n\t"} {
		err := ValidateMessageContent(content)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
	}
}
