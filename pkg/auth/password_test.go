package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityz/backend/pkg/apperrors"
)

func TestValidatePassword(t *testing.T) {
	t.Run("too short", func(t *testing.T) {
		err := ValidatePassword("ab1")
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeWeakPassword, apperrors.CodeOf(err))
	})

	t.Run("long but low entropy", func(t *testing.T) {
		err := ValidatePassword("aaaaaaaa")
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeWeakPassword, apperrors.CodeOf(err))
	})

	t.Run("acceptable password", func(t *testing.T) {
		assert.NoError(t, ValidatePassword("correct-horse-battery"))
	})
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("sup3r-secret")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	assert.NotEqual(t, "sup3r-secret", hash)

	assert.NoError(t, CheckPassword(hash, "sup3r-secret"))

	err = CheckPassword(hash, "wrong-password")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeWrongPassword, apperrors.CodeOf(err))
}
