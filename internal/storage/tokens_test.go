package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenLifecycle(t *testing.T) {
	store := newTestStore(t)

	created := time.Now().UTC().Truncate(time.Millisecond)
	token := &UserToken{
		ID:        "tok-1",
		UserID:    "user-1",
		Name:      "laptop",
		TokenHash: "$2a$10$hash",
		CreatedAt: created,
		LastSeen:  created,
	}
	require.NoError(t, store.SaveToken(token))

	got, err := store.GetToken("tok-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "laptop", got.Name)
	assert.True(t, got.CreatedAt.Equal(created))

	seen := created.Add(time.Hour)
	require.NoError(t, store.UpdateLastSeen("tok-1", seen))
	got, err = store.GetToken("tok-1")
	require.NoError(t, err)
	assert.True(t, got.LastSeen.Equal(seen))

	tokens, err := store.ListTokens()
	require.NoError(t, err)
	assert.Len(t, tokens, 1)

	require.NoError(t, store.DeleteToken("tok-1"))
	require.NoError(t, store.DeleteToken("tok-1"), "delete is idempotent")

	got, err = store.GetToken("tok-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateLastSeen_Unknown(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateLastSeen("missing", time.Now())
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestSaveToken_Nil(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.SaveToken(nil))
}
