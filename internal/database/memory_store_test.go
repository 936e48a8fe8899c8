package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, id := range []string{"3", "1", "2"} {
		require.NoError(t, store.SaveSession(ctx, NewSessionRecord(id, "bridge", "127.0.0.1:1")))
	}

	session, err := store.GetSession(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "2", session.ClientID)

	// returned records are copies
	session.Subscriptions["home/temp"] = "Any"
	again, err := store.GetSession(ctx, "2")
	require.NoError(t, err)
	assert.Empty(t, again.Subscriptions)

	list, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "1", list[0].ClientID)

	require.NoError(t, store.DeleteSession(ctx, "1"))
	_, err = store.GetSession(ctx, "1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, store.SaveSession(ctx, &SessionRecord{}), ClientIdEmptyError)
	_, err = store.GetSession(ctx, "")
	assert.ErrorIs(t, err, ClientIdEmptyError)
}
