package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	session "github.com/ustalink/go-session"
)

func TestCredentialStorePutGet(t *testing.T) {
	secure := newMemorySecureStore()
	store := session.NewCredentialStore(secure, newTestPrefs(t))

	t.Run("get before put is empty", func(t *testing.T) {
		token, err := store.Get()
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("put then get round trips", func(t *testing.T) {
		require.NoError(t, store.Put("token-1"))

		token, err := store.Get()
		require.NoError(t, err)
		assert.Equal(t, "token-1", token)
	})

	t.Run("put failure is a persistence error", func(t *testing.T) {
		secure.setErr = errBackendDown
		defer func() { secure.setErr = nil }()

		err := store.Put("token-2")
		require.Error(t, err)
	})
}

func TestCredentialStoreClear(t *testing.T) {
	ctx := context.Background()
	secure := newMemorySecureStore()
	prefs := newTestPrefs(t)
	store := session.NewCredentialStore(secure, prefs)

	require.NoError(t, store.Put("token-1"))
	require.NoError(t, prefs.Set(ctx, "auth_token", "legacy-token"))

	store.Clear(ctx)

	token, err := store.Get()
	require.NoError(t, err)
	assert.Empty(t, token)

	_, ok, err := prefs.Get(ctx, "auth_token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialMigration(t *testing.T) {
	ctx := context.Background()

	t.Run("moves legacy credential to the secure slot", func(t *testing.T) {
		secure := newMemorySecureStore()
		prefs := newTestPrefs(t)
		store := session.NewCredentialStore(secure, prefs)

		require.NoError(t, prefs.Set(ctx, "auth_token", "legacy-token"))

		migrated, err := store.MigrateIfNeeded(ctx)
		require.NoError(t, err)
		assert.True(t, migrated)

		token, err := store.Get()
		require.NoError(t, err)
		assert.Equal(t, "legacy-token", token)

		_, ok, err := prefs.Get(ctx, "auth_token")
		require.NoError(t, err)
		assert.False(t, ok, "legacy slot must be erased")
	})

	t.Run("running twice yields the same end state", func(t *testing.T) {
		secure := newMemorySecureStore()
		prefs := newTestPrefs(t)
		store := session.NewCredentialStore(secure, prefs)

		require.NoError(t, prefs.Set(ctx, "auth_token", "legacy-token"))

		migrated, err := store.MigrateIfNeeded(ctx)
		require.NoError(t, err)
		assert.True(t, migrated)

		migrated, err = store.MigrateIfNeeded(ctx)
		require.NoError(t, err)
		assert.False(t, migrated)

		token, err := store.Get()
		require.NoError(t, err)
		assert.Equal(t, "legacy-token", token)
	})

	t.Run("no-op when there is no legacy credential", func(t *testing.T) {
		store := session.NewCredentialStore(newMemorySecureStore(), newTestPrefs(t))

		migrated, err := store.MigrateIfNeeded(ctx)
		require.NoError(t, err)
		assert.False(t, migrated)
	})

	t.Run("existing secure credential wins over legacy", func(t *testing.T) {
		secure := newMemorySecureStore()
		prefs := newTestPrefs(t)
		store := session.NewCredentialStore(secure, prefs)

		require.NoError(t, store.Put("current-token"))
		require.NoError(t, prefs.Set(ctx, "auth_token", "legacy-token"))

		migrated, err := store.MigrateIfNeeded(ctx)
		require.NoError(t, err)
		assert.False(t, migrated)

		token, err := store.Get()
		require.NoError(t, err)
		assert.Equal(t, "current-token", token)

		_, ok, err := prefs.Get(ctx, "auth_token")
		require.NoError(t, err)
		assert.False(t, ok, "stale legacy slot is still erased")
	})

	t.Run("secure write failure keeps the legacy slot for retry", func(t *testing.T) {
		secure := newMemorySecureStore()
		prefs := newTestPrefs(t)
		store := session.NewCredentialStore(secure, prefs)

		require.NoError(t, prefs.Set(ctx, "auth_token", "legacy-token"))
		secure.setErr = errBackendDown

		_, err := store.MigrateIfNeeded(ctx)
		require.Error(t, err)

		value, ok, err := prefs.Get(ctx, "auth_token")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "legacy-token", value)

		// A later start with a healthy secure store completes the move.
		secure.setErr = nil
		migrated, err := store.MigrateIfNeeded(ctx)
		require.NoError(t, err)
		assert.True(t, migrated)
	})
}
