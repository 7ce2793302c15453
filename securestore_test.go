package session_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	session "github.com/ustalink/go-session"
)

func TestFileSecureStore(t *testing.T) {
	rootKey := []byte("0123456789abcdef0123456789abcdef")

	t.Run("requires directory and key", func(t *testing.T) {
		_, err := session.NewFileSecureStore("", rootKey)
		assert.Error(t, err)

		_, err = session.NewFileSecureStore(t.TempDir(), nil)
		assert.Error(t, err)
	})

	t.Run("round trips a value", func(t *testing.T) {
		store, err := session.NewFileSecureStore(t.TempDir(), rootKey)
		require.NoError(t, err)

		require.NoError(t, store.Set("auth_token", "super-secret"))

		value, ok, err := store.Get("auth_token")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "super-secret", value)
	})

	t.Run("missing slot is absent not an error", func(t *testing.T) {
		store, err := session.NewFileSecureStore(t.TempDir(), rootKey)
		require.NoError(t, err)

		_, ok, err := store.Get("never_written")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("value is not stored in plaintext", func(t *testing.T) {
		dir := t.TempDir()
		store, err := session.NewFileSecureStore(dir, rootKey)
		require.NoError(t, err)

		require.NoError(t, store.Set("auth_token", "super-secret"))

		raw, err := os.ReadFile(filepath.Join(dir, "auth_token.sealed"))
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "super-secret")
	})

	t.Run("tampered slot fails authentication", func(t *testing.T) {
		dir := t.TempDir()
		store, err := session.NewFileSecureStore(dir, rootKey)
		require.NoError(t, err)

		require.NoError(t, store.Set("auth_token", "super-secret"))

		path := filepath.Join(dir, "auth_token.sealed")
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0xff
		require.NoError(t, os.WriteFile(path, raw, 0o600))

		_, _, err = store.Get("auth_token")
		assert.Error(t, err)
	})

	t.Run("truncated slot is an error", func(t *testing.T) {
		dir := t.TempDir()
		store, err := session.NewFileSecureStore(dir, rootKey)
		require.NoError(t, err)

		path := filepath.Join(dir, "auth_token.sealed")
		require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))

		_, _, err = store.Get("auth_token")
		assert.Error(t, err)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store, err := session.NewFileSecureStore(t.TempDir(), rootKey)
		require.NoError(t, err)

		require.NoError(t, store.Set("auth_token", "super-secret"))
		require.NoError(t, store.Delete("auth_token"))
		require.NoError(t, store.Delete("auth_token"))

		_, ok, err := store.Get("auth_token")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("different slots use different seal keys", func(t *testing.T) {
		dir := t.TempDir()
		store, err := session.NewFileSecureStore(dir, rootKey)
		require.NoError(t, err)

		require.NoError(t, store.Set("a", "value"))

		// Replaying slot a's ciphertext under slot b must not open.
		raw, err := os.ReadFile(filepath.Join(dir, "a.sealed"))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "b.sealed"), raw, 0o600))

		_, _, err = store.Get("b")
		assert.Error(t, err)
	})
}
