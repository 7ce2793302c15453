package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	session "github.com/ustalink/go-session"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := session.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.ProbeInterval)
	assert.Equal(t, 30*time.Second, cfg.ConnectivityTimeout)
	assert.Equal(t, 5*time.Minute, cfg.RefreshThreshold)
	assert.Equal(t, session.DefaultUnauthorizedMessage, cfg.UnauthorizedMessage)
	assert.Equal(t, "US", cfg.PhoneRegion)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SESSION_MAX_ATTEMPTS", "5")
	t.Setenv("SESSION_RETRY_BASE_DELAY", "250ms")
	t.Setenv("SESSION_PHONE_REGION", "BR")
	t.Setenv("SESSION_SECURE_STORE_PATH", "/tmp/secure")

	cfg, err := session.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, "BR", cfg.PhoneRegion)
	assert.Equal(t, "/tmp/secure", cfg.SecureStorePath)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Run("unparseable duration", func(t *testing.T) {
		t.Setenv("SESSION_RETRY_BASE_DELAY", "soon")

		_, err := session.LoadConfig()
		assert.Error(t, err)
	})

	t.Run("zero attempts", func(t *testing.T) {
		t.Setenv("SESSION_MAX_ATTEMPTS", "0")

		_, err := session.LoadConfig()
		assert.Error(t, err)
	})

	t.Run("bad phone region", func(t *testing.T) {
		t.Setenv("SESSION_PHONE_REGION", "USA")

		_, err := session.LoadConfig()
		assert.Error(t, err)
	})
}
