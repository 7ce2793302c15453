package session_test

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	session "github.com/ustalink/go-session"
)

func TestIsAuthRejection(t *testing.T) {
	assert.True(t, session.IsAuthRejection(session.NewHTTPStatusError(401)))
	assert.True(t, session.IsAuthRejection(session.NewHTTPStatusError(403)))
	assert.True(t, session.IsAuthRejection(session.ErrServerRejected))

	assert.False(t, session.IsAuthRejection(nil))
	assert.False(t, session.IsAuthRejection(session.NewHTTPStatusError(404)))
	assert.False(t, session.IsAuthRejection(session.NewHTTPStatusError(500)))
	assert.False(t, session.IsAuthRejection(fmt.Errorf("boom")))
}

func TestIsAuthRejectionWrapped(t *testing.T) {
	wrapped := fmt.Errorf("call failed: %w", session.NewHTTPStatusError(401))
	assert.True(t, session.IsAuthRejection(wrapped))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", session.NewHTTPStatusError(500), true},
		{"bad gateway", session.NewHTTPStatusError(502), true},
		{"client error", session.NewHTTPStatusError(404), false},
		{"unauthorized", session.NewHTTPStatusError(401), false},
		{"forbidden", session.NewHTTPStatusError(403), false},
		{"cancelled", session.ErrCancelled, false},
		{"unauthenticated", session.ErrUnauthenticated, false},
		{"invalid user record", session.ErrUserRecordInvalid, false},
		{"network timeout", &net.DNSError{IsTimeout: true}, true},
		{"plain error", fmt.Errorf("connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, session.IsRetryable(tt.err))
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, session.IsCancelled(session.ErrCancelled))
	assert.True(t, session.IsUnauthenticated(session.ErrUnauthenticated))
	assert.True(t, session.IsNoConnectivity(session.ErrNoConnectivity))
	assert.True(t, session.IsRetriesExhausted(session.ErrRetriesExhausted))
	assert.True(t, session.IsCredentialExpired(session.ErrCredentialExpired))
	assert.True(t, session.IsCredentialMalformed(session.ErrCredentialMalformed))

	assert.False(t, session.IsCancelled(session.ErrUnauthenticated))
	assert.False(t, session.IsUnauthenticated(nil))
}

func TestErrorPredicatesOnClones(t *testing.T) {
	clone := session.ErrCredentialExpired.Clone().WithMetadata(map[string]any{
		"observed_at": time.Now(),
	})
	assert.True(t, session.IsCredentialExpired(clone))
}

func TestHTTPStatusError(t *testing.T) {
	err := session.NewHTTPStatusError(503)
	assert.Contains(t, err.Error(), "503")
}
