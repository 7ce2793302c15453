package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	session "github.com/ustalink/go-session"
)

// recordingNavigator counts navigation resets and remembers the reasons.
type recordingNavigator struct {
	mu      sync.Mutex
	resets  int
	reasons []string
	// when set, ResetToLogin blocks until the channel closes
	hold chan struct{}
	err  error
}

func (n *recordingNavigator) ResetToLogin(reason string) error {
	if n.hold != nil {
		<-n.hold
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets++
	n.reasons = append(n.reasons, reason)
	return n.err
}

func (n *recordingNavigator) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resets
}

func (n *recordingNavigator) lastReason() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.reasons) == 0 {
		return ""
	}
	return n.reasons[len(n.reasons)-1]
}

// memorySecureStore is an in-process SecureStore for tests that do not need
// the sealed file backing.
type memorySecureStore struct {
	mu     sync.Mutex
	values map[string]string

	setErr error
	getErr error
}

func newMemorySecureStore() *memorySecureStore {
	return &memorySecureStore{values: map[string]string{}}
}

func (m *memorySecureStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func (m *memorySecureStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *memorySecureStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// recordingSink collects emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []session.Event
}

func (s *recordingSink) Record(_ context.Context, event session.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []session.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]session.EventType, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.Type)
	}
	return types
}

var errBackendDown = errors.New("backend unavailable")

func newTestPrefs(t *testing.T) *session.PreferenceStore {
	t.Helper()
	prefs, err := session.NewPreferenceStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = prefs.Close() })
	return prefs
}

func signToken(t *testing.T, subject string, expiresAt time.Time) string {
	t.Helper()
	claims := &session.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func signTokenWithoutExpiry(t *testing.T, subject string) string {
	t.Helper()
	claims := &session.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func testUser(t *testing.T) *session.User {
	t.Helper()
	return &session.User{
		ID:          uuid.New(),
		DisplayName: "Ada",
		Role:        session.RoleCustomer,
		Status:      session.StatusActive,
	}
}

type controllerFixture struct {
	controller *session.Controller
	store      *session.CredentialStore
	secure     *memorySecureStore
	prefs      *session.PreferenceStore
	nav        *recordingNavigator
	sink       *recordingSink
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()

	secure := newMemorySecureStore()
	prefs := newTestPrefs(t)
	store := session.NewCredentialStore(secure, prefs)
	nav := &recordingNavigator{}
	sink := &recordingSink{}

	controller := session.NewController(
		store,
		prefs,
		session.NewInspector(),
		session.NewRedirectGate(nav),
		session.WithEventSink(sink),
	)

	return &controllerFixture{
		controller: controller,
		store:      store,
		secure:     secure,
		prefs:      prefs,
		nav:        nav,
		sink:       sink,
	}
}
