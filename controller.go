package session

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// State is the controller's lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateAnonymous     State = "anonymous"
	StateAuthenticated State = "authenticated"
)

// ErrNotInitialized is returned when a lifecycle operation runs before
// Initialize.
var ErrNotInitialized = goerrors.New("session controller not initialized", goerrors.CategoryConflict).
	WithTextCode("SESSION_NOT_INITIALIZED")

// Session pairs exactly one credential with exactly one user record. It is
// either fully present or fully absent; callers never observe a partial pair.
type Session struct {
	Token  string
	Claims *Claims
	User   User
}

// UserID returns the identifier of the session's user.
func (s *Session) UserID() string {
	return s.User.ID.String()
}

// Controller is the single authoritative owner of session state. The
// credential store and the in-memory session are mutated only here; every
// other component reads through its accessors. Transitions are serialized and
// processed in arrival order.
type Controller struct {
	mu      sync.Mutex
	state   State
	session *Session

	store     *CredentialStore
	prefs     *PreferenceStore
	inspector *Inspector
	gate      *RedirectGate

	transitions      map[State]map[State]struct{}
	sink             EventSink
	logger           Logger
	now              Clock
	refreshThreshold time.Duration
	phoneRegion      string
}

// ControllerOption customizes controller construction.
type ControllerOption func(*Controller)

// WithControllerLogger overrides the controller logger.
func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithEventSink sets the EventSink used to publish lifecycle events.
func WithEventSink(sink EventSink) ControllerOption {
	return func(c *Controller) {
		c.sink = normalizeEventSink(sink)
	}
}

// WithControllerClock injects a custom clock (useful for tests).
func WithControllerClock(clock Clock) ControllerOption {
	return func(c *Controller) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithRefreshThreshold overrides the proactive-refresh advisory window.
func WithRefreshThreshold(threshold time.Duration) ControllerOption {
	return func(c *Controller) {
		if threshold > 0 {
			c.refreshThreshold = threshold
		}
	}
}

// WithPhoneRegion sets the default region for phone normalization when
// rehydrating the persisted user record.
func WithPhoneRegion(region string) ControllerOption {
	return func(c *Controller) {
		if region != "" {
			c.phoneRegion = region
		}
	}
}

// NewController wires the controller with its collaborators. Construct one
// per process at startup and pass it by reference; there are no ambient
// singletons.
func NewController(store *CredentialStore, prefs *PreferenceStore, inspector *Inspector, gate *RedirectGate, opts ...ControllerOption) *Controller {
	c := &Controller{
		state:     StateUninitialized,
		store:     store,
		prefs:     prefs,
		inspector: inspector,
		gate:      gate,
		transitions: map[State]map[State]struct{}{
			StateUninitialized: {
				StateAnonymous:     {},
				StateAuthenticated: {},
			},
			StateAnonymous: {
				StateAuthenticated: {},
			},
			StateAuthenticated: {
				StateAnonymous: {},
			},
		},
		sink:             noopEventSink{},
		logger:           defLogger{},
		now:              time.Now,
		refreshThreshold: DefaultRefreshThreshold,
		phoneRegion:      "US",
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// Initialize runs credential migration and rehydrates the session from
// storage. A stored token that is structurally valid, unexpired, and has a
// readable user record yields Authenticated; any missing piece yields
// Anonymous with the partial data cleared, so a dangling token without a
// user is never kept. Calling Initialize twice is a logged no-op.
func (c *Controller) Initialize(ctx context.Context) State {
	c.mu.Lock()
	if c.state != StateUninitialized {
		state := c.state
		c.mu.Unlock()
		c.logger.Warn("session controller already initialized, state=%s", state)
		return state
	}

	var pending []Event

	migrated, err := c.store.MigrateIfNeeded(ctx)
	if err != nil {
		c.logger.Warn("credential migration failed: %v", err)
	}
	if migrated {
		pending = append(pending, Event{Type: EventCredentialMigrated})
	}

	state := c.rehydrateLocked(ctx)
	c.state = state
	c.mu.Unlock()

	for _, event := range pending {
		c.emit(ctx, event)
	}

	c.logger.Info("session controller initialized, state=%s", state)
	return state
}

func (c *Controller) rehydrateLocked(ctx context.Context) State {
	token, err := c.store.Get()
	if err != nil {
		c.logger.Error("credential read failed during rehydration: %v", err)
		c.clearStorageLocked(ctx)
		return StateAnonymous
	}
	if token == "" {
		c.clearStorageLocked(ctx)
		return StateAnonymous
	}

	if !c.inspector.IsStructurallyValid(token) {
		c.logger.Warn("stored credential is malformed, discarding")
		c.clearStorageLocked(ctx)
		return StateAnonymous
	}

	if c.inspector.IsExpired(token) {
		c.logger.Info("stored credential is expired, starting anonymous")
		c.clearStorageLocked(ctx)
		return StateAnonymous
	}

	user, ok, err := c.prefs.UserRecord(ctx, c.phoneRegion)
	if err != nil || !ok {
		if err != nil {
			c.logger.Warn("stored user record unreadable, discarding session: %v", err)
		}
		c.clearStorageLocked(ctx)
		return StateAnonymous
	}

	claims, err := c.inspector.Claims(token)
	if err != nil {
		c.clearStorageLocked(ctx)
		return StateAnonymous
	}

	c.session = &Session{Token: token, Claims: claims, User: *user}
	return StateAuthenticated
}

// Current returns an atomic snapshot of the session, or nil when there is
// none. The snapshot never mixes an old credential with a new user.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateAuthenticated || c.session == nil {
		return nil
	}

	snapshot := *c.session
	return &snapshot
}

// State returns the controller's lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Login persists the credential and user record and transitions to
// Authenticated. The pair is atomic from the caller's point of view: if the
// credential write fails the user write never happens and the state stays
// Anonymous; if the user write fails the credential is rolled back.
func (c *Controller) Login(ctx context.Context, token string, user *User) error {
	if user == nil {
		return invalidUser("user is nil")
	}

	c.mu.Lock()

	if c.state == StateUninitialized || !c.canTransition(c.state, StateAuthenticated) {
		c.mu.Unlock()
		return ErrNotInitialized.Clone()
	}

	if !c.inspector.IsStructurallyValid(token) {
		c.mu.Unlock()
		return ErrCredentialMalformed.Clone()
	}

	if err := c.store.Put(token); err != nil {
		c.mu.Unlock()
		return err
	}

	if err := c.prefs.SetUserRecord(ctx, user); err != nil {
		c.store.Clear(ctx)
		c.mu.Unlock()
		return ErrPersistence.Clone().WithMetadata(map[string]any{
			"op":    "login",
			"cause": err.Error(),
		})
	}

	claims, err := c.inspector.Claims(token)
	if err != nil {
		c.store.Clear(ctx)
		c.mu.Unlock()
		return err
	}

	c.session = &Session{Token: token, Claims: claims, User: *user}
	c.state = StateAuthenticated
	userID := user.ID.String()
	c.mu.Unlock()

	c.emit(ctx, Event{Type: EventLogin, UserID: userID})
	return nil
}

// UpdateUser replaces only the user record; the credential and its expiry are
// untouched.
func (c *Controller) UpdateUser(ctx context.Context, user *User) error {
	if user == nil {
		return invalidUser("user is nil")
	}

	c.mu.Lock()

	if c.state != StateAuthenticated || c.session == nil {
		c.mu.Unlock()
		return ErrUnauthenticated.Clone()
	}

	if err := c.prefs.SetUserRecord(ctx, user); err != nil {
		c.mu.Unlock()
		return ErrPersistence.Clone().WithMetadata(map[string]any{
			"op":    "update_user",
			"cause": err.Error(),
		})
	}

	c.session.User = *user
	userID := user.ID.String()
	c.mu.Unlock()

	c.emit(ctx, Event{Type: EventUserUpdated, UserID: userID})
	return nil
}

// Logout is the user-initiated teardown: clear storage, drop the in-memory
// session, and reset navigation with no reason message.
func (c *Controller) Logout(ctx context.Context) {
	c.teardown(ctx, "", EventLogout)
}

// ForceLogout is the system-initiated teardown. It is idempotent: when
// already Anonymous it still clears storage defensively (memory and storage
// may have drifted) and the RedirectGate's own guard keeps concurrent callers
// from stacking navigation resets.
func (c *Controller) ForceLogout(ctx context.Context, reason string) {
	c.teardown(ctx, reason, EventForcedLogout)
}

// HandleExpiration is the teardown alias for detected-expired credentials and
// 401/403 responses, kept distinct so telemetry can tell "user chose to log
// out" from "session was invalidated".
func (c *Controller) HandleExpiration(ctx context.Context, reason string) {
	c.teardown(ctx, reason, EventExpired)
}

func (c *Controller) teardown(ctx context.Context, reason string, eventType EventType) {
	c.mu.Lock()

	wasAuthenticated := c.state == StateAuthenticated
	var userID string
	if c.session != nil {
		userID = c.session.UserID()
	}

	c.session = nil
	c.state = StateAnonymous
	c.clearStorageLocked(ctx)
	c.mu.Unlock()

	if wasAuthenticated {
		c.emit(ctx, Event{Type: eventType, UserID: userID, Reason: reason})
	}

	if c.gate != nil {
		performed := c.gate.RequestRedirect(reason)
		c.logger.Debug("teardown redirect requested, performed=%v reason=%q", performed, reason)
	}
}

// Storage failures during teardown are logged, never retried, and never
// surfaced: the in-memory transition and the redirect must always proceed.
func (c *Controller) clearStorageLocked(ctx context.Context) {
	c.store.Clear(ctx)
	if err := c.prefs.Delete(ctx, PrefKeyUserData); err != nil {
		c.logger.Error("user record clear failed: %v", err)
	}
}

// ValidCredential returns the current credential after checking structure and
// expiry. It performs no teardown itself; the dispatcher owns that decision.
func (c *Controller) ValidCredential() (string, error) {
	c.mu.Lock()
	if c.state != StateAuthenticated || c.session == nil {
		c.mu.Unlock()
		return "", ErrUnauthenticated.Clone()
	}
	token := c.session.Token
	c.mu.Unlock()

	if !c.inspector.IsStructurallyValid(token) {
		return "", ErrCredentialMalformed.Clone()
	}
	if c.inspector.IsExpired(token) {
		return "", ErrCredentialExpired.Clone()
	}

	return token, nil
}

// NeedsRefresh reports whether the current credential is inside the
// proactive-refresh window. Advisory only: refreshing is the caller's
// responsibility and no automatic refresh is wired here.
func (c *Controller) NeedsRefresh() bool {
	c.mu.Lock()
	if c.state != StateAuthenticated || c.session == nil {
		c.mu.Unlock()
		return false
	}
	token := c.session.Token
	c.mu.Unlock()

	return c.inspector.NeedsProactiveRefresh(token, c.refreshThreshold)
}

// canTransition consults the transition graph; same-state moves are always
// allowed (re-login replaces the session, repeated teardown is defensive).
func (c *Controller) canTransition(from, to State) bool {
	if from == to {
		return true
	}
	allowed, ok := c.transitions[from]
	if !ok {
		return false
	}
	_, exists := allowed[to]
	return exists
}

func (c *Controller) emit(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = c.now()
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	sink := normalizeEventSink(c.sink)
	if err := sink.Record(ctx, event); err != nil {
		c.logger.Warn("event sink record error: %v", err)
	}
}
