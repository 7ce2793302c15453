package session

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// CredentialStoreKey is the fixed secure-slot key for the session credential.
const CredentialStoreKey = "auth_token"

// CredentialStore owns durable persistence of the session credential: the
// secure slot for current installs and the legacy preference slot that older
// installs wrote before the secure store existed.
type CredentialStore struct {
	secure SecureStore
	prefs  *PreferenceStore
	logger Logger
}

// CredentialStoreOption customizes store construction.
type CredentialStoreOption func(*CredentialStore)

// WithCredentialLogger overrides the store logger.
func WithCredentialLogger(logger Logger) CredentialStoreOption {
	return func(c *CredentialStore) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCredentialStore wires the secure slot and the legacy preference slot.
func NewCredentialStore(secure SecureStore, prefs *PreferenceStore, opts ...CredentialStoreOption) *CredentialStore {
	store := &CredentialStore{
		secure: secure,
		prefs:  prefs,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	return store
}

// Put writes the credential to the secure slot. On failure the login is not
// durably complete; callers may still use the in-memory session for the
// current process lifetime.
func (c *CredentialStore) Put(token string) error {
	if err := c.secure.Set(CredentialStoreKey, token); err != nil {
		return ErrPersistence.Clone().WithMetadata(map[string]any{
			"op":    "put",
			"cause": err.Error(),
		})
	}
	return nil
}

// Get returns the stored credential, or empty when never set.
func (c *CredentialStore) Get() (string, error) {
	token, ok, err := c.secure.Get(CredentialStoreKey)
	if err != nil {
		return "", ErrPersistence.Clone().WithMetadata(map[string]any{
			"op":    "get",
			"cause": err.Error(),
		})
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// Clear removes the secure slot and any legacy slot. Backend failures are
// logged and swallowed: failing to clear a credential on logout must never
// block the user from reaching the unauthenticated state.
func (c *CredentialStore) Clear(ctx context.Context) {
	if err := c.secure.Delete(CredentialStoreKey); err != nil {
		c.logger.Error("credential store clear secure slot failed: %v", err)
	}
	if err := c.prefs.Delete(ctx, legacyCredentialKey); err != nil {
		c.logger.Error("credential store clear legacy slot failed: %v", err)
	}
}

// MigrateIfNeeded moves a credential left in the legacy preference slot by
// older installations into the secure slot, exactly once. It is idempotent:
// running it again is a no-op producing the same end state. It must run at
// process start before any other CredentialStore method. The boolean reports
// whether a value was actually migrated.
func (c *CredentialStore) MigrateIfNeeded(ctx context.Context) (bool, error) {
	legacy, hasLegacy, err := c.prefs.Get(ctx, legacyCredentialKey)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "read legacy credential slot")
	}
	if !hasLegacy {
		return false, nil
	}

	_, hasSecure, err := c.secure.Get(CredentialStoreKey)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "probe secure credential slot")
	}

	migrated := false
	if !hasSecure {
		if err := c.secure.Set(CredentialStoreKey, legacy); err != nil {
			// Leave the legacy slot intact so a later start can retry.
			return false, ErrPersistence.Clone().WithMetadata(map[string]any{
				"op":    "migrate",
				"cause": err.Error(),
			})
		}
		migrated = true
	}

	if err := c.prefs.Delete(ctx, legacyCredentialKey); err != nil {
		c.logger.Warn("credential migration could not erase legacy slot: %v", err)
	}

	return migrated, nil
}
