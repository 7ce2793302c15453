package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultRefreshThreshold is the advisory window before expiry in which a
// credential is flagged for proactive refresh.
const DefaultRefreshThreshold = 5 * time.Minute

// Inspector performs stateless, offline inspection of a credential string:
// structure, expiry, and claims. Given the same token and clock it always
// returns the same result; it performs no I/O and mutates nothing.
type Inspector struct {
	parser *jwt.Parser
	now    Clock
}

// InspectorOption customizes Inspector construction.
type InspectorOption func(*Inspector)

// WithInspectorClock injects a custom clock (useful for tests).
func WithInspectorClock(clock Clock) InspectorOption {
	return func(i *Inspector) {
		if clock != nil {
			i.now = clock
		}
	}
}

// NewInspector returns an Inspector using wall-clock time by default.
func NewInspector(opts ...InspectorOption) *Inspector {
	i := &Inspector{
		parser: jwt.NewParser(jwt.WithoutClaimsValidation()),
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}

	return i
}

// Claims extracts the structured claims without verifying the signature.
// Extraction failures return an error rather than panicking so callers can
// distinguish "malformed token" from "valid but expired".
func (i *Inspector) Claims(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrCredentialMalformed.Clone()
	}

	claims := &Claims{}
	if _, _, err := i.parser.ParseUnverified(token, claims); err != nil {
		return nil, ErrCredentialMalformed.Clone().WithMetadata(map[string]any{
			"cause": err.Error(),
		})
	}

	return claims, nil
}

// IsStructurallyValid reports whether the token parses into a well-formed
// credential with a subject claim.
func (i *Inspector) IsStructurallyValid(token string) bool {
	claims, err := i.Claims(token)
	if err != nil {
		return false
	}
	return claims.UserID() != ""
}

// ExpiresAt returns the embedded expiry. The boolean is false when the token
// is malformed or carries no expiry claim.
func (i *Inspector) ExpiresAt(token string) (time.Time, bool) {
	claims, err := i.Claims(token)
	if err != nil {
		return time.Time{}, false
	}

	exp := claims.Expires()
	if exp.IsZero() {
		return time.Time{}, false
	}

	return exp, true
}

// IsExpired compares the embedded expiry against the clock. A token with no
// extractable expiry is treated as expired (fail-closed).
func (i *Inspector) IsExpired(token string) bool {
	exp, ok := i.ExpiresAt(token)
	if !ok {
		return true
	}
	return !exp.After(i.now())
}

// NeedsProactiveRefresh reports whether the token is valid but expires within
// threshold. Advisory only: it never triggers teardown and must not be
// confused with IsExpired.
func (i *Inspector) NeedsProactiveRefresh(token string, threshold time.Duration) bool {
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}

	exp, ok := i.ExpiresAt(token)
	if !ok {
		return false
	}

	now := i.now()
	if !exp.After(now) {
		return false
	}

	return exp.Sub(now) <= threshold
}
