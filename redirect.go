package session

import "sync/atomic"

// RedirectGate ensures a single, idempotent transition to the unauthenticated
// entry point. Concurrent teardown paths race on the latch; exactly one wins
// and performs the navigation reset, the rest no-op.
type RedirectGate struct {
	nav        Navigator
	inProgress atomic.Bool
	logger     Logger
}

// RedirectGateOption customizes gate construction.
type RedirectGateOption func(*RedirectGate)

// WithRedirectLogger overrides the gate logger.
func WithRedirectLogger(logger Logger) RedirectGateOption {
	return func(g *RedirectGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewRedirectGate wraps the navigator with the redirect-in-progress latch.
func NewRedirectGate(nav Navigator, opts ...RedirectGateOption) *RedirectGate {
	gate := &RedirectGate{
		nav:    nav,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(gate)
		}
	}

	return gate
}

// RequestRedirect performs the navigation reset unless one is already in
// flight. It returns whether this call actually performed the redirect. The
// latch is released on every exit path, including navigator failure.
func (g *RedirectGate) RequestRedirect(reason string) bool {
	if !g.inProgress.CompareAndSwap(false, true) {
		return false
	}
	defer g.inProgress.Store(false)

	if g.nav == nil {
		g.logger.Warn("redirect requested with no navigator configured")
		return true
	}

	if err := g.nav.ResetToLogin(reason); err != nil {
		g.logger.Error("navigation reset failed: %v", err)
	}

	return true
}
