package session

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// SecureStore is the encrypted backing slot for the credential. Get reports
// absence through the boolean, never through an error.
type SecureStore interface {
	Set(key, value string) error
	Get(key string) (string, bool, error)
	Delete(key string) error
}

// Navigator performs the one navigation side effect this package owns: a full
// history reset to the unauthenticated entry point, optionally surfacing a
// human-readable reason.
type Navigator interface {
	ResetToLogin(reason string) error
}

// Prober answers a point-in-time reachability question for the Monitor.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProberFunc adapts a function into a Prober.
type ProberFunc func(ctx context.Context) bool

// Probe satisfies the Prober interface.
func (f ProberFunc) Probe(ctx context.Context) bool {
	if f == nil {
		return false
	}
	return f(ctx)
}

// Clock abstracts wall-clock reads so expiry checks are testable.
type Clock func() time.Time

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
