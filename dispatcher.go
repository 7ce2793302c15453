package session

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Retry defaults, overridable per dispatcher and per call.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
)

// Operation is a single outbound call. It must be safe to invoke more than
// once: the dispatcher re-runs it on transient failure.
type Operation func(ctx context.Context) error

// Dispatcher wraps outbound operations with connectivity awareness, bounded
// linear-backoff retry, cancellation, and the authentication gate. Transient
// failures never corrupt session state; auth failures tear the session down
// and are never retried.
type Dispatcher struct {
	monitor    *Monitor
	controller *Controller
	logger     Logger

	maxAttempts         int
	baseDelay           time.Duration
	connectivityTimeout time.Duration
	unauthorizedMessage string

	mu       sync.Mutex
	inflight map[string]*retryContext
}

// DispatcherOption customizes dispatcher construction.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger overrides the dispatcher logger.
func WithDispatcherLogger(logger Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithRetryDefaults overrides the dispatcher-wide attempt budget and backoff
// base.
func WithRetryDefaults(maxAttempts int, baseDelay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			d.baseDelay = baseDelay
		}
	}
}

// WithConnectivityTimeout overrides how long an attempt waits for
// connectivity before failing with NoConnectivity.
func WithConnectivityTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.connectivityTimeout = timeout
		}
	}
}

// WithUnauthorizedMessage sets the reason surfaced on the login screen when a
// call tears the session down.
func WithUnauthorizedMessage(message string) DispatcherOption {
	return func(d *Dispatcher) {
		if message != "" {
			d.unauthorizedMessage = message
		}
	}
}

// NewDispatcher wires the dispatcher with its collaborators. monitor and
// controller may be nil for callers that want bare retry semantics (tests,
// unauthenticated endpoints).
func NewDispatcher(monitor *Monitor, controller *Controller, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		monitor:             monitor,
		controller:          controller,
		logger:              defLogger{},
		maxAttempts:         DefaultMaxAttempts,
		baseDelay:           DefaultBaseDelay,
		connectivityTimeout: DefaultConnectivityTimeout,
		unauthorizedMessage: DefaultUnauthorizedMessage,
		inflight:            map[string]*retryContext{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	return d
}

// retryContext is the per-operation bookkeeping: attempt budget, backoff
// base, and the cancellation flag. Owned exclusively by one in-flight
// operation; superseding sets the flag and discards the owner's result.
type retryContext struct {
	id          string
	maxAttempts int
	baseDelay   time.Duration

	once sync.Once
	done chan struct{}
}

func newRetryContext(id string, maxAttempts int, baseDelay time.Duration) *retryContext {
	return &retryContext{
		id:          id,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		done:        make(chan struct{}),
	}
}

func (rc *retryContext) cancel() {
	rc.once.Do(func() { close(rc.done) })
}

func (rc *retryContext) cancelled() bool {
	select {
	case <-rc.done:
		return true
	default:
		return false
	}
}

type callOptions struct {
	maxAttempts int
	baseDelay   time.Duration
	operationID string
	supersede   bool
	timeout     time.Duration
	skipAuth    bool
}

// CallOption customizes a single Execute call.
type CallOption func(*callOptions)

// WithMaxAttempts overrides the attempt budget for this call.
func WithMaxAttempts(attempts int) CallOption {
	return func(o *callOptions) {
		if attempts > 0 {
			o.maxAttempts = attempts
		}
	}
}

// WithBaseDelay overrides the backoff base for this call.
func WithBaseDelay(delay time.Duration) CallOption {
	return func(o *callOptions) {
		if delay > 0 {
			o.baseDelay = delay
		}
	}
}

// WithOperationID names the operation so a later call can supersede it. Calls
// without an explicit id get a generated one and can never collide.
func WithOperationID(id string) CallOption {
	return func(o *callOptions) {
		o.operationID = id
	}
}

// WithSupersedePrevious cancels any in-flight operation sharing this call's
// operation id before this one starts.
func WithSupersedePrevious() CallOption {
	return func(o *callOptions) {
		o.supersede = true
	}
}

// WithoutCredential skips the pre-network credential check for this call.
// Login and other anonymous endpoints need this; everything else should not.
func WithoutCredential() CallOption {
	return func(o *callOptions) {
		o.skipAuth = true
	}
}

// WithCallTimeout bounds the whole Execute call, including connectivity waits
// and backoff sleeps.
func WithCallTimeout(timeout time.Duration) CallOption {
	return func(o *callOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// Execute runs op with the dispatcher's full policy:
//
//   - before each attempt: wait for connectivity (a timeout there fails with
//     NoConnectivity without consuming an attempt), then check the credential
//     (invalid or expired triggers HandleExpiration and fails with
//     Unauthenticated before the network is ever reached);
//   - transient failures back off linearly (baseDelay × attempt) and retry
//     until the budget is spent, then fail with RetriesExhausted wrapping the
//     last error;
//   - 401/403 responses trigger HandleExpiration and are not retried;
//   - a superseded or cancelled operation fails with Cancelled at the next
//     suspension point, with no further side effects.
//
// The dispatcher guarantees at most one non-cancelled operation per
// operation id at any time.
func (d *Dispatcher) Execute(ctx context.Context, op Operation, opts ...CallOption) error {
	options := &callOptions{
		maxAttempts: d.maxAttempts,
		baseDelay:   d.baseDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	if options.operationID == "" {
		options.operationID = uuid.NewString()
	}

	rc := newRetryContext(options.operationID, options.maxAttempts, options.baseDelay)
	d.register(rc, options.supersede)
	defer d.unregister(rc)

	if options.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= rc.maxAttempts; attempt++ {
		if rc.cancelled() {
			return d.cancelledErr(rc, attempt)
		}

		if d.monitor != nil && !d.monitor.Online() {
			if !d.monitor.WaitForConnectivity(ctx, d.connectivityTimeout) {
				return ErrNoConnectivity.Clone().WithMetadata(map[string]any{
					"operation_id": rc.id,
				})
			}
		}

		if !options.skipAuth {
			if err := d.authGate(ctx, rc); err != nil {
				return err
			}
		}

		err := op(ctx)
		if err == nil {
			// A superseded operation's result is discarded even when the
			// underlying call succeeded.
			if rc.cancelled() {
				return d.cancelledErr(rc, attempt)
			}
			return nil
		}

		if IsAuthRejection(err) {
			// A rejection on a credential-less call means the supplied
			// credentials were bad, not that the session died.
			if d.controller != nil && !options.skipAuth {
				d.controller.HandleExpiration(ctx, d.unauthorizedMessage)
			}
			return goerrors.Wrap(err, goerrors.CategoryAuth, "server rejected credential").
				WithTextCode(TextCodeServerRejected)
		}

		if rc.cancelled() {
			return d.cancelledErr(rc, attempt)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return goerrors.Wrap(ctxErr, goerrors.CategoryConflict, "operation cancelled").
				WithTextCode(TextCodeCancelled)
		}

		if !IsRetryable(err) {
			return err
		}

		lastErr = err
		d.logger.Debug("operation %s attempt %d/%d failed: %v", rc.id, attempt, rc.maxAttempts, err)

		if attempt == rc.maxAttempts {
			break
		}

		// Linear backoff keyed to attempt count. This is a deliberate,
		// simple policy, not exponential.
		if !d.sleep(ctx, rc, rc.baseDelay*time.Duration(attempt)) {
			return d.cancelledErr(rc, attempt)
		}
	}

	return goerrors.Wrap(lastErr, goerrors.CategoryInternal, "retries exhausted").
		WithTextCode(TextCodeRetriesExhausted).
		WithMetadata(map[string]any{
			"operation_id": rc.id,
			"attempts":     rc.maxAttempts,
		})
}

// Cancel sets the cancellation flag of the named in-flight operation. It
// reports whether such an operation existed.
func (d *Dispatcher) Cancel(operationID string) bool {
	d.mu.Lock()
	rc, ok := d.inflight[operationID]
	d.mu.Unlock()

	if ok {
		rc.cancel()
	}
	return ok
}

// authGate checks credential validity immediately before a network attempt.
// An expired or malformed credential tears the session down exactly once; a
// plainly absent session fails without teardown (there is nothing to tear).
func (d *Dispatcher) authGate(ctx context.Context, rc *retryContext) error {
	if d.controller == nil {
		return nil
	}

	_, err := d.controller.ValidCredential()
	if err == nil {
		return nil
	}

	if IsCredentialExpired(err) || IsCredentialMalformed(err) {
		d.controller.HandleExpiration(ctx, d.unauthorizedMessage)
	}

	return ErrUnauthenticated.Clone().WithMetadata(map[string]any{
		"operation_id": rc.id,
	})
}

func (d *Dispatcher) register(rc *retryContext, supersede bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.inflight[rc.id]; ok && supersede {
		prev.cancel()
	}
	d.inflight[rc.id] = rc
}

func (d *Dispatcher) unregister(rc *retryContext) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if current, ok := d.inflight[rc.id]; ok && current == rc {
		delete(d.inflight, rc.id)
	}
}

// sleep waits out a backoff delay, returning false when the operation was
// cancelled or the context expired during the wait.
func (d *Dispatcher) sleep(ctx context.Context, rc *retryContext, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-rc.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (d *Dispatcher) cancelledErr(rc *retryContext, attempt int) error {
	return ErrCancelled.Clone().WithMetadata(map[string]any{
		"operation_id": rc.id,
		"attempt":      attempt,
	})
}
