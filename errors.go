package session

import (
	"errors"
	"fmt"
	"net"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes carried by the structured errors below, so telemetry and tests
// can match on failure class without string comparisons.
const (
	TextCodePersistence         = "PERSISTENCE_FAILED"
	TextCodeCredentialMalformed = "CREDENTIAL_MALFORMED"
	TextCodeCredentialExpired   = "CREDENTIAL_EXPIRED"
	TextCodeUnauthenticated     = "UNAUTHENTICATED"
	TextCodeNoConnectivity      = "NO_CONNECTIVITY"
	TextCodeCancelled           = "OPERATION_CANCELLED"
	TextCodeRetriesExhausted    = "RETRIES_EXHAUSTED"
	TextCodeServerRejected      = "SERVER_REJECTED"
	TextCodeUserRecordInvalid   = "USER_RECORD_INVALID"
)

// ErrPersistence is returned when a storage backend read or write fails.
// Teardown paths log it and keep going; login treats it as not durable.
var ErrPersistence = goerrors.New("credential storage failed", goerrors.CategoryInternal).
	WithTextCode(TextCodePersistence)

// ErrCredentialMalformed is returned for tokens that fail structural parsing.
// Malformed credentials are treated as absent (fail-closed).
var ErrCredentialMalformed = goerrors.New("credential is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeCredentialMalformed)

// ErrCredentialExpired is returned when a structurally valid credential is
// past its expiry. Detection triggers HandleExpiration, never silent reuse.
var ErrCredentialExpired = goerrors.New("credential is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeCredentialExpired)

// ErrUnauthenticated is returned by the dispatcher when no valid session
// exists before a call ever reaches the network.
var ErrUnauthenticated = goerrors.New("no authenticated session", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated)

// ErrNoConnectivity is returned when the connectivity wait timed out. It does
// not consume a retry attempt.
var ErrNoConnectivity = goerrors.New("no connectivity", goerrors.CategoryInternal).
	WithTextCode(TextCodeNoConnectivity)

// ErrCancelled is returned when an operation was superseded or its context
// was cancelled; no further retries or backoff sleeps happen after it.
var ErrCancelled = goerrors.New("operation cancelled", goerrors.CategoryConflict).
	WithTextCode(TextCodeCancelled)

// ErrRetriesExhausted wraps the last transient failure once maxAttempts is
// spent.
var ErrRetriesExhausted = goerrors.New("retries exhausted", goerrors.CategoryInternal).
	WithTextCode(TextCodeRetriesExhausted)

// ErrServerRejected is returned for a 401/403 backend response. It triggers
// HandleExpiration and is never retried.
var ErrServerRejected = goerrors.New("server rejected credential", goerrors.CategoryAuth).
	WithTextCode(TextCodeServerRejected)

// ErrUserRecordInvalid is returned when the user payload fails the strict
// schema at the deserialization boundary.
var ErrUserRecordInvalid = goerrors.New("user record is invalid", goerrors.CategoryValidation).
	WithTextCode(TextCodeUserRecordInvalid)

// HTTPStatusError surfaces a non-2xx backend status through the dispatcher's
// classification. The transport layer creates these; the dispatcher decides
// whether the status is an auth rejection or a transient failure.
type HTTPStatusError struct {
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d", e.Status)
}

// NewHTTPStatusError wraps a response status for dispatcher classification.
func NewHTTPStatusError(status int) *HTTPStatusError {
	return &HTTPStatusError{Status: status}
}

// IsAuthRejection reports whether err represents a 401/403 response or a
// structured server rejection, regardless of body content.
func IsAuthRejection(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status == 401 || statusErr.Status == 403
	}
	return hasTextCode(err, TextCodeServerRejected)
}

// IsCancelled reports whether err is a superseded or cancelled operation.
func IsCancelled(err error) bool {
	return hasTextCode(err, TextCodeCancelled)
}

// IsUnauthenticated reports whether err is the dispatcher's pre-network auth
// gate failure.
func IsUnauthenticated(err error) bool {
	return hasTextCode(err, TextCodeUnauthenticated)
}

// IsNoConnectivity reports whether err is a connectivity-wait timeout.
func IsNoConnectivity(err error) bool {
	return hasTextCode(err, TextCodeNoConnectivity)
}

// IsRetriesExhausted reports whether err is the terminal retry failure.
func IsRetriesExhausted(err error) bool {
	return hasTextCode(err, TextCodeRetriesExhausted)
}

// IsCredentialExpired reports whether err marks a detected expiry.
func IsCredentialExpired(err error) bool {
	return hasTextCode(err, TextCodeCredentialExpired)
}

// IsCredentialMalformed reports whether err marks a structurally invalid
// credential.
func IsCredentialMalformed(err error) bool {
	return hasTextCode(err, TextCodeCredentialMalformed)
}

// IsRetryable reports whether a failed attempt may be retried. Retry policy
// applies only to transient failures: auth rejections, cancellations, and
// client-side 4xx statuses are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsAuthRejection(err) || IsCancelled(err) || IsUnauthenticated(err) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Unclassified failures (connection resets, decode-before-body errors)
	// default to retryable; the attempt budget bounds the damage.
	return !hasTextCode(err, TextCodeUserRecordInvalid)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var structured *goerrors.Error
	if errors.As(err, &structured) {
		return structured.TextCode == code
	}
	return false
}
