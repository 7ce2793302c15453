package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// bearerTransport attaches the current session credential to every outgoing
// request. It reads the controller snapshot per request, so a re-login is
// picked up without rebuilding the client.
type bearerTransport struct {
	base       http.RoundTripper
	controller *Controller
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.controller != nil {
		if current := t.controller.Current(); current != nil {
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+current.Token)
		}
	}

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// APIClient is the JSON transport over the dispatcher. Every call inherits
// the dispatcher's connectivity wait, retry budget, and auth gate; the client
// only builds requests and decodes responses.
type APIClient struct {
	baseURL    string
	client     *http.Client
	dispatcher *Dispatcher
	controller *Controller
	logger     Logger

	phoneRegion string
}

// APIClientOption customizes client construction.
type APIClientOption func(*APIClient)

// WithHTTPClient overrides the underlying http.Client. Its transport is
// wrapped so the bearer header is still attached.
func WithHTTPClient(client *http.Client) APIClientOption {
	return func(a *APIClient) {
		if client != nil {
			a.client = client
		}
	}
}

// WithAPILogger overrides the client logger.
func WithAPILogger(logger Logger) APIClientOption {
	return func(a *APIClient) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAPIPhoneRegion sets the region used to normalize phone numbers in
// decoded user payloads.
func WithAPIPhoneRegion(region string) APIClientOption {
	return func(a *APIClient) {
		if region != "" {
			a.phoneRegion = region
		}
	}
}

// NewAPIClient builds the transport around a base URL, the dispatcher, and
// the controller that owns the credential.
func NewAPIClient(baseURL string, dispatcher *Dispatcher, controller *Controller, opts ...APIClientOption) *APIClient {
	a := &APIClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: 30 * time.Second},
		dispatcher:  dispatcher,
		controller:  controller,
		logger:      defLogger{},
		phoneRegion: "US",
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	a.client = &http.Client{
		Timeout: a.client.Timeout,
		Transport: &bearerTransport{
			base:       a.client.Transport,
			controller: controller,
		},
	}

	return a
}

// DoJSON issues a JSON request through the dispatcher. body is marshaled once
// and replayed per attempt; a non-nil out receives the decoded 2xx response.
// Statuses become HTTPStatusError so the dispatcher can classify them: 5xx is
// transient, 401/403 tears the session down, other 4xx is terminal.
func (a *APIClient) DoJSON(ctx context.Context, method, path string, body, out any, opts ...CallOption) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryBadInput, "encode request body")
		}
	}

	url := a.baseURL + "/" + strings.TrimLeft(path, "/")

	return a.dispatcher.Execute(ctx, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryBadInput, "build request")
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return NewHTTPStatusError(resp.StatusCode)
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "decode response body")
		}
		return nil
	}, opts...)
}

// LoginRequest is the credential payload for the login endpoint.
type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user"`
}

// Login authenticates against the backend and, on success, installs the
// returned credential and user record through the controller. The user
// payload goes through the same strict schema as persisted records, so a
// malformed server response never reaches storage.
func (a *APIClient) Login(ctx context.Context, creds LoginRequest, opts ...CallOption) (*Session, error) {
	var resp loginResponse

	opts = append(opts, WithoutCredential())
	if err := a.DoJSON(ctx, http.MethodPost, "/auth/login", creds, &resp, opts...); err != nil {
		return nil, err
	}

	if resp.Token == "" {
		return nil, ErrCredentialMalformed.Clone().WithMetadata(map[string]any{
			"reason": "login response missing token",
		})
	}

	user, err := DecodeUser(resp.User, a.phoneRegion)
	if err != nil {
		return nil, err
	}

	if err := a.controller.Login(ctx, resp.Token, user); err != nil {
		return nil, err
	}

	return a.controller.Current(), nil
}

// Logout tells the backend to invalidate the credential, then tears the local
// session down regardless of the call's outcome. A dead backend must never
// keep a client signed in.
func (a *APIClient) Logout(ctx context.Context) {
	err := a.DoJSON(ctx, http.MethodPost, "/auth/logout", nil, nil, WithMaxAttempts(1))
	if err != nil && !IsUnauthenticated(err) {
		a.logger.Warn("backend logout failed, clearing local session anyway: %v", err)
	}
	a.controller.Logout(ctx)
}

// Profile fetches the caller's user record and persists it through the
// controller, keeping memory and storage in step.
func (a *APIClient) Profile(ctx context.Context, opts ...CallOption) (*User, error) {
	var raw json.RawMessage
	if err := a.DoJSON(ctx, http.MethodGet, "/users/me", nil, &raw, opts...); err != nil {
		return nil, err
	}

	user, err := DecodeUser(raw, a.phoneRegion)
	if err != nil {
		return nil, err
	}

	if err := a.controller.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
