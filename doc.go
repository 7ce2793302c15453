// Package session owns the authenticated-session lifecycle for a mobile
// client of the job marketplace backend: credential persistence and legacy
// migration, offline token inspection, the session state machine, connectivity
// tracking, and a resilient dispatcher that wraps every outbound call.
//
// Session lifecycle:
//   - Controller holds the single in-memory Session (credential + user) and
//     serializes every transition. A Session is either fully present or fully
//     absent; callers never observe a credential without its user record.
//   - Forced teardown (detected expiry, 401/403 from the backend) and
//     user-initiated logout both clear storage and converge on the
//     RedirectGate, which guarantees a single navigation reset per episode.
//
// Dispatch:
//   - Dispatcher gates each attempt on credential validity and connectivity,
//     retries transient failures with linear backoff, and supports
//     supersede-by-operation-id cancellation. Auth rejections are never
//     retried; they tear the session down instead.
//
// Event sinks:
//   - EventSink is a light-weight telemetry emitter describing login, logout,
//     forced-logout, expiration, and migration events. Sinks run best-effort
//     (errors are logged) so they never block a teardown.
package session
