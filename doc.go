// Package account orchestrates account provisioning and the process-wide
// session lifecycle against a remote identity provider and a multi-tenant
// resource store.
//
// Session lifecycle:
//   - Manager owns the authoritative Session for the process. It hydrates
//     from a SessionStore at startup, exposes SignIn/SignUp/SignOut, and
//     consumes the identity provider's event channel so that externally
//     observed changes (token refresh, sign-out elsewhere) win over stale
//     local calls. Every mutation carries a monotonic sequence number and
//     the last writer by sequence, not by arrival, determines state.
//   - Lifecycle centralizes the phase transition graph (uninitialized,
//     loading, authenticated, unauthenticated) so every consumer observes
//     the same invariants.
//
// Provisioning:
//   - Provisioner runs the signup saga: create identity, acquire tokens,
//     create tenant, create profile, establish session. Steps are strictly
//     sequential, each bounded by a timeout, and the first failure aborts
//     the run with a step-tagged error. There is no compensation; the step
//     log and tenant idempotency key make partial failures diagnosable and
//     step three safely retryable.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter describing sign-in,
//     sign-up step progress, sign-out, and token refresh events. Sinks run
//     best-effort (errors are logged) so you can forward to a database or
//     queue without blocking authentication.
package account
