// Package kyc gates access to verified-only capabilities on the outcome of a
// third-party identity verification (KYC) flow whose results arrive as signed
// webhook events.
//
// Verification lifecycle:
//   - Users carry a KYCStatus persisted via Bun: unverified, pending, verified,
//     failed and canceled. StartVerificationHandler asks the IdentityProvider
//     for a hosted session, stores the opaque session id against the user and
//     moves the user to pending.
//   - The provider reports outcomes through webhooks. WebhookProcessor runs the
//     EventAuthenticator (HMAC over the raw body plus a freshness window), then
//     claims the event id through the ProcessedEvents table and hands the
//     event to the TransitionEngine inside the same transaction.
//   - TransitionEngine applies a precondition table keyed by EventKind. Every
//     write is a compare-and-set on the current status so concurrent or stale
//     deliveries resolve through the table instead of last-write-wins.
//     Verified is absorbing.
//
// Access gate:
//   - RequireVerified is a pure predicate; VerificationGate wraps it as
//     go-router middleware that reloads the user on every request.
//     RegisterKYCRoutes mounts the endpoints on any router.Router, such as
//     the fiber adapter.
//
// Schema:
//   - Migrate registers the embedded per-dialect migrations with a
//     go-persistence-bun client and applies them.
//
// Activity sinks:
//   - ActivitySink receives session, transition and dedup events. Sinks run
//     best-effort (errors are logged) so they can forward to a queue without
//     failing webhook deliveries.
package kyc
