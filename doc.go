// Package auth implements the credential and session lifecycle for
// lumastream products: password hashing and verification, JWT issuance with
// separate access and refresh secrets, a persistent session registry that is
// the single authority on revocation, attempt rate limiting, and append-only
// security auditing.
//
// Orchestration:
//   - Auther composes the leaf services into the four operations Register,
//     Login, Refresh, and Logout. Requests pass the rate limiter first, then
//     credentials, then token issuance, then session persistence, then audit.
//   - External collaborators (customer records, welcome email, the vault
//     session service) are best-effort: each call runs under a bounded
//     timeout and a failure degrades the response instead of aborting it.
//
// Sessions:
//   - Session rows bind an issued token to a user and an opaque vault
//     handle. Reads filter on expiry, so an expired row behaves exactly like
//     a missing one. Refresh rotates rows rather than extending them.
//
// Auditing:
//   - AuditSink consumes registration, login, and logout events best-effort;
//     a sink failure is logged and never fails the surrounding operation.
package auth
