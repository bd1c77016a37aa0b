// Package auth provides stateless token authentication and role-based
// authorisation.
//
// The pieces, leaves first:
//   - RecordStore: security records (hash, role, lockout state, token version),
//     with MemoryStore and SQLRecordRepository implementations
//   - Guard: password verification with a failed-attempt lockout
//   - TokenEngine: signed access and refresh JWTs (HMAC-SHA2)
//   - Gate: bearer token to Identity, cross-checked against the live record
//   - Policy: ordered path rules mapping routes to the roles they accept
//
// Service ties them into the account lifecycle (signup, login, refresh,
// logout everywhere, administrative actions).
//
// Revocation is by token version: every record carries a counter that is
// embedded in each token at issuance. Bumping the counter invalidates every
// earlier token on its next use. The gate re-reads the record on every
// request unless a RecordCache is configured, in which case revocation by
// another instance is visible after at most the cache TTL.
//
// Roles form a closed set with a partial order: ADMIN satisfies MANAGER and
// USER requirements, MANAGER satisfies USER.
package auth
