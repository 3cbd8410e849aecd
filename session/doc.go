// Package session provides Redis-backed persistence for per-login trust state
// and the compact binary record it is stored as.
//
// # Binary encoding
//
// Sessions are stored as a versioned binary record. Version 1 predates the
// step-up pending flag; it still decodes, with that flag unset. New versions
// append fields and never reinterpret old ones.
//
// # Expiry
//
// Every write sets the Redis key TTL from the session's ExpiresAt, so the
// record disappears on its own when the expiry clock runs out. Reads treat an
// elapsed ExpiresAt as not found even if the key is still present.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model.
// It does not score risk or pick a policy tier; the engine does that and
// writes the outcome through [Store.Mutate].
//
// # What this package must NOT do
//
//   - Import goTrust or jwt (no upward imports).
//   - Store a plaintext one-time code in a [Session].
package session
