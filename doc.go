// Package goTrust provides an adaptive session-trust engine. Each
// authenticated request is compared with the context last observed for its
// principal (address, client signature and coarse location), scored, and
// mapped to a session lifetime. High-risk requests are redirected to an
// emailed one-time-code step-up before they may continue.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goTrust is the public surface. It exposes [Engine], [Builder], [Config],
// [RiskScorer], [SessionPolicy] and value types such as [Decision] and
// [SessionInfo]. Flow orchestration, session encoding, throttling, context
// persistence and audit dispatch live under internal/ and are never exported.
// HTTP integration lives in the middleware and httpapi packages.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Store or return a one-time code in plaintext after it has been sent.
//   - Import any sub-package that re-imports goTrust (no import cycles).
//
// # Performance contract
//
// Evaluate is the hot path. Unauthenticated requests pass through without
// any store round-trip. An authenticated request costs one context read, at
// most one context write and one session transaction.
package goTrust
