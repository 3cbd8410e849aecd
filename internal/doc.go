// Package internal contains helper utilities that are private to goTrust,
// including secure random generation and one-time code hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators for every Engine operation
//   - rate: Redis-backed step-up challenge throttles
//   - stores: expected-context persistence (Redis and PostgreSQL)
//
// # What this package must NOT do
//
//   - Export types that appear in the public goTrust API.
//   - Be imported by any package outside the goTrust module.
package internal
