// Package stores persists the expected context of each principal: the last
// observed address, client signature and coarse location.
//
// # Design
//
// There is at most one record per principal. [RedisContextStore] keeps it in
// a Redis hash and [PostgresContextStore] in the expected_contexts table.
// Both write only when no record exists or a field differs, in a single
// atomic step (a Lua script or one SQL statement), so concurrent upserts for
// the same principal resolve to last writer wins.
//
// # Architecture boundaries
//
// This package owns persistence for expected contexts. It does NOT score
// risk, compare observations for policy purposes, or resolve locations.
//
// # What this package must NOT do
//
//   - Import goTrust or any sibling internal package.
//   - Retain more than one context per principal.
package stores
