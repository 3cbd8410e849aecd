// Package middleware adapts goTrust.Engine to net/http.
//
// # Guards
//
//   - [Guard] authenticates the bearer token, evaluates the request's risk and
//     redirects to the step-up challenge when the engine asks for it.
//   - [RequireSession] only authenticates. Use it on the challenge and logout
//     routes, which must stay reachable while a step-up is pending.
//
// Both guards inject an [Identity] into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Scoring, policy
// and session state all live in the engine.
package middleware
