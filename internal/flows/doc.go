// Package flows contains function orchestrators for every Engine operation.
//
// Each flow function (RunEvaluate, RunVerifyChallenge, RunLogout, etc.) accepts
// a typed dependency struct and returns results without side-effects beyond
// those dependencies. Flows can be tested exhaustively with fake dependencies
// and the Engine type stays thin.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session store, context store, geo
// resolver, notifier, rate limiter, audit dispatcher and metrics. They do NOT
// own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goTrust (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency funcs.
package flows
