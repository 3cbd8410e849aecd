// Package rate provides Redis-backed fixed-window throttles for the step-up
// challenge endpoints.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys live
// under Config.KeyPrefix ("tr" by default):
//   - "<prefix>:r:<session>" for challenge resends
//   - "<prefix>:v:<session>" for failed challenge verifications
//
// # What this package must NOT do
//
//   - Touch the pending challenge stored in the session.
//   - Be imported outside the goTrust module.
package rate
