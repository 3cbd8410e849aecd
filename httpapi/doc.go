// Package httpapi serves the step-up challenge over HTTP.
//
// Routes (chi):
//
//	GET  /reauthenticate   begin or reuse a challenge
//	POST /reauthenticate   action=resend, or otp=<code> to verify
//	POST /logout           end the session
//	GET  /healthz          backend reachability
//
// The challenge and logout routes authenticate the access token but are never
// risk-evaluated, so a pending step-up cannot lock the caller out of them.
package httpapi
