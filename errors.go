package goTrust

import "errors"

var (
	// ErrContextStoreUnavailable is an exported constant or variable used by the trust engine.
	ErrContextStoreUnavailable = errors.New("context store unavailable")
	// ErrSessionStoreUnavailable is an exported constant or variable used by the trust engine.
	ErrSessionStoreUnavailable = errors.New("session store unavailable")
	// ErrSessionNotFound is an exported constant or variable used by the trust engine.
	ErrSessionNotFound = errors.New("session not found")
	// ErrChallengeAbsent is an exported constant or variable used by the trust engine.
	ErrChallengeAbsent = errors.New("no challenge pending")
	// ErrChallengeExpired is an exported constant or variable used by the trust engine.
	ErrChallengeExpired = errors.New("challenge expired")
	// ErrChallengeMismatch is an exported constant or variable used by the trust engine.
	ErrChallengeMismatch = errors.New("challenge code mismatch")
	// ErrChallengeRateLimited is an exported constant or variable used by the trust engine.
	ErrChallengeRateLimited = errors.New("challenge rate limited")
	// ErrNotificationDeliveryFailed is an exported constant or variable used by the trust engine.
	ErrNotificationDeliveryFailed = errors.New("notification delivery failed")
	// ErrContactMissing is an exported constant or variable used by the trust engine.
	ErrContactMissing = errors.New("session has no contact address")
	// ErrTokenInvalid is an exported constant or variable used by the trust engine.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrEngineNotReady is an exported constant or variable used by the trust engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidRequest is an exported constant or variable used by the trust engine.
	ErrInvalidRequest = errors.New("invalid request")
)
