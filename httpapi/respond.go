package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	goTrust "github.com/MrEthical07/goTrust"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// RespondError maps engine errors to a status and an actionable message.
// Backend failures are reported opaquely.
func RespondError(w http.ResponseWriter, err error) {
	status, body := errorResponse(err)
	RespondJSON(w, status, body)
}

func errorResponse(err error) (int, errorBody) {
	switch {
	case errors.Is(err, goTrust.ErrChallengeAbsent):
		return http.StatusBadRequest, errorBody{"CHALLENGE_ABSENT", "No OTP is pending. Request a new one."}
	case errors.Is(err, goTrust.ErrChallengeExpired):
		return http.StatusGone, errorBody{"CHALLENGE_EXPIRED", "OTP expired or invalid. Request a new one."}
	case errors.Is(err, goTrust.ErrChallengeMismatch):
		return http.StatusUnauthorized, errorBody{"OTP_INVALID", "Invalid OTP"}
	case errors.Is(err, goTrust.ErrChallengeRateLimited):
		return http.StatusTooManyRequests, errorBody{"RATE_LIMITED", "Too many attempts. Try again later."}
	case errors.Is(err, goTrust.ErrNotificationDeliveryFailed):
		return http.StatusBadGateway, errorBody{"NOTIFICATION_FAILED", "The OTP could not be sent. Request a new one."}
	case errors.Is(err, goTrust.ErrContactMissing):
		return http.StatusUnprocessableEntity, errorBody{"CONTACT_MISSING", "No contact address is on file for this session."}
	case errors.Is(err, goTrust.ErrInvalidRequest):
		return http.StatusBadRequest, errorBody{"INVALID_REQUEST", "invalid request"}
	case errors.Is(err, goTrust.ErrTokenInvalid), errors.Is(err, goTrust.ErrSessionNotFound):
		return http.StatusUnauthorized, errorBody{"UNAUTHORIZED", "authentication required"}
	case errors.Is(err, goTrust.ErrSessionStoreUnavailable),
		errors.Is(err, goTrust.ErrContextStoreUnavailable),
		errors.Is(err, goTrust.ErrEngineNotReady):
		return http.StatusServiceUnavailable, errorBody{"SERVICE_UNAVAILABLE", "service unavailable"}
	default:
		return http.StatusInternalServerError, errorBody{"INTERNAL_ERROR", "internal server error"}
	}
}
