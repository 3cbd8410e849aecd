package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	goTrust "github.com/MrEthical07/goTrust"
	"github.com/MrEthical07/goTrust/middleware"
	"github.com/go-chi/chi/v5"
)

// Options configures [NewRouter].
type Options struct {
	Guard  middleware.Options
	Logger *slog.Logger
}

// Handler serves the challenge endpoints for one engine.
type Handler struct {
	engine *goTrust.Engine
	logger *slog.Logger
	opts   Options
}

// NewHandler returns a handler. A nil logger discards output.
func NewHandler(engine *goTrust.Engine, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{engine: engine, logger: logger, opts: opts}
}

// NewRouter returns a chi router with the challenge surface mounted at the
// engine's configured challenge path.
func NewRouter(engine *goTrust.Engine, opts Options) chi.Router {
	h := NewHandler(engine, opts)

	r := chi.NewRouter()
	r.Use(Recovery(h.logger))
	r.Use(RequestID)
	r.Use(RequestLogger(h.logger))

	r.Get("/healthz", h.Health)
	h.Mount(r)
	return r
}

// Mount registers the session-authenticated routes on r.
func (h *Handler) Mount(r chi.Router) {
	challengePath := h.engine.Config().Challenge.ChallengePath
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(h.engine, h.opts.Guard))
		r.Get(challengePath, h.BeginChallenge)
		r.Post(challengePath, h.SubmitChallenge)
		r.Post("/logout", h.Logout)
	})
}

type challengeResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
	Delivered bool      `json:"delivered"`
	Reused    bool      `json:"reused"`
	Warning   bool      `json:"warning"`
	Message   string    `json:"message,omitempty"`
}

type sessionResponse struct {
	SessionID   string    `json:"session_id"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type challengeForm struct {
	Action string `json:"action"`
	OTP    string `json:"otp"`
}

// BeginChallenge handles GET on the challenge path.
func (h *Handler) BeginChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		RespondError(w, goTrust.ErrSessionNotFound)
		return
	}

	res, err := h.engine.BeginChallenge(r.Context(), id.SessionID)
	if err != nil {
		h.logger.Warn("begin challenge failed", "request_id", GetRequestID(r.Context()), "error", err)
		RespondError(w, err)
		return
	}

	msg := ""
	if res.Delivered {
		msg = "A new OTP has been sent to your email."
	}
	RespondJSON(w, http.StatusOK, challengeResponse{
		ExpiresAt: res.ExpiresAt,
		Delivered: res.Delivered,
		Reused:    res.Reused,
		Warning:   res.Warning,
		Message:   msg,
	})
}

// SubmitChallenge handles POST on the challenge path: a resend request or
// an OTP submission.
func (h *Handler) SubmitChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		RespondError(w, goTrust.ErrSessionNotFound)
		return
	}

	form, err := decodeChallengeForm(r)
	if err != nil {
		RespondJSON(w, http.StatusBadRequest, errorBody{"INVALID_REQUEST", "malformed request body"})
		return
	}

	if form.Action == "resend" {
		res, err := h.engine.ResendChallenge(r.Context(), id.SessionID)
		if err != nil {
			h.logger.Warn("resend challenge failed", "request_id", GetRequestID(r.Context()), "error", err)
			RespondError(w, err)
			return
		}
		RespondJSON(w, http.StatusOK, challengeResponse{
			ExpiresAt: res.ExpiresAt,
			Delivered: res.Delivered,
			Warning:   res.Warning,
			Message:   "A new OTP has been sent to your email.",
		})
		return
	}

	code := strings.TrimSpace(form.OTP)
	if code == "" {
		RespondJSON(w, http.StatusBadRequest, errorBody{"OTP_REQUIRED", "OTP required"})
		return
	}

	res, err := h.engine.VerifyChallenge(r.Context(), id.SessionID, code)
	if err != nil {
		RespondError(w, err)
		return
	}
	http.Redirect(w, r, res.RedirectPath, http.StatusSeeOther)
}

// Logout handles POST /logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		RespondError(w, goTrust.ErrSessionNotFound)
		return
	}
	if err := h.engine.Logout(r.Context(), id.SessionID); err != nil {
		RespondError(w, err)
		return
	}
	if name := h.opts.Guard.CookieName; name != "" {
		http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	}
	RespondJSON(w, http.StatusOK, map[string]string{"message": "You have been logged out"})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.Health(r.Context())
	body := map[string]interface{}{
		"session_store": status.SessionStoreOK,
		"context_store": status.ContextStoreOK,
		"latency_ms":    status.Latency.Milliseconds(),
	}
	if err != nil {
		h.logger.Warn("health check failed", "error", err)
		RespondJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	RespondJSON(w, http.StatusOK, body)
}

// IssueSession starts a session for a principal the host has just logged in
// and writes the handle as JSON. When a cookie name is configured the access
// token is also set as an HttpOnly cookie.
func (h *Handler) IssueSession(w http.ResponseWriter, r *http.Request, principalID, contact string) {
	handle, err := h.engine.StartSession(r.Context(), principalID, contact)
	if err != nil {
		RespondError(w, err)
		return
	}
	if name := h.opts.Guard.CookieName; name != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    handle.AccessToken,
			Path:     "/",
			Expires:  handle.ExpiresAt,
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}
	RespondJSON(w, http.StatusCreated, sessionResponse{
		SessionID:   handle.SessionID,
		AccessToken: handle.AccessToken,
		ExpiresAt:   handle.ExpiresAt,
	})
}

func decodeChallengeForm(r *http.Request) (challengeForm, error) {
	var form challengeForm
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&form); err != nil && !errors.Is(err, io.EOF) {
			return form, err
		}
		return form, nil
	}
	if err := r.ParseForm(); err != nil {
		return form, err
	}
	form.Action = r.PostForm.Get("action")
	form.OTP = r.PostForm.Get("otp")
	return form, nil
}
