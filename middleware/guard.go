package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	goTrust "github.com/MrEthical07/goTrust"
)

type identityContextKey struct{}

// Identity is the authenticated caller of a guarded request.
type Identity struct {
	PrincipalID string
	SessionID   string
	// Decision is nil on routes guarded by RequireSession.
	Decision *goTrust.Decision
}

// IdentityFromContext returns the identity injected by a guard.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	return id, ok
}

// Options tunes request extraction.
type Options struct {
	// TrustForwardedFor takes the client address from the first
	// X-Forwarded-For entry. Enable only behind a proxy that sets it.
	TrustForwardedFor bool
	// CookieName is consulted for the access token when no Authorization
	// header is present.
	CookieName string
	// AllowAnonymous lets requests without a token through unevaluated
	// instead of answering 401.
	AllowAnonymous bool
}

// WarningHeader is set to "1" when the session is about to expire.
const WarningHeader = "X-Session-Warning"

// Guard evaluates every request against the trust engine.
func Guard(engine *goTrust.Engine, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ip := ClientIP(r, opts.TrustForwardedFor)
			ctx := goTrust.WithUserAgent(goTrust.WithClientIP(r.Context(), ip), r.UserAgent())

			token, ok := accessToken(r, opts.CookieName)
			if !ok {
				if !opts.AllowAnonymous {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				if _, err := engine.Evaluate(ctx, goTrust.EvaluateRequest{Path: r.URL.Path}); err != nil {
					writeEngineError(w, err)
					return
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			principalID, sessionID, err := engine.Authenticate(ctx, token)
			if err != nil {
				writeEngineError(w, err)
				return
			}

			decision, err := engine.Evaluate(ctx, goTrust.EvaluateRequest{
				PrincipalID:     principalID,
				SessionID:       sessionID,
				Address:         ip,
				ClientSignature: r.UserAgent(),
				Path:            requestPath(r),
				Authenticated:   true,
			})
			if err != nil {
				writeEngineError(w, err)
				return
			}

			if decision.Warning {
				w.Header().Set(WarningHeader, "1")
			}
			if decision.Action == goTrust.ActionRedirect {
				http.Redirect(w, r, decision.RedirectPath, http.StatusFound)
				return
			}

			ctx = context.WithValue(ctx, identityContextKey{}, &Identity{
				PrincipalID: principalID,
				SessionID:   sessionID,
				Decision:    decision,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the caller address without port.
func ClientIP(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requestPath keeps the query so a retry lands on the same resource.
func requestPath(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}

func accessToken(r *http.Request, cookieName string) (string, bool) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	if cookieName == "" {
		return "", false
	}
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, goTrust.ErrTokenInvalid),
		errors.Is(err, goTrust.ErrSessionNotFound),
		errors.Is(err, goTrust.ErrInvalidRequest):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, goTrust.ErrContextStoreUnavailable),
		errors.Is(err, goTrust.ErrSessionStoreUnavailable),
		errors.Is(err, goTrust.ErrEngineNotReady):
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
