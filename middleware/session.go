package middleware

import (
	"context"
	"net/http"

	goTrust "github.com/MrEthical07/goTrust"
)

// RequireSession authenticates the access token without evaluating risk.
func RequireSession(engine *goTrust.Engine, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := goTrust.WithUserAgent(goTrust.WithClientIP(r.Context(), ClientIP(r, opts.TrustForwardedFor)), r.UserAgent())

			token, ok := accessToken(r, opts.CookieName)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			principalID, sessionID, err := engine.Authenticate(ctx, token)
			if err != nil {
				writeEngineError(w, err)
				return
			}

			ctx = context.WithValue(ctx, identityContextKey{}, &Identity{
				PrincipalID: principalID,
				SessionID:   sessionID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
