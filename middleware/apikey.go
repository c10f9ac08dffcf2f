package middleware

import (
	"context"
	"log/slog"
	"net/http"

	authstate "github.com/MrEthical07/authstate"
)

type apiKeyResultContextKey struct{}

// APIKeyResultFromContext returns the successful Result stored by
// RequireAPIKey. Result.APIKey and Result.User are set.
func APIKeyResultFromContext(ctx context.Context) (*authstate.Result, bool) {
	res, ok := ctx.Value(apiKeyResultContextKey{}).(*authstate.Result)
	return res, ok && res != nil
}

// RequireAPIKey authenticates the X-API-Key header, or a Bearer token when
// that header is absent. Missing or rejected credentials get 401.
func RequireAPIKey(engine *authstate.Engine) func(http.Handler) http.Handler {
	trustProxy := engine.Config().Security.TrustProxyHeaders
	logger := engine.Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := credential(r)
			if key == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ip := ClientIP(r, trustProxy)
			ctx := authstate.WithUserAgent(authstate.WithClientIP(r.Context(), ip), r.UserAgent())

			res, err := engine.AuthenticateAPIKey(ctx, key, ip)
			if err != nil {
				logger.Error("api key authentication failed", slog.String("error", err.Error()))
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			if !res.Success {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, apiKeyResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
