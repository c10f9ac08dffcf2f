package middleware

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	authstate "github.com/MrEthical07/authstate"
	"github.com/MrEthical07/authstate/ratelimit"
)

// maxRetryAfter caps the Retry-After header.
const maxRetryAfter = 300 * time.Second

// RateLimit admits or rejects each request through engine.AllowRequest.
// Requests carrying an API key are limited per key, others per client IP.
// Paths under Config.RateLimit.SkipPaths bypass the check. When the
// limiter backend fails the request is rejected with 503.
func RateLimit(engine *authstate.Engine) func(http.Handler) http.Handler {
	cfg := engine.Config()
	skip := cfg.RateLimit.SkipPaths
	trustProxy := cfg.Security.TrustProxyHeaders
	logger := engine.Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipPath(r.URL.Path, skip) {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r, trustProxy)
			ctx := authstate.WithClientIP(r.Context(), ip)

			d, err := engine.AllowRequest(ctx, ip, credential(r))
			switch {
			case errors.Is(err, authstate.ErrRateLimitDisabled):
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			case err != nil:
				logger.Error("rate limit check failed", slog.String("error", err.Error()))
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			writeRateLimitHeaders(w.Header(), d)
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.Info)))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeRateLimitHeaders(h http.Header, d ratelimit.Decision) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Info.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Info.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Info.ResetTime.Unix(), 10))
	h.Set("X-RateLimit-Window", strconv.Itoa(int(d.Info.Window/time.Second)))
	h.Set("X-RateLimit-Type", d.Rule)
}

// retryAfterSeconds rounds the time until the oldest counted request
// leaves the window up to whole seconds, within [1, 300]. Without that
// figure it falls back to the window length.
func retryAfterSeconds(info ratelimit.Info) int {
	wait := info.RetryAfter
	if wait <= 0 {
		wait = info.Window
	}
	if wait > maxRetryAfter {
		wait = maxRetryAfter
	}
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func skipPath(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}
