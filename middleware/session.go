package middleware

import (
	"context"
	"net/http"

	authstate "github.com/MrEthical07/authstate"
	"github.com/MrEthical07/authstate/session"
)

type sessionContextKey struct{}

// SessionFromContext returns the session stored by RequireSession.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return s, ok && s != nil
}

// RequireSession reads the Config.Session.CookieName cookie and rejects the
// request with 401 unless it names a live session.
func RequireSession(engine *authstate.Engine) func(http.Handler) http.Handler {
	cookieName := engine.Config().Session.CookieName

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			s, err := engine.ValidateSession(r.Context(), cookie.Value)
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			if s == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCSRF checks the X-CSRF-Token header against the session's token
// on POST, PUT, PATCH and DELETE. It must run after RequireSession; without
// a session in the context the request is rejected with 401.
func RequireCSRF(engine *authstate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if safeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			s, ok := SessionFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			valid, err := engine.ValidateCSRF(r.Context(), s.ID, r.Header.Get(HeaderCSRFToken))
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			if !valid {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
