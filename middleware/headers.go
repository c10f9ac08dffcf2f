package middleware

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/authstate"
	"github.com/MrEthical07/authstate/ratelimit"
)

const permissionsPolicy = "geolocation=(), camera=(), microphone=(), payment=(), usb=(), " +
	"magnetometer=(), accelerometer=(), gyroscope=()"

const noStore = "no-cache, no-store, must-revalidate"

// headerProfile is the fixed header set for one deployment profile.
type headerProfile struct {
	csp         string
	hsts        string
	hstsTLSOnly bool
	environment string
	extra       map[string]string
	// cache maps a path prefix to Cache-Control; "" is the fallback.
	cache map[string]string
}

var headerProfiles = map[string]headerProfile{
	ratelimit.ProfileHomelab: {
		csp: "default-src 'self'; script-src 'self' 'unsafe-inline' 'unsafe-eval'; " +
			"style-src 'self' 'unsafe-inline'; img-src 'self' data: blob:; connect-src 'self' ws: wss:; " +
			"font-src 'self'; object-src 'none'; media-src 'self'; frame-src 'none'",
		hsts:        "max-age=31536000; includeSubDomains",
		hstsTLSOnly: true,
		cache: map[string]string{
			"/static/": "public, max-age=3600",
			"/api/":    noStore,
		},
	},
	ratelimit.ProfileDevelopment: {
		csp: "default-src 'self' 'unsafe-inline' 'unsafe-eval'; connect-src 'self' ws: wss: http: https:; " +
			"img-src 'self' data: blob: http: https:; font-src 'self' data: http: https:; " +
			"style-src 'self' 'unsafe-inline' http: https:; script-src 'self' 'unsafe-inline' 'unsafe-eval' http: https:",
		environment: ratelimit.ProfileDevelopment,
		cache:       map[string]string{"": noStore},
	},
	ratelimit.ProfileStaging: {
		csp: "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data: blob:; connect-src 'self'; font-src 'self'; object-src 'none'; " +
			"media-src 'self'; frame-src 'none'",
		hsts:        "max-age=86400; includeSubDomains",
		environment: ratelimit.ProfileStaging,
		cache:       map[string]string{"": noStore},
	},
	ratelimit.ProfileProduction: {
		csp: "default-src 'self'; script-src 'self' 'strict-dynamic'; style-src 'self'; " +
			"img-src 'self' data: blob:; connect-src 'self'; font-src 'self'; object-src 'none'; " +
			"media-src 'self'; frame-src 'none'; base-uri 'self'; form-action 'self'",
		hsts: "max-age=31536000; includeSubDomains; preload",
		extra: map[string]string{
			"X-Permitted-Cross-Domain-Policies": "none",
			"Cross-Origin-Embedder-Policy":      "require-corp",
			"Cross-Origin-Opener-Policy":        "same-origin",
			"Cross-Origin-Resource-Policy":      "same-site",
		},
		cache: map[string]string{
			"/static/": "public, max-age=31536000, immutable",
			"/api/":    noStore,
		},
	},
}

// SecurityHeaders sets hardening response headers chosen by the engine's
// deployment profile (Config.RateLimit.Profile). Headers are written before
// the handler runs, so a handler may still override any of them.
func SecurityHeaders(engine *authstate.Engine) func(http.Handler) http.Handler {
	name := engine.Config().RateLimit.Profile
	if name == "" {
		name = ratelimit.ProfileHomelab
	}
	p, ok := headerProfiles[name]
	if !ok {
		p = headerProfiles[ratelimit.ProfileProduction]
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", permissionsPolicy)
			h.Set("Content-Security-Policy", p.csp)

			if p.hsts != "" && (!p.hstsTLSOnly || r.TLS != nil) {
				h.Set("Strict-Transport-Security", p.hsts)
			}
			if p.environment != "" {
				h.Set("X-Environment", p.environment)
			}
			for k, v := range p.extra {
				h.Set(k, v)
			}
			if cc := p.cacheControl(r.URL.Path); cc != "" {
				h.Set("Cache-Control", cc)
				if cc == noStore {
					h.Set("Pragma", "no-cache")
					h.Set("Expires", "0")
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (p headerProfile) cacheControl(path string) string {
	for prefix, v := range p.cache {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return v
		}
	}
	return p.cache[""]
}
