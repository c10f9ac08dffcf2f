package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authstate"
	"github.com/MrEthical07/authstate/ratelimit"
)

func TestSecurityHeadersByProfile(t *testing.T) {
	tests := []struct {
		profile     string
		path        string
		tls         bool
		wantHSTS    string
		wantEnv     string
		wantCache   string
		wantCSPPart string
		wantCOOP    string
	}{
		{profile: ratelimit.ProfileHomelab, path: "/static/app.js", wantCache: "public, max-age=3600", wantCSPPart: "'unsafe-eval'"},
		{profile: ratelimit.ProfileHomelab, path: "/", tls: true, wantHSTS: "max-age=31536000; includeSubDomains"},
		{profile: ratelimit.ProfileDevelopment, path: "/", wantEnv: "development", wantCache: noStore},
		{profile: ratelimit.ProfileStaging, path: "/", wantHSTS: "max-age=86400; includeSubDomains", wantEnv: "staging", wantCache: noStore},
		{profile: ratelimit.ProfileProduction, path: "/api/items", wantHSTS: "max-age=31536000; includeSubDomains; preload", wantCache: noStore, wantCSPPart: "'strict-dynamic'", wantCOOP: "same-origin"},
		{profile: ratelimit.ProfileProduction, path: "/static/app.js", wantHSTS: "max-age=31536000; includeSubDomains; preload", wantCache: "public, max-age=31536000, immutable", wantCOOP: "same-origin"},
	}

	for _, tt := range tests {
		t.Run(tt.profile+tt.path, func(t *testing.T) {
			f := newFixture(t, func(cfg *authstate.Config) {
				cfg.RateLimit.Profile = tt.profile
			})
			h := SecurityHeaders(f.engine)(okHandler)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			rec := serve(h, req)
			got := rec.Header()

			if rec.Code != http.StatusOK {
				t.Fatalf("status=%d", rec.Code)
			}
			if got.Get("X-Content-Type-Options") != "nosniff" || got.Get("X-Frame-Options") != "DENY" {
				t.Fatalf("missing common headers: %v", got)
			}
			if !strings.Contains(got.Get("Permissions-Policy"), "camera=()") {
				t.Fatalf("unexpected Permissions-Policy %q", got.Get("Permissions-Policy"))
			}
			if v := got.Get("Strict-Transport-Security"); v != tt.wantHSTS {
				t.Fatalf("HSTS=%q want %q", v, tt.wantHSTS)
			}
			if v := got.Get("X-Environment"); v != tt.wantEnv {
				t.Fatalf("X-Environment=%q want %q", v, tt.wantEnv)
			}
			if v := got.Get("Cache-Control"); v != tt.wantCache {
				t.Fatalf("Cache-Control=%q want %q", v, tt.wantCache)
			}
			if tt.wantCache == noStore && got.Get("Pragma") != "no-cache" {
				t.Fatal("no-store responses should carry Pragma")
			}
			if tt.wantCSPPart != "" && !strings.Contains(got.Get("Content-Security-Policy"), tt.wantCSPPart) {
				t.Fatalf("CSP %q lacks %q", got.Get("Content-Security-Policy"), tt.wantCSPPart)
			}
			if v := got.Get("Cross-Origin-Opener-Policy"); v != tt.wantCOOP {
				t.Fatalf("COOP=%q want %q", v, tt.wantCOOP)
			}
		})
	}
}

func TestSecurityHeadersHandlerCanOverride(t *testing.T) {
	f := newFixture(t, nil)
	h := SecurityHeaders(f.engine)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.WriteHeader(http.StatusOK)
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get("X-Frame-Options"); got != "SAMEORIGIN" {
		t.Fatalf("X-Frame-Options=%q want handler override", got)
	}
}
