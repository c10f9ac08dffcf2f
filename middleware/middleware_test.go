package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	authstate "github.com/MrEthical07/authstate"
	"github.com/MrEthical07/authstate/clock"
	"github.com/MrEthical07/authstate/logging"
	"github.com/MrEthical07/authstate/password"
	"github.com/MrEthical07/authstate/ratelimit"
)

const testPassword = "correct horse battery staple"

type staticUsers struct {
	mu    sync.Mutex
	users map[string]authstate.User
}

func (s *staticUsers) GetUserByUsername(_ context.Context, username string) (*authstate.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			out := u
			return &out, nil
		}
	}
	return nil, nil
}

func (s *staticUsers) GetUserByID(_ context.Context, id string) (*authstate.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *staticUsers) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	u.PasswordHash = hash
	s.users[id] = u
	return nil
}

type fixture struct {
	engine *authstate.Engine
	clock  *clock.Fake
}

func newFixture(t *testing.T, mutate func(*authstate.Config)) *fixture {
	t.Helper()

	hasher, err := password.NewArgon2(password.Config{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	digest, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	users := &staticUsers{users: map[string]authstate.User{
		"u-1": {ID: "u-1", Username: "alice", PasswordHash: digest, IsActive: true},
	}}

	cfg := authstate.DefaultConfig()
	cfg.APIKey.Secret = strings.Repeat("k", 32)
	cfg.RateLimit.Burst = ratelimit.Policy{MaxRequests: 2, Window: time.Minute}
	cfg.RateLimit.IP = ratelimit.Policy{MaxRequests: 100, Window: time.Hour}
	if mutate != nil {
		mutate(&cfg)
	}

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	engine, err := authstate.New().
		WithConfig(cfg).
		WithUserProvider(users).
		WithPasswordHasher(hasher).
		WithClock(clk).
		WithLogger(logging.Discard()).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return &fixture{engine: engine, clock: clk}
}

func (f *fixture) login(t *testing.T) *authstate.Result {
	t.Helper()
	res, err := f.engine.Authenticate(context.Background(), authstate.LoginRequest{
		Username:  "alice",
		Password:  testPassword,
		IPAddress: "192.0.2.1",
	})
	if err != nil || !res.Success {
		t.Fatalf("login failed: %v %+v", err, res)
	}
	return res
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitHeadersAndRejection(t *testing.T) {
	f := newFixture(t, nil)
	h := RateLimit(f.engine)(okHandler)

	for i := 0; i < 2; i++ {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/items", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got == "" {
			t.Fatalf("request %d: missing X-RateLimit-Limit", i)
		}
		if got := rec.Header().Get("X-RateLimit-Type"); got != authstate.RuleBurst {
			t.Fatalf("request %d: expected tightest rule %q, got %q", i, authstate.RuleBurst, got)
		}
	}

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/items", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After 60, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Window"); got != "60" {
		t.Fatalf("expected window 60, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected remaining 0, got %q", got)
	}
	wantReset := f.clock.Now().Add(time.Minute).Unix()
	if got := rec.Header().Get("X-RateLimit-Reset"); got != strconv.FormatInt(wantReset, 10) {
		t.Fatalf("expected reset %d, got %q", wantReset, got)
	}

	f.clock.Advance(61 * time.Second)
	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/items", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected quota to recover after the window, got %d", rec.Code)
	}
}

func TestRateLimitSkipPaths(t *testing.T) {
	f := newFixture(t, nil)
	h := RateLimit(f.engine)(okHandler)

	for i := 0; i < 5; i++ {
		for _, path := range []string{"/healthz", "/static/app.js"} {
			rec := serve(h, httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("%s: expected skip, got %d", path, rec.Code)
			}
			if rec.Header().Get("X-RateLimit-Limit") != "" {
				t.Fatalf("%s: skipped path should not carry rate limit headers", path)
			}
		}
	}

	// exact entries do not match as prefixes
	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/healthzz", nil)); rec.Header().Get("X-RateLimit-Limit") == "" {
		t.Fatal("expected /healthzz to be limited")
	}
}

func TestRateLimitKeysAPIKeySeparately(t *testing.T) {
	f := newFixture(t, func(cfg *authstate.Config) {
		cfg.RateLimit.Burst = ratelimit.Policy{MaxRequests: 100, Window: time.Minute}
		cfg.RateLimit.IP = ratelimit.Policy{MaxRequests: 1, Window: time.Hour}
		cfg.RateLimit.APIKey = ratelimit.Policy{MaxRequests: 5, Window: time.Hour}
	})
	h := RateLimit(f.engine)(okHandler)

	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected first IP request admitted, got %d", rec.Code)
	}
	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second IP request rejected, got %d", rec.Code)
	} else if got := rec.Header().Get("X-RateLimit-Type"); got != authstate.RuleIP {
		t.Fatalf("expected rule %q, got %q", authstate.RuleIP, got)
	} else if got := rec.Header().Get("Retry-After"); got != "300" {
		t.Fatalf("expected Retry-After capped at 300, got %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderAPIKey, "sk_harbor_whatever0123456789abcdef")
	rec := serve(h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected API key request to use its own quota, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("expected api key limit 5, got %q", got)
	}

	junk := httptest.NewRequest(http.MethodGet, "/", nil)
	junk.Header.Set(HeaderAPIKey, "not-a-key")
	if rec := serve(h, junk); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected malformed key to stay on the IP quota, got %d", rec.Code)
	}
}

func TestRateLimitProxyHeadersTrustedOnlyWhenConfigured(t *testing.T) {
	for _, trust := range []bool{false, true} {
		f := newFixture(t, func(cfg *authstate.Config) {
			cfg.Security.TrustProxyHeaders = trust
			cfg.RateLimit.Burst = ratelimit.Policy{MaxRequests: 100, Window: time.Minute}
			cfg.RateLimit.IP = ratelimit.Policy{MaxRequests: 1, Window: time.Hour}
		})
		h := RateLimit(f.engine)(okHandler)

		first := httptest.NewRequest(http.MethodGet, "/", nil)
		first.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		second := httptest.NewRequest(http.MethodGet, "/", nil)
		second.Header.Set("X-Forwarded-For", "203.0.113.8")

		serve(h, first)
		rec := serve(h, second)

		// Same RemoteAddr: distinct forwarded addresses only help when trusted.
		want := http.StatusTooManyRequests
		if trust {
			want = http.StatusOK
		}
		if rec.Code != want {
			t.Fatalf("trust=%v: expected %d, got %d", trust, want, rec.Code)
		}
	}
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	f := newFixture(t, func(cfg *authstate.Config) { cfg.RateLimit.Enabled = false })
	h := RateLimit(f.engine)(okHandler)

	for i := 0; i < 10; i++ {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK || rec.Header().Get("X-RateLimit-Limit") != "" {
			t.Fatalf("expected untouched pass-through, got %d %v", rec.Code, rec.Header())
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	req.Header.Set("X-Real-IP", "203.0.113.9")

	if got := ClientIP(req, false); got != "198.51.100.4" {
		t.Fatalf("expected remote addr, got %q", got)
	}
	if got := ClientIP(req, true); got != "203.0.113.9" {
		t.Fatalf("expected X-Real-IP, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", " 203.0.113.1 , 10.0.0.2")
	if got := ClientIP(req, true); got != "203.0.113.1" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}

func TestRequireSession(t *testing.T) {
	f := newFixture(t, nil)
	res := f.login(t)

	var seen string
	h := RequireSession(f.engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := SessionFromContext(r.Context())
		if !ok {
			t.Fatal("session missing from context")
		}
		seen = s.UserID
	}))

	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookie, got %d", rec.Code)
	}

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.AddCookie(&http.Cookie{Name: "session_id", Value: "not-a-session"})
	if rec := serve(h, bad); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown session, got %d", rec.Code)
	}

	good := httptest.NewRequest(http.MethodGet, "/", nil)
	good.AddCookie(&http.Cookie{Name: "session_id", Value: res.Session.ID})
	if rec := serve(h, good); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen != "u-1" {
		t.Fatalf("expected user u-1 in context, got %q", seen)
	}

	if _, err := f.engine.Logout(context.Background(), res.Session.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	after := httptest.NewRequest(http.MethodGet, "/", nil)
	after.AddCookie(&http.Cookie{Name: "session_id", Value: res.Session.ID})
	if rec := serve(h, after); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestRequireCSRF(t *testing.T) {
	f := newFixture(t, nil)
	res := f.login(t)
	h := RequireSession(f.engine)(RequireCSRF(f.engine)(okHandler))

	newReq := func(method, token string) *http.Request {
		req := httptest.NewRequest(method, "/", nil)
		req.AddCookie(&http.Cookie{Name: "session_id", Value: res.Session.ID})
		if token != "" {
			req.Header.Set(HeaderCSRFToken, token)
		}
		return req
	}

	cases := []struct {
		name   string
		method string
		token  string
		want   int
	}{
		{"safe method skips check", http.MethodGet, "", http.StatusOK},
		{"missing token", http.MethodPost, "", http.StatusForbidden},
		{"wrong token", http.MethodDelete, "nope", http.StatusForbidden},
		{"valid token", http.MethodPost, res.Session.CSRFToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := serve(h, newReq(tc.method, tc.token)); rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}

	bare := RequireCSRF(f.engine)(okHandler)
	if rec := serve(bare, httptest.NewRequest(http.MethodPost, "/", nil)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session in context, got %d", rec.Code)
	}
}

func TestRequireAPIKey(t *testing.T) {
	f := newFixture(t, nil)
	issued, err := f.engine.IssueAPIKey(context.Background(), "u-1", "ci", 0)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}

	var owner string
	h := RequireAPIKey(f.engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := APIKeyResultFromContext(r.Context())
		if !ok {
			t.Fatal("result missing from context")
		}
		owner = res.User.ID
		if got := authstate.ClientIPFromContext(r.Context()); got != "192.0.2.1" {
			t.Errorf("expected client IP in context, got %q", got)
		}
	}))

	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credential, got %d", rec.Code)
	}

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set(HeaderAPIKey, issued.Plaintext+"x")
	if rec := serve(h, bad); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong key, got %d", rec.Code)
	}

	viaHeader := httptest.NewRequest(http.MethodGet, "/", nil)
	viaHeader.Header.Set(HeaderAPIKey, issued.Plaintext)
	if rec := serve(h, viaHeader); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 via X-API-Key, got %d", rec.Code)
	}
	if owner != "u-1" {
		t.Fatalf("expected owner u-1, got %q", owner)
	}

	viaBearer := httptest.NewRequest(http.MethodGet, "/", nil)
	viaBearer.Header.Set("Authorization", "bearer "+issued.Plaintext)
	if rec := serve(h, viaBearer); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 via Bearer, got %d", rec.Code)
	}

	if err := f.engine.RevokeAPIKey(context.Background(), issued.Key.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	revoked := httptest.NewRequest(http.MethodGet, "/", nil)
	revoked.Header.Set(HeaderAPIKey, issued.Plaintext)
	if rec := serve(h, revoked); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after revoke, got %d", rec.Code)
	}
}

func TestRequireAPIKeyClosedEngine(t *testing.T) {
	f := newFixture(t, nil)
	h := RequireAPIKey(f.engine)(okHandler)
	f.engine.Close()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderAPIKey, "sk_harbor_aaaaaaaaaaaaaaaaaaaaaaaa")
	if rec := serve(h, req); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from a closed engine, got %d", rec.Code)
	}
}
