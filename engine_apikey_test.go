package authstate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authstate/apikey"
)

func TestAPIKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, nil)
	te.addUser(t, "u1", "alice", testPassword, true)

	issued, err := te.IssueAPIKey(ctx, "u1", "ci", 0)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}
	if !strings.HasPrefix(issued.Plaintext, apikey.DefaultPrefix) {
		t.Fatalf("unexpected plaintext shape: %q", issued.Plaintext)
	}
	if issued.Key.KeyHash == "" || strings.Contains(issued.Key.KeyHash, issued.Plaintext) {
		t.Fatal("stored record must hold only a digest")
	}
	if issued.Key.ExpiresAt != nil {
		t.Fatal("expected no expiry with a zero DefaultTTL")
	}

	res, err := te.AuthenticateAPIKey(ctx, issued.Plaintext, "10.0.0.2")
	if err != nil {
		t.Fatalf("AuthenticateAPIKey: %v", err)
	}
	if !res.Success || res.User == nil || res.User.ID != "u1" || res.APIKey == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Session != nil {
		t.Fatal("api key authentication must not create a session")
	}
	if res.APIKey.UsageCount != 1 || res.APIKey.LastUsedIP != "10.0.0.2" {
		t.Fatalf("usage not reflected in result: %+v", res.APIKey)
	}

	stored, err := te.keys.GetAPIKey(ctx, issued.Key.ID)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if stored.UsageCount != 1 || stored.LastUsedAt == nil || !stored.LastUsedAt.Equal(testEpoch) {
		t.Fatalf("usage not persisted: %+v", stored)
	}

	if err := te.RevokeAPIKey(ctx, issued.Key.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	res, err = te.AuthenticateAPIKey(ctx, issued.Plaintext, "10.0.0.2")
	if err != nil {
		t.Fatalf("AuthenticateAPIKey after revoke: %v", err)
	}
	if res.Success || res.Reason() != ReasonRevokedKey || res.Message != FailureMessage {
		t.Fatalf("expected revoked failure, got %+v reason=%q", res, res.Reason())
	}

	if err := te.RevokeAPIKey(ctx, "missing"); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Fatalf("expected ErrAPIKeyNotFound, got %v", err)
	}
	if got := te.metrics.Value(MetricAPIKeyIssued); got != 1 {
		t.Fatalf("expected 1 issued key, got %d", got)
	}
}

func TestAPIKeyRejections(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, nil)
	te.addUser(t, "u1", "alice", testPassword, true)
	te.addUser(t, "u2", "carol", testPassword, true)

	expiring, err := te.IssueAPIKey(ctx, "u1", "short-lived", time.Hour)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}
	orphaned, err := te.IssueAPIKey(ctx, "u2", "carol", 0)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}
	te.users.setActive("u2", false)
	te.clock.Advance(2 * time.Hour)

	tests := []struct {
		name   string
		key    string
		reason FailureReason
	}{
		{"malformed", "not-a-key", ReasonMalformedKey},
		{"wrong prefix", "pk_live_" + strings.Repeat("A", 43), ReasonMalformedKey},
		{"bad alphabet", apikey.DefaultPrefix + strings.Repeat("A", 40) + "+/=", ReasonMalformedKey},
		{"unknown", apikey.DefaultPrefix + strings.Repeat("A", 43), ReasonUnknownKey},
		{"expired", expiring.Plaintext, ReasonExpiredKey},
		{"owner inactive", orphaned.Plaintext, ReasonKeyOwnerInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := te.AuthenticateAPIKey(ctx, tt.key, "10.0.0.3")
			if err != nil {
				t.Fatalf("AuthenticateAPIKey: %v", err)
			}
			if res.Success || res.Message != FailureMessage {
				t.Fatalf("expected generic failure, got %+v", res)
			}
			if res.Reason() != tt.reason {
				t.Fatalf("expected %q, got %q", tt.reason, res.Reason())
			}
		})
	}

	stored, _ := te.keys.GetAPIKey(ctx, expiring.Key.ID)
	if stored.UsageCount != 0 {
		t.Fatal("rejected key must not record usage")
	}
	if n, _ := te.tracker.Failures(ctx, "alice"); n != 0 {
		t.Fatal("api key failures must not feed the lockout tracker")
	}
}

func TestAPIKeyInactiveRecord(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, nil)
	te.addUser(t, "u1", "alice", testPassword, true)

	plain, hash, err := te.Engine.keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	k := apikey.NewKey("u1", "disabled", hash, testEpoch, 0)
	k.IsActive = false
	if err := te.keys.SaveAPIKey(ctx, k); err != nil {
		t.Fatalf("SaveAPIKey: %v", err)
	}

	res, err := te.AuthenticateAPIKey(ctx, plain, "")
	if err != nil {
		t.Fatalf("AuthenticateAPIKey: %v", err)
	}
	if res.Reason() != ReasonInactiveKey {
		t.Fatalf("expected inactive key, got %q", res.Reason())
	}
}

func TestIssueAPIKeyDefaultTTL(t *testing.T) {
	te := newTestEngine(t, func(c *Config) {
		c.APIKey.DefaultTTL = 24 * time.Hour
	})
	te.addUser(t, "u1", "alice", testPassword, true)

	issued, err := te.IssueAPIKey(context.Background(), "u1", "ci", 0)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}
	if issued.Key.ExpiresAt == nil || !issued.Key.ExpiresAt.Equal(testEpoch.Add(24*time.Hour)) {
		t.Fatalf("expected default ttl, got %v", issued.Key.ExpiresAt)
	}
}

func TestIssueAPIKeyRequiresActiveOwner(t *testing.T) {
	te := newTestEngine(t, nil)
	te.addUser(t, "u2", "carol", testPassword, false)

	for _, id := range []string{"u2", "u9"} {
		if _, err := te.IssueAPIKey(context.Background(), id, "ci", 0); !errors.Is(err, ErrUserNotFound) {
			t.Fatalf("IssueAPIKey(%s): expected ErrUserNotFound, got %v", id, err)
		}
	}
}

type failingKeyStore struct {
	*apikey.MemoryStore
	err error
}

func (f failingKeyStore) GetAPIKeyByHash(context.Context, string) (*apikey.Key, error) {
	return nil, f.err
}

func TestAuthenticateAPIKeyProviderError(t *testing.T) {
	storeErr := errors.New("timeout")
	engine, err := New().
		WithConfig(testConfig()).
		WithUserProvider(newMockUserProvider()).
		WithAPIKeyProvider(failingKeyStore{MemoryStore: apikey.NewMemoryStore(), err: storeErr}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	_, err = engine.AuthenticateAPIKey(context.Background(), apikey.DefaultPrefix+strings.Repeat("A", 43), "")
	if !errors.Is(err, ErrAPIKeyProvider) || !errors.Is(err, storeErr) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}
