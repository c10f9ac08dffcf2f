package authstate

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authstate/clock"
	"github.com/MrEthical07/authstate/logging"
	"github.com/MrEthical07/authstate/password"
)

func waitForEvent(t *testing.T, sink *ChannelSink, eventType string) AuditEvent {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.Events():
			if ev.EventType == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", eventType)
			return AuditEvent{}
		}
	}
}

func TestAuditLoginEvents(t *testing.T) {
	te := newTestEngine(t, nil)
	te.addUser(t, "u1", "alice", testPassword, true)

	s := te.login(t, "alice", testPassword).Session
	ev := waitForEvent(t, te.sink, auditEventLoginSuccess)
	if !ev.Success || ev.UserID != "u1" || ev.Username != "alice" || ev.IP != "10.0.0.1" {
		t.Fatalf("unexpected success event: %+v", ev)
	}
	if ev.SessionID == "" || ev.SessionID == s.ID || len(ev.SessionID) != 16 {
		t.Fatalf("session id must be fingerprinted, got %q", ev.SessionID)
	}
	if ev.ID == "" || !ev.Timestamp.Equal(testEpoch) {
		t.Fatalf("expected id and clock timestamp, got %+v", ev)
	}

	te.login(t, "mallory\r\nforged=1", "hunter2-secret-pw")
	ev = waitForEvent(t, te.sink, auditEventLoginFailure)
	if ev.Success || ev.Reason != string(ReasonUnknownUser) {
		t.Fatalf("unexpected failure event: %+v", ev)
	}
	if strings.ContainsAny(ev.Username, "\r\n") {
		t.Fatalf("username not sanitized: %q", ev.Username)
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(raw), "hunter2-secret-pw") {
		t.Fatal("audit event leaked the password")
	}
}

func TestAuditLockoutAndRateLimit(t *testing.T) {
	te := newTestEngine(t, func(c *Config) {
		c.RateLimit.Burst.MaxRequests = 1
		c.RateLimit.Burst.Window = time.Minute
	})

	for i := 0; i < 5; i++ {
		te.login(t, "ghost", "whatever password")
	}
	ev := waitForEvent(t, te.sink, auditEventAccountLocked)
	if ev.Username != "ghost" || ev.Reason != string(ReasonLocked) {
		t.Fatalf("unexpected lockout event: %+v", ev)
	}

	ctx := context.Background()
	te.AllowRequest(ctx, "10.0.0.5", "")
	te.AllowRequest(ctx, "10.0.0.5", "")
	ev = waitForEvent(t, te.sink, auditEventRateLimitTriggered)
	if ev.Metadata["rule"] != RuleBurst || ev.IP != "10.0.0.5" {
		t.Fatalf("unexpected rate limit event: %+v", ev)
	}
}

func TestAuditAPIKeyEventsOmitPlaintext(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, nil)
	te.addUser(t, "u1", "alice", testPassword, true)

	issued, err := te.IssueAPIKey(ctx, "u1", "ci", 0)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}
	if _, err := te.AuthenticateAPIKey(ctx, issued.Plaintext, "10.0.0.2"); err != nil {
		t.Fatalf("AuthenticateAPIKey: %v", err)
	}

	for _, typ := range []string{auditEventAPIKeyIssued, auditEventAPIKeySuccess} {
		ev := waitForEvent(t, te.sink, typ)
		if ev.Metadata["key_id"] != issued.Key.ID {
			t.Fatalf("%s: expected key id metadata, got %+v", typ, ev.Metadata)
		}
		raw, _ := json.Marshal(ev)
		if strings.Contains(string(raw), issued.Plaintext) {
			t.Fatalf("%s leaked the plaintext key", typ)
		}
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	te := newTestEngine(t, func(c *Config) {
		c.Audit.Enabled = false
	})
	te.addUser(t, "u1", "alice", testPassword, true)
	te.login(t, "alice", testPassword)

	select {
	case ev := <-te.sink.Events():
		t.Fatalf("unexpected event with audit disabled: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if te.AuditDropped() != 0 {
		t.Fatal("disabled audit must not count drops")
	}
}

type blockingAuditSink struct{ gate chan struct{} }

func (s blockingAuditSink) Emit(context.Context, AuditEvent) { <-s.gate }

func TestStatsReportsAuditDropsByType(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.BufferSize = 1
	cfg.Audit.FlushTimeout = 50 * time.Millisecond

	argon, err := password.NewArgon2(fastPasswordConfig())
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	sink := blockingAuditSink{gate: make(chan struct{})}
	engine, err := New().
		WithConfig(cfg).
		WithUserProvider(newMockUserProvider()).
		WithPasswordHasher(argon).
		WithAuditSink(sink).
		WithClock(clock.NewFake(testEpoch)).
		WithLogger(logging.Discard()).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	t.Cleanup(func() { close(sink.gate) })

	for i := 0; i < 4; i++ {
		if _, err := engine.Authenticate(context.Background(), LoginRequest{
			Username:  "ghost",
			Password:  "irrelevant",
			IPAddress: "10.0.0.9",
		}); err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
	}

	st, err := engine.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.AuditDroppedByType["login_failure"] == 0 {
		t.Fatalf("expected login_failure drops, got %v", st.AuditDroppedByType)
	}
	var sum uint64
	for _, n := range st.AuditDroppedByType {
		sum += n
	}
	if sum != st.AuditDropped {
		t.Fatalf("per-type drops %d do not add up to %d", sum, st.AuditDropped)
	}
}
