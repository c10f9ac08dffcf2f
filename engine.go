package authstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authstate/apikey"
	"github.com/MrEthical07/authstate/clock"
	"github.com/MrEthical07/authstate/internal"
	internalaudit "github.com/MrEthical07/authstate/internal/audit"
	"github.com/MrEthical07/authstate/lockout"
	"github.com/MrEthical07/authstate/password"
	"github.com/MrEthical07/authstate/ratelimit"
	"github.com/MrEthical07/authstate/session"
	"github.com/redis/go-redis/v9"
)

const (
	stateNew int32 = iota
	stateReady
	stateClosed
)

// Engine coordinates password and API key authentication over the session
// store, the lockout tracker, the API key registry, and the request rate
// limiters. It is safe for concurrent use once built.
//
// Close must only be called after request handling has drained; a call
// racing with an in-flight operation may observe a closed session store.
type Engine struct {
	config Config
	clock  clock.Clock
	logger *slog.Logger

	users   UserProvider
	apiKeys APIKeyProvider
	hasher  PasswordHasher
	policy  password.Policy

	redis          redis.UniversalClient
	sessions       *session.Store
	lockout        LockoutStore
	tracker        *lockout.Tracker
	lockoutBackend string
	keys           *apikey.Registry

	ipLimits         *ratelimit.Chain
	apiKeyLimits     *ratelimit.Chain
	windows          map[string]*ratelimit.SlidingWindow
	rateLimitBackend string

	audit   *internalaudit.Dispatcher
	metrics *Metrics

	state   atomic.Int32
	started atomic.Bool
}

func (e *Engine) ready() error {
	if e == nil || e.state.Load() != stateReady {
		return ErrEngineNotReady
	}
	return nil
}

// Start runs an initial session sweep and launches background cleanup for
// sessions, in-memory lockout state, and in-memory rate limit windows. The
// loops stop when ctx is cancelled or Close is called. Calling Start more
// than once is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !e.started.CompareAndSwap(false, true) {
		return nil
	}

	e.sessions.Start(ctx)
	if e.tracker != nil {
		e.tracker.Start(ctx, e.config.Lockout.CleanupInterval)
	}
	for _, w := range e.windows {
		w.Start(ctx)
	}

	e.logger.Info("auth engine started",
		slog.String("lockout_backend", e.lockoutBackend),
		slog.String("rate_limit_backend", e.rateLimitBackend),
		slog.Bool("production_mode", e.config.Security.ProductionMode),
	)
	return nil
}

// Close stops background cleanup, discards in-memory state, and flushes
// queued audit events. Every later call returns ErrEngineNotReady.
func (e *Engine) Close() {
	if e == nil || !e.state.CompareAndSwap(stateReady, stateClosed) {
		return
	}

	for _, w := range e.windows {
		w.Close()
	}
	if e.tracker != nil {
		e.tracker.Close()
	}
	e.sessions.Close()
	e.audit.Close()

	e.logger.Info("auth engine closed")
}

// Config returns a copy of the validated configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return defaultConfig()
	}
	return cloneConfig(e.config)
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger {
	if e == nil || e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Stats reports in-memory state sizes. Redis-backed components report only
// their backend name.
func (e *Engine) Stats() (Stats, error) {
	if err := e.ready(); err != nil {
		return Stats{}, err
	}

	st := Stats{
		Sessions:           e.sessions.Count(),
		RateLimitKeys:      make(map[string]int, len(e.windows)),
		AuditDropped:       e.audit.Dropped(),
		AuditDroppedByType: e.audit.DroppedByType(),
		LockoutBackend:     e.lockoutBackend,
		RateLimitBackend:   e.rateLimitBackend,
	}
	if e.tracker != nil {
		st.LockoutIdentities = e.tracker.Identities()
	}
	for rule, w := range e.windows {
		st.RateLimitKeys[rule] = w.Keys()
	}
	return st, nil
}

// Authenticate checks a username and password.
//
// A locked identity is rejected before any user lookup. An unknown user,
// an inactive user, or a wrong password records a lockout failure. Every
// failure carries the same Message; the precise cause is available through
// Result.Reason for server-side use only. A non-nil error means a
// collaborator failed and no decision was made.
func (e *Engine) Authenticate(ctx context.Context, req LoginRequest) (*Result, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	defer e.observeLatency(MetricAuthenticateLatency, time.Now())

	if req.IPAddress == "" {
		req.IPAddress = ClientIPFromContext(ctx)
	} else if ClientIPFromContext(ctx) == "" {
		ctx = WithClientIP(ctx, req.IPAddress)
	}
	if req.UserAgent == "" {
		req.UserAgent = userAgentFromContext(ctx)
	}

	locked, err := e.lockout.IsLocked(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLockoutBackend, err)
	}
	if locked {
		e.equalizeTiming(req.Password)
		e.metricInc(MetricLoginLocked)
		return e.loginFailed(ctx, req.Username, "", ReasonLocked), nil
	}

	user, err := e.lookupUser(ctx, func() (*User, error) {
		return e.users.GetUserByUsername(ctx, req.Username)
	})
	if err != nil {
		return nil, err
	}

	var reason FailureReason
	switch {
	case user == nil:
		e.equalizeTiming(req.Password)
		reason = ReasonUnknownUser
	case !user.IsActive:
		e.equalizeTiming(req.Password)
		reason = ReasonInactiveUser
	default:
		ok, err := e.hasher.Verify(req.Password, user.PasswordHash)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPasswordHasher, err)
		}
		if !ok {
			reason = ReasonBadPassword
		}
	}

	if reason != ReasonNone {
		if err := e.recordFailure(ctx, req.Username); err != nil {
			return nil, err
		}
		userID := ""
		if user != nil {
			userID = user.ID
		}
		return e.loginFailed(ctx, req.Username, userID, reason), nil
	}

	if err := e.lockout.Clear(ctx, req.Username); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLockoutBackend, err)
	}

	s, err := e.sessions.Create(session.CreateParams{
		UserID:     user.ID,
		Username:   user.Username,
		IsAdmin:    user.IsAdmin,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionCreationFailed, err)
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, user.Username, s.ID, ReasonNone, func() map[string]string {
		return map[string]string{
			"remember_me": fmt.Sprint(req.RememberMe),
		}
	})
	e.logger.Info("login succeeded",
		slog.String("user_id", user.ID),
		slog.String("session", s.LogID()),
		slog.String("ip", internal.SanitizeForLog(req.IPAddress)),
	)

	return &Result{
		Success: true,
		User:    publicUser(user),
		Session: s,
	}, nil
}

// recordFailure counts a failed attempt and reports the transition into
// the locked state.
func (e *Engine) recordFailure(ctx context.Context, identity string) error {
	if err := e.lockout.RecordFailure(ctx, identity); err != nil {
		return fmt.Errorf("%w: %w", ErrLockoutBackend, err)
	}
	locked, err := e.lockout.IsLocked(ctx, identity)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLockoutBackend, err)
	}
	if locked {
		e.metricInc(MetricLockoutTriggered)
		e.emitAudit(ctx, auditEventAccountLocked, false, "", identity, "", ReasonLocked, nil)
		e.logger.Warn("identity locked after repeated failures",
			slog.String("username", internal.SanitizeForLog(identity)),
		)
	}
	return nil
}

func (e *Engine) loginFailed(ctx context.Context, username, userID string, reason FailureReason) *Result {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, username, "", reason, nil)
	e.logger.Warn("login failed",
		slog.String("username", internal.SanitizeForLog(username)),
		slog.String("reason", string(reason)),
		slog.String("ip", internal.SanitizeForLog(ClientIPFromContext(ctx))),
	)
	return failure(reason)
}

// lookupUser normalizes the two "absent" spellings of a provider to
// (nil, nil) and wraps everything else.
func (e *Engine) lookupUser(ctx context.Context, fetch func() (*User, error)) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	user, err := fetch()
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserProvider, err)
	}
	return user, nil
}

// equalizeTiming spends one password verification on paths that would
// otherwise skip it.
func (e *Engine) equalizeTiming(plain string) {
	if !e.config.Security.EqualizeTiming {
		return
	}
	if dv, ok := e.hasher.(dummyVerifier); ok {
		dv.DummyVerify(plain)
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeLatency(id MetricID, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

// publicUser returns a copy without the password digest.
func publicUser(u *User) *User {
	if u == nil {
		return nil
	}
	out := *u
	out.PasswordHash = ""
	return &out
}
