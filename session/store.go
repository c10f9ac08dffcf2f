package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/authstate/clock"
	"github.com/MrEthical07/authstate/csrf"
	"github.com/MrEthical07/authstate/internal"
	"github.com/MrEthical07/authstate/internal/janitor"
)

var (
	// ErrStoreNotInitialized is the panic value when a Store that was not
	// built by NewStore is used.
	ErrStoreNotInitialized = errors.New("session store not initialized")
	// ErrStoreClosed is the panic value when a closed Store is used.
	ErrStoreClosed = errors.New("session store closed")
	// ErrInvalidConfig is returned by NewStore.
	ErrInvalidConfig = errors.New("invalid session config")
)

// Config holds session lifetimes and limits.
type Config struct {
	// Timeout is the lifetime of a normal session and of a refresh.
	Timeout time.Duration
	// RememberMeMultiplier scales Timeout for remember-me sessions.
	RememberMeMultiplier int
	// MaxTimeout caps any session lifetime.
	MaxTimeout time.Duration
	// MaxSessionsPerUser bounds concurrent sessions per user.
	MaxSessionsPerUser int
	// SweepInterval is the period of the background expiry sweep.
	SweepInterval time.Duration
}

// DefaultConfig returns 24h sessions, 4x for remember-me capped at 720h,
// 5 sessions per user, and a 5 minute sweep.
func DefaultConfig() Config {
	return Config{
		Timeout:              24 * time.Hour,
		RememberMeMultiplier: 4,
		MaxTimeout:           720 * time.Hour,
		MaxSessionsPerUser:   5,
		SweepInterval:        5 * time.Minute,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	switch {
	case c.Timeout <= 0:
		return fmt.Errorf("%w: Timeout must be > 0", ErrInvalidConfig)
	case c.RememberMeMultiplier < 1:
		return fmt.Errorf("%w: RememberMeMultiplier must be >= 1", ErrInvalidConfig)
	case c.MaxTimeout < c.Timeout:
		return fmt.Errorf("%w: MaxTimeout must be >= Timeout", ErrInvalidConfig)
	case c.MaxSessionsPerUser < 1:
		return fmt.Errorf("%w: MaxSessionsPerUser must be >= 1", ErrInvalidConfig)
	case c.SweepInterval < 0:
		return fmt.Errorf("%w: SweepInterval must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Lifetime returns the session lifetime for a create call.
func (c Config) Lifetime(rememberMe bool) time.Duration {
	if !rememberMe {
		return c.Timeout
	}
	return min(c.Timeout*time.Duration(c.RememberMeMultiplier), c.MaxTimeout)
}

// EvictionHook observes sessions leaving the store. It runs outside the
// store lock and must not block for long.
type EvictionHook func(s Session, reason EvictReason)

// Option configures a Store.
type Option func(*Store)

// WithClock injects the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = clock.OrSystem(c) }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEvictionHook registers a hook for every removal.
func WithEvictionHook(h EvictionHook) Option {
	return func(s *Store) { s.onEvict = h }
}

type storeState int

const (
	stateZero storeState = iota
	stateOpen
	stateClosing
	stateClosed
)

type entry struct {
	s   Session
	seq uint64
}

type eviction struct {
	s      Session
	reason EvictReason
}

// Store is the in-memory session store. The zero value is not usable;
// construct with NewStore.
type Store struct {
	cfg     Config
	clock   clock.Clock
	logger  *slog.Logger
	onEvict EvictionHook

	mu       sync.Mutex
	state    storeState
	seq      uint64
	sessions map[string]*entry
	byUser   map[string]map[string]struct{}
	janitor  *janitor.Janitor
}

// NewStore validates cfg and returns an open, empty store.
func NewStore(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		cfg:      cfg,
		clock:    clock.System{},
		logger:   slog.Default(),
		state:    stateOpen,
		sessions: make(map[string]*entry),
		byUser:   make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Config returns the store configuration.
func (s *Store) Config() Config { return s.cfg }

// lock acquires s.mu and panics on lifecycle contract violations.
func (s *Store) lock() {
	s.mu.Lock()
	switch s.state {
	case stateOpen, stateClosing:
		return
	case stateZero:
		s.mu.Unlock()
		panic(ErrStoreNotInitialized)
	default:
		s.mu.Unlock()
		panic(ErrStoreClosed)
	}
}

// Create issues a new session and enforces the per-user cap. It fails only
// when the OS entropy source fails.
func (s *Store) Create(p CreateParams) (*Session, error) {
	csrfToken, err := csrf.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate csrf token: %w", err)
	}

	now := s.clock.Now()
	sess := Session{
		UserID:       p.UserID,
		Username:     p.Username,
		IsAdmin:      p.IsAdmin,
		CSRFToken:    csrfToken,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.Lifetime(p.RememberMe)),
		LastActivity: now,
		IPAddress:    p.IPAddress,
		UserAgent:    p.UserAgent,
	}

	s.lock()
	for {
		id, err := internal.NewToken(internal.TokenBytes)
		if err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		if _, taken := s.sessions[id]; !taken {
			sess.ID = id
			break
		}
	}

	s.seq++
	s.sessions[sess.ID] = &entry{s: sess, seq: s.seq}
	ids, ok := s.byUser[p.UserID]
	if !ok {
		ids = make(map[string]struct{}, 1)
		s.byUser[p.UserID] = ids
	}
	ids[sess.ID] = struct{}{}

	evicted := s.enforceCapLocked(p.UserID)
	s.mu.Unlock()

	s.logger.Info("session created",
		slog.String("user_id", internal.SanitizeForLog(p.UserID)),
		slog.String("username", internal.SanitizeForLog(p.Username)),
		slog.String("session", sess.LogID()),
		slog.Bool("remember_me", p.RememberMe),
	)
	s.notify(evicted)

	out := sess
	return &out, nil
}

// Get returns the session, removing it instead if it has expired. A hit
// updates LastActivity.
func (s *Store) Get(id string) (*Session, bool) {
	now := s.clock.Now()

	s.lock()
	e, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	if e.s.Expired(now) {
		ev := s.removeLocked(id, EvictExpired)
		s.mu.Unlock()
		s.notify(ev)
		return nil, false
	}
	e.s.LastActivity = now
	out := e.s
	s.mu.Unlock()

	return &out, true
}

// Refresh extends a live session to now+Timeout. Expired or unknown
// sessions return false.
func (s *Store) Refresh(id string) (*Session, bool) {
	now := s.clock.Now()

	s.lock()
	e, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	if e.s.Expired(now) {
		ev := s.removeLocked(id, EvictExpired)
		s.mu.Unlock()
		s.notify(ev)
		return nil, false
	}
	e.s.ExpiresAt = now.Add(s.cfg.Timeout)
	e.s.LastActivity = now
	out := e.s
	s.mu.Unlock()

	return &out, true
}

// Invalidate removes a session. It reports whether a session was removed
// and is safe to repeat.
func (s *Store) Invalidate(id string) bool {
	_, ok := s.Remove(id)
	return ok
}

// Remove is Invalidate returning a copy of the removed session. It does not
// touch LastActivity or apply lazy expiry first.
func (s *Store) Remove(id string) (*Session, bool) {
	s.lock()
	ev := s.removeLocked(id, EvictInvalidated)
	s.mu.Unlock()

	if len(ev) == 0 {
		return nil, false
	}
	s.logger.Info("session invalidated",
		slog.String("user_id", internal.SanitizeForLog(ev[0].s.UserID)),
		slog.String("session", ev[0].s.LogID()),
	)
	s.notify(ev)
	out := ev[0].s
	return &out, true
}

func (s *Store) InvalidateUser(userID string) int {
	s.lock()
	var evicted []eviction
	for id := range s.byUser[userID] {
		evicted = append(evicted, s.removeLocked(id, EvictUserInvalidated)...)
	}
	s.mu.Unlock()

	if len(evicted) > 0 {
		s.logger.Info("user sessions invalidated",
			slog.String("user_id", internal.SanitizeForLog(userID)),
			slog.Int("count", len(evicted)),
		)
	}
	s.notify(evicted)
	return len(evicted)
}

// ValidateCSRF reports whether token matches the live session's CSRF
// token. It is false for unknown or expired sessions and does not count as
// activity.
func (s *Store) ValidateCSRF(id, token string) bool {
	now := s.clock.Now()

	s.lock()
	e, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if e.s.Expired(now) {
		ev := s.removeLocked(id, EvictExpired)
		s.mu.Unlock()
		s.notify(ev)
		return false
	}
	expected := e.s.CSRFToken
	s.mu.Unlock()

	return csrf.Validate(expected, token)
}

// SweepExpired removes every expired session and returns the count.
func (s *Store) SweepExpired() int {
	s.lock()
	evicted := s.sweepLocked(s.clock.Now())
	s.mu.Unlock()

	if len(evicted) > 0 {
		s.logger.Debug("expired sessions swept", slog.Int("count", len(evicted)))
	}
	s.notify(evicted)
	return len(evicted)
}

// Count returns the number of stored sessions, including expired ones not
// yet swept.
func (s *Store) Count() int {
	s.lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// UserCount returns the number of stored sessions for userID.
func (s *Store) UserCount(userID string) int {
	s.lock()
	defer s.mu.Unlock()
	return len(s.byUser[userID])
}

// ListUser returns copies of userID's live sessions, oldest first.
func (s *Store) ListUser(userID string) []Session {
	now := s.clock.Now()

	s.lock()
	out := make([]Session, 0, len(s.byUser[userID]))
	for id := range s.byUser[userID] {
		if e := s.sessions[id]; !e.s.Expired(now) {
			out = append(out, e.s)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Start sweeps once and then every SweepInterval until ctx is cancelled or
// Close is called. A zero SweepInterval disables the background sweep.
// Start during Close is a no-op.
func (s *Store) Start(ctx context.Context) {
	s.SweepExpired()

	s.lock()
	defer s.mu.Unlock()
	if s.state != stateOpen || s.janitor != nil {
		return
	}
	s.janitor = janitor.Start(ctx, s.cfg.SweepInterval, func() { s.SweepExpired() })
}

// Close stops the background sweep, runs a final sweep, and discards all
// sessions. Any later call other than Close panics with ErrStoreClosed.
func (s *Store) Close() {
	s.mu.Lock()
	if s.state != stateOpen {
		s.mu.Unlock()
		return
	}
	s.state = stateClosing
	j := s.janitor
	s.janitor = nil
	s.mu.Unlock()

	j.Stop()
	swept := s.SweepExpired()

	s.mu.Lock()
	remaining := len(s.sessions)
	s.sessions = nil
	s.byUser = nil
	s.state = stateClosed
	s.mu.Unlock()

	s.logger.Info("session store closed",
		slog.Int("expired_swept", swept),
		slog.Int("discarded", remaining),
	)
}

// enforceCapLocked evicts the oldest sessions of userID beyond the cap.
// Ties on CreatedAt fall back to insertion order.
func (s *Store) enforceCapLocked(userID string) []eviction {
	ids := s.byUser[userID]
	over := len(ids) - s.cfg.MaxSessionsPerUser
	if over <= 0 {
		return nil
	}

	entries := make([]*entry, 0, len(ids))
	for id := range ids {
		entries = append(entries, s.sessions[id])
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.s.CreatedAt.Equal(b.s.CreatedAt) {
			return a.s.CreatedAt.Before(b.s.CreatedAt)
		}
		return a.seq < b.seq
	})

	var evicted []eviction
	for _, e := range entries[:over] {
		evicted = append(evicted, s.removeLocked(e.s.ID, EvictCapacity)...)
	}
	return evicted
}

func (s *Store) sweepLocked(now time.Time) []eviction {
	var evicted []eviction
	for id, e := range s.sessions {
		if e.s.Expired(now) {
			evicted = append(evicted, s.removeLocked(id, EvictExpired)...)
		}
	}
	return evicted
}

// removeLocked deletes id from both indexes. It returns nil when id is
// absent.
func (s *Store) removeLocked(id string, reason EvictReason) []eviction {
	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	delete(s.sessions, id)
	if ids := s.byUser[e.s.UserID]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byUser, e.s.UserID)
		}
	}
	return []eviction{{s: e.s, reason: reason}}
}

func (s *Store) notify(evicted []eviction) {
	if s.onEvict == nil {
		return
	}
	for _, ev := range evicted {
		s.onEvict(ev.s, ev.reason)
	}
}
