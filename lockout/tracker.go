package lockout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/authstate/clock"
	"github.com/MrEthical07/authstate/internal/janitor"
)

const (
	// DefaultMaxAttempts is the failure count at which an identity locks.
	DefaultMaxAttempts = 5
	// DefaultDuration is the trailing window failures are counted over.
	DefaultDuration = 30 * time.Minute
	// DefaultCleanupInterval is how often idle identities are dropped.
	DefaultCleanupInterval = 5 * time.Minute
)

var (
	// ErrInvalidConfig is returned for MaxAttempts < 1 or Duration <= 0.
	ErrInvalidConfig = errors.New("invalid lockout config")
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// Config holds lockout thresholds.
type Config struct {
	MaxAttempts int
	Duration    time.Duration
	// Normalize maps a submitted identity to its counting key. Nil keeps
	// the identity exactly as submitted.
	Normalize func(string) string
}

// DefaultConfig returns 5 attempts over 30 minutes.
func DefaultConfig() Config {
	return Config{MaxAttempts: DefaultMaxAttempts, Duration: DefaultDuration}
}

func (c Config) validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: MaxAttempts must be >= 1", ErrInvalidConfig)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("%w: Duration must be > 0", ErrInvalidConfig)
	}
	return nil
}

func (c Config) identity(v string) string {
	if c.Normalize == nil {
		return v
	}
	return c.Normalize(v)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock injects the time source.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clock = clock.OrSystem(c) }
}

// WithLogger sets the logger used for cleanup reports.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// Tracker is the in-memory lockout store. All methods are safe for
// concurrent use and never return a non-nil error; the error results exist
// so that a shared backend can be substituted.
type Tracker struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	failures map[string][]time.Time

	janitor *janitor.Janitor
}

// NewTracker validates cfg and returns an empty tracker.
func NewTracker(cfg Config, opts ...Option) (*Tracker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	t := &Tracker{
		cfg:      cfg,
		clock:    clock.System{},
		logger:   slog.Default(),
		failures: make(map[string][]time.Time),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// Config returns the tracker thresholds.
func (t *Tracker) Config() Config { return t.cfg }

// RecordFailure appends a failure at the current instant.
func (t *Tracker) RecordFailure(_ context.Context, identity string) error {
	key := t.cfg.identity(identity)
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	ts := append(t.pruneLocked(key, now), now)
	// Only the newest MaxAttempts entries can decide the lock state.
	if over := len(ts) - t.cfg.MaxAttempts; over > 0 {
		n := copy(ts, ts[over:])
		ts = ts[:n]
	}
	t.failures[key] = ts
	return nil
}

// IsLocked reports whether MaxAttempts or more failures are in the window.
func (t *Tracker) IsLocked(ctx context.Context, identity string) (bool, error) {
	n, err := t.Failures(ctx, identity)
	if err != nil {
		return false, err
	}
	return n >= t.cfg.MaxAttempts, nil
}

// Failures returns the number of failures currently in the window.
func (t *Tracker) Failures(_ context.Context, identity string) (int, error) {
	key := t.cfg.identity(identity)
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.pruneLocked(key, now)), nil
}

// Clear removes every failure for identity.
func (t *Tracker) Clear(_ context.Context, identity string) error {
	key := t.cfg.identity(identity)

	t.mu.Lock()
	delete(t.failures, key)
	t.mu.Unlock()
	return nil
}

// Identities returns the number of identities with retained failures.
func (t *Tracker) Identities() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.failures)
}

// CleanupOldEntries drops identities whose failures have all decayed and
// returns how many were removed.
func (t *Tracker) CleanupOldEntries() int {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	before := len(t.failures)
	for key := range t.failures {
		t.pruneLocked(key, now)
	}
	return before - len(t.failures)
}

// Start runs CleanupOldEntries every interval until ctx is cancelled or
// Close is called.
func (t *Tracker) Start(ctx context.Context, interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.janitor != nil {
		return
	}
	t.janitor = janitor.Start(ctx, interval, func() {
		if n := t.CleanupOldEntries(); n > 0 {
			t.logger.Debug("lockout cleanup", slog.Int("identities_removed", n))
		}
	})
}

// Close stops background cleanup and forgets all failures.
func (t *Tracker) Close() {
	t.mu.Lock()
	j := t.janitor
	t.janitor = nil
	t.mu.Unlock()

	j.Stop()

	t.mu.Lock()
	t.failures = make(map[string][]time.Time)
	t.mu.Unlock()
}

// pruneLocked drops decayed failures for key, deleting the entry when none
// remain. Callers hold t.mu.
func (t *Tracker) pruneLocked(key string, now time.Time) []time.Time {
	ts, ok := t.failures[key]
	if !ok {
		return nil
	}
	cutoff := now.Add(-t.cfg.Duration)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == len(ts) {
		delete(t.failures, key)
		return nil
	}
	if i > 0 {
		n := copy(ts, ts[i:])
		ts = ts[:n]
		t.failures[key] = ts
	}
	return ts
}
