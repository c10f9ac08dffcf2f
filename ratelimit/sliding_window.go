package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/authstate/clock"
	"github.com/MrEthical07/authstate/internal/janitor"
)

// Limiter is implemented by every backend a [Chain] can compose.
type Limiter interface {
	// Allow runs one admission check for key.
	Allow(ctx context.Context, key string) (bool, Info, error)
	// Undo releases the slot recorded by an admitted Allow call.
	Undo(ctx context.Context, key string, info Info) error
	// Policy returns the limiter's parameters.
	Policy() Policy
}

// Option configures a limiter.
type Option func(*options)

type options struct {
	clock           clock.Clock
	logger          *slog.Logger
	cleanupInterval time.Duration
	keyPrefix       string
}

// WithClock injects the time source.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger used for background cleanup reports.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCleanupInterval overrides DefaultCleanupInterval.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) { o.cleanupInterval = d }
}

// WithKeyPrefix namespaces Redis keys. Ignored by the memory backend.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) { o.keyPrefix = prefix }
}

func buildOptions(opts []Option) options {
	o := options{
		clock:           clock.System{},
		logger:          slog.Default(),
		cleanupInterval: DefaultCleanupInterval,
		keyPrefix:       "rl:",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.clock = clock.OrSystem(o.clock)
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// SlidingWindow is an in-memory sliding-window limiter. A single mutex
// guards the whole key map, so each IsAllowed call is atomic with respect
// to every other call on the same limiter.
type SlidingWindow struct {
	policy Policy
	opts   options

	mu      sync.Mutex
	entries map[string][]time.Time

	janitor *janitor.Janitor
}

// NewSlidingWindow validates p and returns an empty limiter.
func NewSlidingWindow(p Policy, opts ...Option) (*SlidingWindow, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &SlidingWindow{
		policy:  p,
		opts:    buildOptions(opts),
		entries: make(map[string][]time.Time),
	}, nil
}

// Policy returns the limiter's parameters.
func (s *SlidingWindow) Policy() Policy { return s.policy }

// IsAllowed admits or rejects one request for key and reports quota.
func (s *SlidingWindow) IsAllowed(key string) (bool, Info) {
	now := s.opts.clock.Now()
	cutoff := now.Add(-s.policy.Window)

	info := Info{
		Limit:     s.policy.MaxRequests,
		ResetTime: now.Add(s.policy.Window),
		Window:    s.policy.Window,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := prune(s.entries[key], cutoff)

	if len(ts) < s.policy.MaxRequests {
		ts = append(ts, now)
		s.entries[key] = ts
		info.Remaining = s.policy.MaxRequests - len(ts)
		info.slot = slot{at: now}
		return true, info
	}

	s.entries[key] = ts
	info.RetryAfter = ts[0].Add(s.policy.Window).Sub(now)
	return false, info
}

// Allow implements [Limiter]. The memory backend never returns an error.
func (s *SlidingWindow) Allow(_ context.Context, key string) (bool, Info, error) {
	ok, info := s.IsAllowed(key)
	return ok, info, nil
}

// Undo removes the entry recorded by an admitted call. Entries that already
// decayed are ignored.
func (s *SlidingWindow) Undo(_ context.Context, key string, info Info) error {
	if info.slot.at.IsZero() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.entries[key]
	for i := len(ts) - 1; i >= 0; i-- {
		if ts[i].Equal(info.slot.at) {
			ts = append(ts[:i], ts[i+1:]...)
			break
		}
	}
	if len(ts) == 0 {
		delete(s.entries, key)
		return nil
	}
	s.entries[key] = ts
	return nil
}

// Count returns the number of entries currently retained for key after
// pruning, without recording a request.
func (s *SlidingWindow) Count(key string) int {
	cutoff := s.opts.clock.Now().Add(-s.policy.Window)

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := prune(s.entries[key], cutoff)
	if len(ts) == 0 {
		delete(s.entries, key)
		return 0
	}
	s.entries[key] = ts
	return len(ts)
}

// Keys returns the number of tracked keys.
func (s *SlidingWindow) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// CleanupOldEntries prunes every key and drops the ones left empty. It
// returns the number of keys removed.
func (s *SlidingWindow) CleanupOldEntries() int {
	cutoff := s.opts.clock.Now().Add(-s.policy.Window)

	s.mu.Lock()
	removed := 0
	for key, ts := range s.entries {
		ts = prune(ts, cutoff)
		if len(ts) == 0 {
			delete(s.entries, key)
			removed++
			continue
		}
		s.entries[key] = ts
	}
	s.mu.Unlock()

	return removed
}

// Start runs CleanupOldEntries on the configured interval until ctx is
// cancelled or Close is called. Calling Start twice is a no-op.
func (s *SlidingWindow) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.janitor != nil {
		return
	}
	s.janitor = janitor.Start(ctx, s.opts.cleanupInterval, func() {
		if n := s.CleanupOldEntries(); n > 0 {
			s.opts.logger.Debug("rate limiter cleanup",
				slog.Int("keys_removed", n),
				slog.Int("max_requests", s.policy.MaxRequests),
				slog.Duration("window", s.policy.Window),
			)
		}
	})
}

// Close stops background cleanup and drops all state.
func (s *SlidingWindow) Close() {
	s.mu.Lock()
	j := s.janitor
	s.janitor = nil
	s.mu.Unlock()

	j.Stop()

	s.mu.Lock()
	s.entries = make(map[string][]time.Time)
	s.mu.Unlock()
}

// prune drops entries at or before cutoff, shifting in place. ts is
// ascending, so the survivors are a suffix.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	n := copy(ts, ts[i:])
	return ts[:n]
}
