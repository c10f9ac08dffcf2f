package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidPolicy is returned when MaxRequests < 1 or Window <= 0.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
	// ErrRedisUnavailable wraps failures of the Redis backend.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrUnknownProfile is returned by ProfilePolicies for an unrecognized name.
	ErrUnknownProfile = errors.New("unknown deployment profile")
)

// DefaultCleanupInterval is how often decayed keys are dropped when a
// limiter is started.
const DefaultCleanupInterval = 5 * time.Minute

// Policy parameterizes a limiter.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

// Validate reports whether p can construct a limiter.
func (p Policy) Validate() error {
	if p.MaxRequests < 1 {
		return fmt.Errorf("%w: MaxRequests must be >= 1", ErrInvalidPolicy)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: Window must be > 0", ErrInvalidPolicy)
	}
	return nil
}

// Info reports quota for one key as observed by a single call.
//
// ResetTime is always now+Window. It is an upper bound on when the full
// quota is available again, not the instant the oldest entry leaves the
// window. RetryAfter is set only on rejection and is exact: the time until
// the oldest retained entry decays.
type Info struct {
	Limit      int
	Remaining  int
	ResetTime  time.Time
	Window     time.Duration
	RetryAfter time.Duration

	// slot identifies the entry recorded by an admitted call so that a
	// chain can release it.
	slot slot
}

type slot struct {
	at     time.Time
	member string
}

// Deployment profiles recognized by ProfilePolicies.
const (
	ProfileHomelab     = "homelab"
	ProfileDevelopment = "development"
	ProfileStaging     = "staging"
	ProfileProduction  = "production"
)

// Profile groups the three policies applied to HTTP traffic.
type Profile struct {
	IP     Policy
	APIKey Policy
	Burst  Policy
}

var profiles = map[string]Profile{
	ProfileHomelab: {
		IP:     Policy{MaxRequests: 100, Window: time.Hour},
		APIKey: Policy{MaxRequests: 1000, Window: time.Hour},
		Burst:  Policy{MaxRequests: 20, Window: time.Minute},
	},
	ProfileDevelopment: {
		IP:     Policy{MaxRequests: 1000, Window: time.Hour},
		APIKey: Policy{MaxRequests: 10000, Window: time.Hour},
		Burst:  Policy{MaxRequests: 100, Window: time.Minute},
	},
	ProfileStaging: {
		IP:     Policy{MaxRequests: 200, Window: time.Hour},
		APIKey: Policy{MaxRequests: 2000, Window: time.Hour},
		Burst:  Policy{MaxRequests: 30, Window: time.Minute},
	},
	ProfileProduction: {
		IP:     Policy{MaxRequests: 100, Window: time.Hour},
		APIKey: Policy{MaxRequests: 5000, Window: time.Hour},
		Burst:  Policy{MaxRequests: 50, Window: time.Minute},
	},
}

// ProfilePolicies returns the preset policies for a deployment profile.
// An empty name selects the homelab preset.
func ProfilePolicies(name string) (Profile, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = ProfileHomelab
	}
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}
