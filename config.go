package authstate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authstate/apikey"
	"github.com/MrEthical07/authstate/lockout"
	"github.com/MrEthical07/authstate/password"
	"github.com/MrEthical07/authstate/ratelimit"
	"github.com/MrEthical07/authstate/session"
)

// Config is the full engine configuration. Start from [DefaultConfig] and
// override fields; [Builder.Build] validates the result.
type Config struct {
	Session   SessionConfig
	RateLimit RateLimitConfig
	Lockout   LockoutConfig
	APIKey    APIKeyConfig
	Password  PasswordConfig
	Security  SecurityConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetimes and the per-user cap.
type SessionConfig struct {
	Timeout              time.Duration
	RememberMeMultiplier int
	MaxTimeout           time.Duration
	MaxSessionsPerUser   int
	SweepInterval        time.Duration

	// CookieName is read by middleware.RequireSession.
	CookieName string
}

func (c SessionConfig) store() session.Config {
	return session.Config{
		Timeout:              c.Timeout,
		RememberMeMultiplier: c.RememberMeMultiplier,
		MaxTimeout:           c.MaxTimeout,
		MaxSessionsPerUser:   c.MaxSessionsPerUser,
		SweepInterval:        c.SweepInterval,
	}
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig selects request-level limits. Profile picks preset
// policies; a non-zero IP, APIKey or Burst policy overrides the preset.
type RateLimitConfig struct {
	Enabled bool
	Profile string

	IP     ratelimit.Policy
	APIKey ratelimit.Policy
	Burst  ratelimit.Policy

	CleanupInterval time.Duration

	// RedisPrefix namespaces limiter keys when a Redis client is supplied.
	RedisPrefix string

	// SkipPaths are exempt from request limiting. Entries ending in "/"
	// match as prefixes, others match exactly.
	SkipPaths []string
}

// Policies resolves the profile and applies overrides.
func (c RateLimitConfig) Policies() (ratelimit.Profile, error) {
	p, err := ratelimit.ProfilePolicies(c.Profile)
	if err != nil {
		return ratelimit.Profile{}, err
	}
	if c.IP != (ratelimit.Policy{}) {
		p.IP = c.IP
	}
	if c.APIKey != (ratelimit.Policy{}) {
		p.APIKey = c.APIKey
	}
	if c.Burst != (ratelimit.Policy{}) {
		p.Burst = c.Burst
	}
	return p, nil
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls failed-login lockout.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration

	// CaseInsensitive folds usernames before tracking. Off by default:
	// the identity is exactly what was submitted, so "Alice" and "alice"
	// lock independently and a password change clears only the stored
	// spelling. Enable it when the UserProvider matches usernames
	// case-insensitively.
	CaseInsensitive bool
	CleanupInterval time.Duration
}

func (c LockoutConfig) tracker() lockout.Config {
	cfg := lockout.Config{
		MaxAttempts: c.MaxAttempts,
		Duration:    c.Duration,
	}
	if c.CaseInsensitive {
		cfg.Normalize = strings.ToLower
	}
	return cfg
}

/*
====================================
API KEY CONFIG
====================================
*/

// APIKeyConfig controls credential format and hashing.
type APIKeyConfig struct {
	Secret      string
	Prefix      string
	RandomBytes int

	// DefaultTTL applies to IssueAPIKey calls with ttl == 0; zero means
	// keys never expire.
	DefaultTTL time.Duration
}

func (c APIKeyConfig) registry(production bool) apikey.Config {
	return apikey.Config{
		Secret:               c.Secret,
		Prefix:               c.Prefix,
		RandomBytes:          c.RandomBytes,
		AllowEphemeralSecret: !production,
	}
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id costs for the default hasher and the
// policy applied to new passwords.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinLength      int
	RequireSpecial bool
	Strict         bool
}

func (c PasswordConfig) argon2() password.Config {
	return password.Config{
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
	}
}

func (c PasswordConfig) policy() password.Policy {
	return password.Policy{
		MinLength:      c.MinLength,
		RequireSpecial: c.RequireSpecial,
		Strict:         c.Strict,
	}
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds cross-cutting hardening switches.
type SecurityConfig struct {
	ProductionMode bool

	// EqualizeTiming runs a dummy password verification on the locked and
	// unknown-user paths so their latency matches a wrong password.
	EqualizeTiming bool

	// TrustProxyHeaders lets middleware read X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders    bool
	RequireSecureCookies bool
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// FlushTimeout bounds how long Close waits for queued events to reach
	// the sink. Zero waits indefinitely.
	FlushTimeout time.Duration
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the development defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	sess := session.DefaultConfig()
	pw := password.DefaultConfig()
	pol := password.DefaultPolicy()

	return Config{
		Session: SessionConfig{
			Timeout:              sess.Timeout,
			RememberMeMultiplier: sess.RememberMeMultiplier,
			MaxTimeout:           sess.MaxTimeout,
			MaxSessionsPerUser:   sess.MaxSessionsPerUser,
			SweepInterval:        sess.SweepInterval,
			CookieName:           "session_id",
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			Profile:         ratelimit.ProfileHomelab,
			CleanupInterval: ratelimit.DefaultCleanupInterval,
			RedisPrefix:     "rl:",
			SkipPaths:       []string{"/healthz", "/readyz", "/metrics", "/static/"},
		},
		Lockout: LockoutConfig{
			MaxAttempts:     lockout.DefaultMaxAttempts,
			Duration:        lockout.DefaultDuration,
			CleanupInterval: lockout.DefaultCleanupInterval,
		},
		APIKey: APIKeyConfig{
			Prefix:      apikey.DefaultPrefix,
			RandomBytes: apikey.DefaultRandomBytes,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			MinLength:      pol.MinLength,
			RequireSpecial: pol.RequireSpecial,
			Strict:         pol.Strict,
		},
		Security: SecurityConfig{
			EqualizeTiming: true,
		},
		Audit: AuditConfig{
			Enabled:      false,
			BufferSize:   1024,
			DropIfFull:   true,
			FlushTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// ProductionConfig returns DefaultConfig hardened for deployment. The API
// key secret must still be supplied.
func ProductionConfig() Config {
	cfg := defaultConfig()
	cfg.RateLimit.Profile = ratelimit.ProfileProduction
	cfg.Password.RequireSpecial = true
	cfg.Password.Strict = true
	cfg.Security.ProductionMode = true
	cfg.Security.RequireSecureCookies = true
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.RateLimit.SkipPaths != nil {
		out.RateLimit.SkipPaths = append([]string(nil), cfg.RateLimit.SkipPaths...)
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	if err := c.Session.store().Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		return errors.New("Session CookieName must be set")
	}

	if c.RateLimit.Enabled {
		p, err := c.RateLimit.Policies()
		if err != nil {
			return err
		}
		for name, pol := range map[string]ratelimit.Policy{"IP": p.IP, "APIKey": p.APIKey, "Burst": p.Burst} {
			if err := pol.Validate(); err != nil {
				return fmt.Errorf("RateLimit %s: %w", name, err)
			}
		}
		if c.RateLimit.CleanupInterval < 0 {
			return errors.New("RateLimit CleanupInterval must be >= 0")
		}
	}

	if c.Lockout.MaxAttempts < 1 {
		return errors.New("Lockout MaxAttempts must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}
	if c.Lockout.CleanupInterval < 0 {
		return errors.New("Lockout CleanupInterval must be >= 0")
	}

	if c.APIKey.RandomBytes != 0 && c.APIKey.RandomBytes < 16 {
		return errors.New("APIKey RandomBytes must be >= 16")
	}
	if c.APIKey.DefaultTTL < 0 {
		return errors.New("APIKey DefaultTTL must be >= 0")
	}

	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Audit.FlushTimeout < 0 {
		return errors.New("Audit FlushTimeout must be >= 0")
	}

	if c.Security.ProductionMode {
		if c.APIKey.Secret == "" {
			return errors.New("ProductionMode requires APIKey Secret")
		}
		if len(c.APIKey.Secret) < 32 {
			return errors.New("ProductionMode requires APIKey Secret of at least 32 bytes")
		}
		if c.Password.Memory < 64*1024 {
			return errors.New("ProductionMode requires Password Memory >= 65536 KB")
		}
		if c.Password.Time < 3 {
			return errors.New("ProductionMode requires Password Time >= 3")
		}
		if c.Password.Parallelism < 4 {
			return errors.New("ProductionMode requires Password Parallelism >= 4")
		}
		if c.Password.KeyLength < 32 {
			return errors.New("ProductionMode requires Password KeyLength >= 32")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("ProductionMode requires Password SaltLength >= 16")
		}
		if !c.Security.RequireSecureCookies {
			return errors.New("ProductionMode requires RequireSecureCookies")
		}
		if !c.RateLimit.Enabled {
			return errors.New("ProductionMode requires RateLimit Enabled")
		}
	}

	return nil
}
