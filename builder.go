package authstate

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/authstate/apikey"
	"github.com/MrEthical07/authstate/clock"
	internalaudit "github.com/MrEthical07/authstate/internal/audit"
	"github.com/MrEthical07/authstate/lockout"
	"github.com/MrEthical07/authstate/logging"
	"github.com/MrEthical07/authstate/password"
	"github.com/MrEthical07/authstate/ratelimit"
	"github.com/MrEthical07/authstate/session"
	"github.com/redis/go-redis/v9"
)

// Rate limit rule names, reported as the X-RateLimit-Type header.
const (
	RuleBurst  = "burst-protection"
	RuleIP     = "ip-address"
	RuleAPIKey = "api-key"
)

// Builder assembles an [Engine]. Configure it during initialization, call
// Build once, and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider   UserProvider
	apiKeyProvider APIKeyProvider
	hasher         PasswordHasher
	auditSink      AuditSink
	clock          clock.Clock
	logger         *slog.Logger

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis moves lockout tracking and request rate limiting onto a shared
// Redis backend. Sessions always stay in process memory.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAPIKeyProvider sets API key persistence. Without it keys live in an
// [apikey.MemoryStore] and vanish on restart.
func (b *Builder) WithAPIKeyProvider(p APIKeyProvider) *Builder {
	b.apiKeyProvider = p
	return b
}

// WithPasswordHasher replaces the Argon2id hasher built from
// Config.Password.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock injects the time source shared by every component.
func (b *Builder) WithClock(c clock.Clock) *Builder {
	b.clock = c
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and constructs every component. The
// returned Engine is usable immediately; call Start to run background
// cleanup and Close on shutdown.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	logger := logging.OrDefault(b.logger)
	clk := clock.OrSystem(b.clock)

	engine := &Engine{
		config:  cfg,
		redis:   b.redis,
		clock:   clk,
		logger:  logger,
		users:   b.userProvider,
		apiKeys: b.apiKeyProvider,
		hasher:  b.hasher,
		policy:  cfg.Password.policy(),
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- SESSIONS --------
	store, err := session.NewStore(cfg.Session.store(),
		session.WithClock(clk),
		session.WithLogger(logger),
		session.WithEvictionHook(engine.onSessionEvicted),
	)
	if err != nil {
		return nil, err
	}
	engine.sessions = store

	// -------- LOCKOUT --------
	if b.redis != nil {
		rt, err := lockout.NewRedisTracker(b.redis, cfg.Lockout.tracker(), clk)
		if err != nil {
			return nil, err
		}
		engine.lockout = rt
		engine.lockoutBackend = "redis"
	} else {
		mt, err := lockout.NewTracker(cfg.Lockout.tracker(), lockout.WithClock(clk), lockout.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		engine.lockout = mt
		engine.tracker = mt
		engine.lockoutBackend = "memory"
	}

	// -------- API KEYS --------
	registry, err := apikey.NewRegistry(cfg.APIKey.registry(cfg.Security.ProductionMode), logger)
	if err != nil {
		return nil, err
	}
	engine.keys = registry
	if engine.apiKeys == nil {
		engine.apiKeys = apikey.NewMemoryStore()
	}

	// -------- PASSWORDS --------
	if engine.hasher == nil {
		ph, err := password.NewArgon2(cfg.Password.argon2())
		if err != nil {
			return nil, err
		}
		engine.hasher = ph
	}

	// -------- RATE LIMITS --------
	if cfg.RateLimit.Enabled {
		if err := engine.buildRateLimits(b.redis); err != nil {
			return nil, err
		}
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:      cfg.Audit.Enabled,
		BufferSize:   cfg.Audit.BufferSize,
		DropIfFull:   cfg.Audit.DropIfFull,
		FlushTimeout: cfg.Audit.FlushTimeout,
		Clock:        clk,
		Logger:       logger.With(slog.String("component", "audit")),
	}, b.auditSink)

	engine.state.Store(stateReady)
	b.built = true

	return engine, nil
}

func (e *Engine) buildRateLimits(client redis.UniversalClient) error {
	profile, err := e.config.RateLimit.Policies()
	if err != nil {
		return err
	}

	e.windows = make(map[string]*ratelimit.SlidingWindow, 3)
	newLimiter := func(rule string, p ratelimit.Policy) (ratelimit.Limiter, error) {
		if client != nil {
			return ratelimit.NewRedisSlidingWindow(client, p,
				ratelimit.WithClock(e.clock),
				ratelimit.WithKeyPrefix(e.config.RateLimit.RedisPrefix+rule+":"),
			)
		}
		sw, err := ratelimit.NewSlidingWindow(p,
			ratelimit.WithClock(e.clock),
			ratelimit.WithLogger(e.logger.With(slog.String("limiter", rule))),
			ratelimit.WithCleanupInterval(e.config.RateLimit.CleanupInterval),
		)
		if err != nil {
			return nil, err
		}
		e.windows[rule] = sw
		return sw, nil
	}

	burst, err := newLimiter(RuleBurst, profile.Burst)
	if err != nil {
		return fmt.Errorf("burst limiter: %w", err)
	}
	ip, err := newLimiter(RuleIP, profile.IP)
	if err != nil {
		return fmt.Errorf("ip limiter: %w", err)
	}
	key, err := newLimiter(RuleAPIKey, profile.APIKey)
	if err != nil {
		return fmt.Errorf("api key limiter: %w", err)
	}

	// Shorter window first so a burst rejection never consumes sustained quota.
	if e.ipLimits, err = ratelimit.NewChain(
		ratelimit.Rule{Name: RuleBurst, Limiter: burst},
		ratelimit.Rule{Name: RuleIP, Limiter: ip},
	); err != nil {
		return err
	}
	if e.apiKeyLimits, err = ratelimit.NewChain(
		ratelimit.Rule{Name: RuleBurst, Limiter: burst},
		ratelimit.Rule{Name: RuleAPIKey, Limiter: key},
	); err != nil {
		return err
	}

	e.rateLimitBackend = "memory"
	if client != nil {
		e.rateLimitBackend = "redis"
	}
	return nil
}
