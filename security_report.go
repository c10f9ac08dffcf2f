package authstate

import "time"

// SecurityReport summarizes the effective security posture of an Engine
// for startup logs and health endpoints. It never contains secrets.
type SecurityReport struct {
	ProductionMode       bool
	SessionTimeout       time.Duration
	MaxSessionTimeout    time.Duration
	MaxSessionsPerUser   int
	LockoutMaxAttempts   int
	LockoutDuration      time.Duration
	LockoutBackend       string
	RateLimitingActive   bool
	RateLimitProfile     string
	RateLimitBackend     string
	APIKeySecretSet      bool
	EqualizeTiming       bool
	TrustProxyHeaders    bool
	RequireSecureCookies bool
	StrictPasswordPolicy bool
	AuditEnabled         bool
	Argon2               PasswordConfigReport
}

// PasswordConfigReport lists the Argon2id cost parameters in use.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	c := e.config
	return SecurityReport{
		ProductionMode:       c.Security.ProductionMode,
		SessionTimeout:       c.Session.Timeout,
		MaxSessionTimeout:    c.Session.MaxTimeout,
		MaxSessionsPerUser:   c.Session.MaxSessionsPerUser,
		LockoutMaxAttempts:   c.Lockout.MaxAttempts,
		LockoutDuration:      c.Lockout.Duration,
		LockoutBackend:       e.lockoutBackend,
		RateLimitingActive:   c.RateLimit.Enabled,
		RateLimitProfile:     c.RateLimit.Profile,
		RateLimitBackend:     e.rateLimitBackend,
		APIKeySecretSet:      c.APIKey.Secret != "",
		EqualizeTiming:       c.Security.EqualizeTiming,
		TrustProxyHeaders:    c.Security.TrustProxyHeaders,
		RequireSecureCookies: c.Security.RequireSecureCookies,
		StrictPasswordPolicy: c.Password.Strict,
		AuditEnabled:         c.Audit.Enabled,
		Argon2: PasswordConfigReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
	}
}
