package authstate

import (
	"context"
	"fmt"

	"github.com/MrEthical07/authstate/ratelimit"
)

// AllowRequest evaluates the request rate limits. An apiKey that passes
// the registry's format check is limited per credential (its fingerprint,
// never the key itself); anything else, including a malformed credential,
// is limited per client IP. Both share the burst rule. The returned
// Decision carries the values for the X-RateLimit-* response headers.
func (e *Engine) AllowRequest(ctx context.Context, ip, apiKey string) (ratelimit.Decision, error) {
	if err := e.ready(); err != nil {
		return ratelimit.Decision{}, err
	}
	if !e.config.RateLimit.Enabled {
		return ratelimit.Decision{Allowed: true}, ErrRateLimitDisabled
	}

	chain, key := e.ipLimits, ratelimit.IPKey(ip)
	if apiKey != "" && e.keys.ValidateFormat(apiKey) {
		chain, key = e.apiKeyLimits, ratelimit.APIKeyKey(apiKey)
	}

	d, err := chain.Allow(ctx, key)
	if err != nil {
		return d, fmt.Errorf("%w: %w", ErrRateLimitBackend, err)
	}
	if !d.Allowed {
		if ClientIPFromContext(ctx) == "" && ip != "" {
			ctx = WithClientIP(ctx, ip)
		}
		e.emitRateLimit(ctx, d.Rule, d.Info.Window)
	}
	return d, nil
}
