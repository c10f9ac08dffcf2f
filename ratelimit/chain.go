package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
)

const chainStripes = 64

// Rule names one limiter inside a [Chain]. Name is reported back as the
// limiter type, e.g. "burst-protection" or "ip-address".
type Rule struct {
	Name    string
	Limiter Limiter
}

// Decision is the outcome of a chain evaluation.
type Decision struct {
	Allowed bool
	// Rule is the rejecting rule on rejection, otherwise the rule with the
	// least remaining quota.
	Rule string
	Info Info
}

// Chain evaluates its rules in order. A request is admitted only if every
// rule admits it. When rule i rejects, the slots already taken by rules
// 0..i-1 are released, so a rejected request is never counted anywhere.
//
// When every rule is an in-process [SlidingWindow], evaluations for the same
// key are serialized by a striped mutex. Chains with a networked limiter take
// no lock: each backend call is atomic per key on the server side, and no
// lock is ever held across backend I/O.
type Chain struct {
	rules   []Rule
	local   bool
	stripes [chainStripes]sync.Mutex
}

// NewChain returns a chain over rules in the given order. Every rule needs
// a limiter.
func NewChain(rules ...Rule) (*Chain, error) {
	if len(rules) == 0 {
		return nil, errors.New("rate limit chain requires at least one rule")
	}
	out := make([]Rule, len(rules))
	local := true
	for i, r := range rules {
		if r.Limiter == nil {
			return nil, fmt.Errorf("rate limit rule %q has no limiter", r.Name)
		}
		if _, ok := r.Limiter.(*SlidingWindow); !ok {
			local = false
		}
		out[i] = r
	}
	return &Chain{rules: out, local: local}, nil
}

func (c *Chain) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &c.stripes[h.Sum32()%chainStripes]
}

// Rules returns the rule names in evaluation order.
func (c *Chain) Rules() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name
	}
	return names
}

// Allow evaluates the chain for key. A backend error aborts evaluation,
// releases what was taken, and is returned.
func (c *Chain) Allow(ctx context.Context, key string) (Decision, error) {
	if c.local {
		mu := c.stripe(key)
		mu.Lock()
		defer mu.Unlock()
	}

	type taken struct {
		limiter Limiter
		info    Info
	}
	admitted := make([]taken, 0, len(c.rules))

	release := func() error {
		var errs []error
		for i := len(admitted) - 1; i >= 0; i-- {
			if err := admitted[i].limiter.Undo(ctx, key, admitted[i].info); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	var best Decision
	for i, rule := range c.rules {
		ok, info, err := rule.Limiter.Allow(ctx, key)
		if err != nil {
			return Decision{Rule: rule.Name}, errors.Join(err, release())
		}
		if !ok {
			if err := release(); err != nil {
				return Decision{Rule: rule.Name, Info: info}, err
			}
			return Decision{Allowed: false, Rule: rule.Name, Info: info}, nil
		}

		admitted = append(admitted, taken{limiter: rule.Limiter, info: info})
		if i == 0 || info.Remaining < best.Info.Remaining {
			best = Decision{Allowed: true, Rule: rule.Name, Info: info}
		}
	}

	return best, nil
}
