package authstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authstate/apikey"
	"github.com/MrEthical07/authstate/internal"
)

// AuthenticateAPIKey checks a plaintext API key. The format is checked
// before any lookup, then the stored record must be unrevoked, active,
// unexpired, and owned by an active user. Usage is recorded on success.
// Failed key checks do not feed the lockout tracker.
func (e *Engine) AuthenticateAPIKey(ctx context.Context, plainKey, ip string) (*Result, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	defer e.observeLatency(MetricAPIKeyLatency, time.Now())

	if ip == "" {
		ip = ClientIPFromContext(ctx)
	} else if ClientIPFromContext(ctx) == "" {
		ctx = WithClientIP(ctx, ip)
	}

	if !e.keys.ValidateFormat(plainKey) {
		return e.apiKeyFailed(ctx, nil, ReasonMalformedKey), nil
	}

	key, err := e.apiKeys.GetAPIKeyByHash(ctx, e.keys.Hash(plainKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAPIKeyProvider, err)
	}
	if key == nil || !e.keys.Verify(plainKey, key.KeyHash) {
		return e.apiKeyFailed(ctx, nil, ReasonUnknownKey), nil
	}

	now := e.clock.Now()
	switch {
	case key.IsRevoked():
		return e.apiKeyFailed(ctx, key, ReasonRevokedKey), nil
	case !key.IsActive:
		return e.apiKeyFailed(ctx, key, ReasonInactiveKey), nil
	case key.IsExpired(now):
		return e.apiKeyFailed(ctx, key, ReasonExpiredKey), nil
	}

	owner, err := e.lookupUser(ctx, func() (*User, error) {
		return e.users.GetUserByID(ctx, key.OwnerUserID)
	})
	if err != nil {
		return nil, err
	}
	if owner == nil || !owner.IsActive {
		return e.apiKeyFailed(ctx, key, ReasonKeyOwnerInactive), nil
	}

	if err := e.apiKeys.RecordAPIKeyUsage(ctx, key.ID, now, ip); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAPIKeyProvider, err)
	}
	key.RecordUsage(now, ip)

	e.metricInc(MetricAPIKeySuccess)
	e.emitAudit(ctx, auditEventAPIKeySuccess, true, owner.ID, owner.Username, "", ReasonNone, func() map[string]string {
		return map[string]string{"key_id": key.ID}
	})

	return &Result{
		Success: true,
		User:    publicUser(owner),
		APIKey:  key,
	}, nil
}

func (e *Engine) apiKeyFailed(ctx context.Context, key *apikey.Key, reason FailureReason) *Result {
	e.metricInc(MetricAPIKeyFailure)

	attrs := []any{
		slog.String("reason", string(reason)),
		slog.String("ip", internal.SanitizeForLog(ClientIPFromContext(ctx))),
	}
	userID := ""
	var metadata func() map[string]string
	if key != nil {
		userID = key.OwnerUserID
		attrs = append(attrs, slog.String("key_id", key.ID))
		metadata = func() map[string]string {
			return map[string]string{"key_id": key.ID}
		}
	}

	e.emitAudit(ctx, auditEventAPIKeyFailure, false, userID, "", "", reason, metadata)
	e.logger.Warn("api key authentication failed", attrs...)
	return failure(reason)
}

// IssueAPIKey creates a key for userID. A zero ttl falls back to
// APIKey.DefaultTTL; a zero DefaultTTL means the key never expires. The
// returned plaintext is the only copy.
func (e *Engine) IssueAPIKey(ctx context.Context, userID, name string, ttl time.Duration) (*IssuedAPIKey, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	owner, err := e.lookupUser(ctx, func() (*User, error) {
		return e.users.GetUserByID(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	if owner == nil || !owner.IsActive {
		return nil, ErrUserNotFound
	}

	if ttl == 0 {
		ttl = e.config.APIKey.DefaultTTL
	}
	plain, hash, err := e.keys.Generate()
	if err != nil {
		return nil, err
	}
	key := apikey.NewKey(owner.ID, name, hash, e.clock.Now(), ttl)
	if err := e.apiKeys.SaveAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAPIKeyProvider, err)
	}

	e.metricInc(MetricAPIKeyIssued)
	e.emitAudit(ctx, auditEventAPIKeyIssued, true, owner.ID, owner.Username, "", ReasonNone, func() map[string]string {
		return map[string]string{"key_id": key.ID, "name": name}
	})
	e.logger.Info("api key issued",
		slog.String("user_id", owner.ID),
		slog.String("key_id", key.ID),
	)

	return &IssuedAPIKey{Plaintext: plain, Key: key.Clone()}, nil
}

// RevokeAPIKey permanently disables keyID.
func (e *Engine) RevokeAPIKey(ctx context.Context, keyID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	err := e.apiKeys.RevokeAPIKey(ctx, keyID, e.clock.Now())
	switch {
	case errors.Is(err, apikey.ErrKeyNotFound), errors.Is(err, ErrAPIKeyNotFound):
		return ErrAPIKeyNotFound
	case err != nil:
		return fmt.Errorf("%w: %w", ErrAPIKeyProvider, err)
	}

	e.metricInc(MetricAPIKeyRevoked)
	e.emitAudit(ctx, auditEventAPIKeyRevoked, true, "", "", "", ReasonNone, func() map[string]string {
		return map[string]string{"key_id": keyID}
	})
	return nil
}
