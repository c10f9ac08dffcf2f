package apikey

import (
	"time"

	"github.com/google/uuid"
)

// DefaultRateLimitPerHour is the per-key request allowance recorded on new keys.
const DefaultRateLimitPerHour = 1000

// Key is the stored form of an API credential.
type Key struct {
	ID               string
	Name             string
	Description      string
	KeyHash          string
	OwnerUserID      string
	Scopes           []string
	RateLimitPerHour int
	CreatedAt        time.Time
	ExpiresAt        *time.Time
	RevokedAt        *time.Time
	IsActive         bool
	UsageCount       int64
	LastUsedAt       *time.Time
	LastUsedIP       string
}

// NewKey builds an active record for hash. A zero ttl means no expiry.
func NewKey(ownerUserID, name, hash string, now time.Time, ttl time.Duration) *Key {
	k := &Key{
		ID:               uuid.NewString(),
		Name:             name,
		KeyHash:          hash,
		OwnerUserID:      ownerUserID,
		Scopes:           []string{"admin"},
		RateLimitPerHour: DefaultRateLimitPerHour,
		CreatedAt:        now,
		IsActive:         true,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		k.ExpiresAt = &exp
	}
	return k
}

// IsExpired reports whether an expiry is set and now is past it.
func (k *Key) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// IsRevoked reports whether the key was ever revoked.
func (k *Key) IsRevoked() bool {
	return k.RevokedAt != nil
}

// IsValid is active, not expired, and not revoked.
func (k *Key) IsValid(now time.Time) bool {
	return k.IsActive && !k.IsExpired(now) && !k.IsRevoked()
}

// Revoke permanently disables the key. Revoking twice keeps the first
// revocation time.
func (k *Key) Revoke(now time.Time) {
	k.IsActive = false
	if k.RevokedAt == nil {
		k.RevokedAt = &now
	}
}

// RecordUsage bumps the usage counter and last-use fields.
func (k *Key) RecordUsage(now time.Time, ip string) {
	k.UsageCount++
	k.LastUsedAt = &now
	if ip != "" {
		k.LastUsedIP = ip
	}
}

// Clone returns a deep copy.
func (k *Key) Clone() *Key {
	if k == nil {
		return nil
	}
	out := *k
	out.Scopes = append([]string(nil), k.Scopes...)
	out.ExpiresAt = cloneTime(k.ExpiresAt)
	out.RevokedAt = cloneTime(k.RevokedAt)
	out.LastUsedAt = cloneTime(k.LastUsedAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
