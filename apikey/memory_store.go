package apikey

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrKeyNotFound is returned when no key matches.
	ErrKeyNotFound = errors.New("api key not found")
	// ErrDuplicateKey is returned when saving a hash or ID twice.
	ErrDuplicateKey = errors.New("api key already exists")
)

// MemoryStore keeps Key records in process memory, indexed by ID and by
// hash. Returned keys are copies.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Key
	byHash map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Key),
		byHash: make(map[string]string),
	}
}

// SaveAPIKey inserts k.
func (s *MemoryStore) SaveAPIKey(_ context.Context, k *Key) error {
	if k == nil || k.ID == "" || k.KeyHash == "" {
		return errors.New("api key requires ID and KeyHash")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[k.ID]; ok {
		return ErrDuplicateKey
	}
	if _, ok := s.byHash[k.KeyHash]; ok {
		return ErrDuplicateKey
	}
	s.byID[k.ID] = k.Clone()
	s.byHash[k.KeyHash] = k.ID
	return nil
}

// GetAPIKeyByHash returns the key stored under hash, or (nil, nil).
func (s *MemoryStore) GetAPIKeyByHash(_ context.Context, hash string) (*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, nil
	}
	return s.byID[id].Clone(), nil
}

// GetAPIKey returns the key with id.
func (s *MemoryStore) GetAPIKey(_ context.Context, id string) (*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.byID[id]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return k.Clone(), nil
}

// RecordAPIKeyUsage applies Key.RecordUsage to the stored record.
func (s *MemoryStore) RecordAPIKeyUsage(_ context.Context, id string, at time.Time, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.byID[id]
	if !ok {
		return ErrKeyNotFound
	}
	k.RecordUsage(at, ip)
	return nil
}

// RevokeAPIKey applies Key.Revoke to the stored record.
func (s *MemoryStore) RevokeAPIKey(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.byID[id]
	if !ok {
		return ErrKeyNotFound
	}
	k.Revoke(at)
	return nil
}

// ListAPIKeys returns the owner's keys, oldest first.
func (s *MemoryStore) ListAPIKeys(_ context.Context, ownerUserID string) ([]*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Key
	for _, k := range s.byID {
		if k.OwnerUserID == ownerUserID {
			out = append(out, k.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
