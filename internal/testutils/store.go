package testutils

import (
	"context"
	"slices"
	"sync"

	"github.com/lessucettes/adresu-automod/internal/config"
	"github.com/lessucettes/adresu-automod/internal/store"
)

// InMemoryStore is a map-backed store.Store for tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	ledgers   map[string]store.Ledger
	overrides map[string]config.GuildOverrides

	errToReturn   error
	overrideReads int
}

var _ store.Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		ledgers:   make(map[string]store.Ledger),
		overrides: make(map[string]config.GuildOverrides),
	}
}

// SetError makes every subsequent call fail with err until ClearError.
func (s *InMemoryStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errToReturn = err
}

func (s *InMemoryStore) ClearError() { s.SetError(nil) }

// OverrideReads reports how many times GuildOverrides reached the store.
func (s *InMemoryStore) OverrideReads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overrideReads
}

func key(guildID, userID string) string { return guildID + "/" + userID }

func (s *InMemoryStore) AppendWarning(ctx context.Context, guildID, userID string, rec store.WarningRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errToReturn != nil {
		return s.errToReturn
	}
	k := key(guildID, userID)
	s.ledgers[k] = append(s.ledgers[k], rec)
	return nil
}

func (s *InMemoryStore) CountActive(ctx context.Context, guildID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.errToReturn != nil {
		return 0, s.errToReturn
	}
	return s.ledgers[key(guildID, userID)].Active(), nil
}

func (s *InMemoryStore) Warnings(ctx context.Context, guildID, userID string) ([]store.WarningRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.errToReturn != nil {
		return nil, s.errToReturn
	}
	return slices.Clone(s.ledgers[key(guildID, userID)]), nil
}

func (s *InMemoryStore) ClearWarning(ctx context.Context, guildID, userID, recordID string, info store.ClearInfo) (store.WarningRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errToReturn != nil {
		return store.WarningRecord{}, s.errToReturn
	}
	return s.ledgers[key(guildID, userID)].Clear(recordID, info)
}

func (s *InMemoryStore) ClearAll(ctx context.Context, guildID, userID string, info store.ClearInfo) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errToReturn != nil {
		return 0, s.errToReturn
	}
	return s.ledgers[key(guildID, userID)].ClearAll(info), nil
}

func (s *InMemoryStore) GuildOverrides(ctx context.Context, guildID string) (*config.GuildOverrides, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrideReads++
	if s.errToReturn != nil {
		return nil, s.errToReturn
	}
	o, ok := s.overrides[guildID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *InMemoryStore) PutGuildOverrides(ctx context.Context, guildID string, o config.GuildOverrides) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errToReturn != nil {
		return s.errToReturn
	}
	s.overrides[guildID] = o
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
