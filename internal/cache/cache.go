package cache

import (
	"context"
	"sync"
	"time"

	"pharmaledger/backend/internal/domain"
)

// SettingsCache holds per-tenant settings keyed by tenant id.
type SettingsCache interface {
	Get(ctx context.Context, tenantID string) (*domain.Settings, bool, error)
	Set(ctx context.Context, tenantID string, value *domain.Settings, ttl time.Duration) error
	Delete(ctx context.Context, tenantID string) error
}

type NoopSettingsCache struct{}

func (NoopSettingsCache) Get(_ context.Context, _ string) (*domain.Settings, bool, error) {
	return nil, false, nil
}

func (NoopSettingsCache) Set(_ context.Context, _ string, _ *domain.Settings, _ time.Duration) error {
	return nil
}

func (NoopSettingsCache) Delete(_ context.Context, _ string) error {
	return nil
}

// MemorySettingsCache is an in-process cache for single node deployments.
type MemorySettingsCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     domain.Settings
	expiresAt time.Time
}

func NewMemorySettingsCache() *MemorySettingsCache {
	return &MemorySettingsCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemorySettingsCache) Get(_ context.Context, tenantID string) (*domain.Settings, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[tenantID]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		delete(c.entries, tenantID)
		return nil, false, nil
	}
	value := entry.value
	return &value, true, nil
}

func (c *MemorySettingsCache) Set(_ context.Context, tenantID string, value *domain.Settings, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{value: *value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[tenantID] = entry
	return nil
}

func (c *MemorySettingsCache) Delete(_ context.Context, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, tenantID)
	return nil
}
