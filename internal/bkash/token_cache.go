package bkash

import (
	"context"
	"sync"
	"time"
)

// TokenCache stores the bearer token issued by the grant endpoint.
type TokenCache interface {
	Get(ctx context.Context) (string, bool, error)
	Set(ctx context.Context, token string, ttl time.Duration) error
	Delete(ctx context.Context) error
}

// MemoryTokenCache is a process-local TokenCache.
type MemoryTokenCache struct {
	mu    sync.Mutex
	token string
	exp   time.Time
	now   func() time.Time
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{now: time.Now}
}

func (m *MemoryTokenCache) Get(context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" || !m.now().Before(m.exp) {
		return "", false, nil
	}
	return m.token, true, nil
}

func (m *MemoryTokenCache) Set(_ context.Context, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.exp = token, m.now().Add(ttl)
	return nil
}

func (m *MemoryTokenCache) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}
