package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"chat-keystore/models"
)

// memoryBackend is an in-process Backend for gateway tests
type memoryBackend struct {
	mu      sync.Mutex
	tokens  map[string]models.APIToken
	failing error
	closed  bool
	pings   int
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{tokens: make(map[string]models.APIToken)}
}

func memKey(userID string, provider models.Provider) string {
	return userID + "/" + string(provider)
}

func (m *memoryBackend) fail(err error) {
	m.mu.Lock()
	m.failing = err
	m.mu.Unlock()
}

func (m *memoryBackend) FindToken(ctx context.Context, userID string, provider models.Provider, activeOnly bool) (*models.APIToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return nil, m.failing
	}
	t, ok := m.tokens[memKey(userID, provider)]
	if !ok || (activeOnly && !t.IsActive) {
		return nil, nil
	}
	return &t, nil
}

func (m *memoryBackend) FindActiveTokens(ctx context.Context, userID string) ([]models.APIToken, error) {
	all, err := m.ListTokens(ctx, userID)
	if err != nil {
		return nil, err
	}
	var active []models.APIToken
	for _, t := range all {
		if t.IsActive {
			active = append(active, t)
		}
	}
	return active, nil
}

func (m *memoryBackend) ListTokens(ctx context.Context, userID string) ([]models.APIToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return nil, m.failing
	}
	var out []models.APIToken
	for _, t := range m.tokens {
		if userID == "" || t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return memKey(out[i].UserID, out[i].Provider) < memKey(out[j].UserID, out[j].Provider)
	})
	return out, nil
}

func (m *memoryBackend) UpsertToken(ctx context.Context, token *models.APIToken) (*models.APIToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return nil, m.failing
	}
	k := memKey(token.UserID, token.Provider)
	t, ok := m.tokens[k]
	if !ok {
		t = *token
	}
	t.APIKey = token.APIKey
	t.IsActive = true
	t.UpdatedAt = token.UpdatedAt
	m.tokens[k] = t
	return &t, nil
}

func (m *memoryBackend) DeactivateToken(ctx context.Context, userID string, provider models.Provider) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return false, m.failing
	}
	k := memKey(userID, provider)
	t, ok := m.tokens[k]
	if !ok {
		return false, nil
	}
	t.IsActive = false
	t.UpdatedAt = time.Now().UTC()
	m.tokens[k] = t
	return true, nil
}

func (m *memoryBackend) Migrate(ctx context.Context, up bool) error {
	if !up {
		m.mu.Lock()
		m.tokens = make(map[string]models.APIToken)
		m.mu.Unlock()
	}
	return nil
}

func (m *memoryBackend) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings++
	return m.failing
}

func (m *memoryBackend) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("already closed")
	}
	m.closed = true
	return nil
}
