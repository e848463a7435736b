package auth

import (
	"context"
	"sync"
)

// MemoryCredentialStore keeps the token in process memory. Every write bumps
// the version so it can back a CredentialWatcher in tests.
type MemoryCredentialStore struct {
	mu      sync.RWMutex
	token   string
	version int64
}

var _ VersionedCredentialStore = (*MemoryCredentialStore)(nil)

// NewMemoryCredentialStore returns an empty store
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

func (m *MemoryCredentialStore) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return "", ErrNoCredential
	}
	return m.token, nil
}

func (m *MemoryCredentialStore) Save(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.version++
	return nil
}

func (m *MemoryCredentialStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.version++
	return nil
}

func (m *MemoryCredentialStore) Version(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version, nil
}
