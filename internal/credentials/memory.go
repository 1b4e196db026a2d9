package credentials

import (
	"context"
	"sync"

	"github.com/seopulse/seopulse/internal/models"
)

type pairKey struct {
	projectID int
	provider  string
}

// MemoryStore is an in-memory Store used by tests and local tooling.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[pairKey]models.Credential
}

// NewMemoryStore creates an empty in-memory credential store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[pairKey]models.Credential)}
}

// Get returns the credential for a (project, provider) pair.
func (s *MemoryStore) Get(ctx context.Context, projectID int, provider string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[pairKey{projectID, provider}]
	if !ok {
		return nil, ErrNotFound
	}
	out := cred
	return &out, nil
}

// Put inserts or replaces the credential for its (project, provider) pair.
func (s *MemoryStore) Put(ctx context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds[pairKey{cred.ProjectID, cred.Provider}] = *cred
	return nil
}

// Len returns the number of stored credentials.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}
