package tokenstore

import (
	"context"
	"sync"

	"github.com/newsdesk/console/internal/domain"
)

// MemoryStore keeps the pair in process memory. It backs the "memory"
// console backend and the tests.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]string
	// fail, when set, is returned wrapped from every operation.
	fail error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string, 2)}
}

// Save stores both tokens.
func (s *MemoryStore) Save(_ context.Context, pair domain.CredentialPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return unavailable("save tokens", s.fail)
	}
	s.data[domain.AccessTokenKey] = pair.AccessToken.Expose()
	s.data[domain.RefreshTokenKey] = pair.RefreshToken.Expose()
	return nil
}

// Clear removes both tokens.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return unavailable("clear tokens", s.fail)
	}
	delete(s.data, domain.AccessTokenKey)
	delete(s.data, domain.RefreshTokenKey)
	return nil
}

// AccessToken returns the stored access token.
func (s *MemoryStore) AccessToken(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", unavailable("read access token", s.fail)
	}
	return s.data[domain.AccessTokenKey], nil
}

// Keys returns a copy of the raw key/value contents.
func (s *MemoryStore) Keys() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// SetFailure makes every subsequent operation fail with err until it is
// called again with nil. It simulates disabled persistence.
func (s *MemoryStore) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// MemoryFactory hands out one MemoryStore per client ID. Stores holding
// tokens are kept for the life of the process, so a client that is evicted
// and comes back still finds them; Forget drops the empty ones.
type MemoryFactory struct {
	mu     sync.Mutex
	stores map[string]*MemoryStore
}

// NewMemoryFactory creates an empty MemoryFactory.
func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{stores: make(map[string]*MemoryStore)}
}

// For returns the store for clientID, creating it on first use.
func (f *MemoryFactory) For(clientID string) Store {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stores[clientID]
	if !ok {
		s = NewMemoryStore()
		f.stores[clientID] = s
	}
	return s
}

// Forget drops the store for clientID if it holds no tokens.
func (f *MemoryFactory) Forget(clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stores[clientID]
	if !ok {
		return
	}
	s.mu.Lock()
	empty := len(s.data) == 0
	s.mu.Unlock()
	if empty {
		delete(f.stores, clientID)
	}
}

// Len returns the number of stores held.
func (f *MemoryFactory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stores)
}
