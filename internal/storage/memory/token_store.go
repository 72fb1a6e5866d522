package memory

import (
	"context"
	"sort"
	"sync"

	"pump-candles/internal/domain"
	"pump-candles/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*domain.AssetMetadata // keyed by mint, nil value = metadata unknown
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]*domain.AssetMetadata),
	}
}

// GetToken returns metadata by mint. Returns ErrNotFound if the mint is unknown.
func (s *TokenStore) GetToken(_ context.Context, mint string) (*domain.AssetMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.tokens[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyMetadata(m), nil
}

// UpsertToken records a mint; nil metadata never clears existing metadata.
func (s *TokenStore) UpsertToken(_ context.Context, mint string, meta *domain.AssetMetadata) error {
	if mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if meta == nil {
		if _, exists := s.tokens[mint]; !exists {
			s.tokens[mint] = nil
		}
		return nil
	}

	s.tokens[mint] = copyMetadata(meta)
	return nil
}

// ListTokens returns all known mints ordered by mint.
func (s *TokenStore) ListTokens(_ context.Context) ([]domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Token, 0, len(s.tokens))
	for mint, m := range s.tokens {
		result = append(result, domain.Token{Mint: mint, Metadata: copyMetadata(m)})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Mint < result[j].Mint
	})

	return result, nil
}

func copyMetadata(m *domain.AssetMetadata) *domain.AssetMetadata {
	if m == nil {
		return nil
	}
	metaCopy := *m
	return &metaCopy
}

var _ storage.TokenStore = (*TokenStore)(nil)
