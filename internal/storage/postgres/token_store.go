package postgres

import (
	"context"
	"fmt"

	"pump-candles/internal/domain"
	"pump-candles/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// GetToken retrieves metadata by mint. Returns ErrNotFound if the mint is unknown.
func (s *TokenStore) GetToken(ctx context.Context, mint string) (*domain.AssetMetadata, error) {
	query := `
		SELECT name, symbol, uri
		FROM tokens
		WHERE mint = $1
	`

	var name, symbol, uri *string
	err := s.pool.QueryRow(ctx, query, mint).Scan(&name, &symbol, &uri)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}

	return toMetadata(name, symbol, uri), nil
}

// UpsertToken records a mint. Nil metadata leaves existing columns untouched.
func (s *TokenStore) UpsertToken(ctx context.Context, mint string, meta *domain.AssetMetadata) error {
	if mint == "" {
		return storage.ErrInvalidInput
	}

	if meta == nil {
		query := `INSERT INTO tokens (mint) VALUES ($1) ON CONFLICT (mint) DO NOTHING`
		if _, err := s.pool.Exec(ctx, query, mint); err != nil {
			return fmt.Errorf("insert token: %w", err)
		}
		return nil
	}

	query := `
		INSERT INTO tokens (mint, name, symbol, uri)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (mint) DO UPDATE SET
			name   = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			uri    = EXCLUDED.uri
	`

	if _, err := s.pool.Exec(ctx, query, mint, meta.Name, meta.Symbol, meta.URI); err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

// ListTokens retrieves all known mints ordered by mint.
func (s *TokenStore) ListTokens(ctx context.Context) ([]domain.Token, error) {
	query := `
		SELECT mint, name, symbol, uri
		FROM tokens
		ORDER BY mint ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	result := []domain.Token{}
	for rows.Next() {
		var (
			mint              string
			name, symbol, uri *string
		)
		if err := rows.Scan(&mint, &name, &symbol, &uri); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		result = append(result, domain.Token{Mint: mint, Metadata: toMetadata(name, symbol, uri)})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}

	return result, nil
}

// toMetadata returns nil when the row carries no metadata.
func toMetadata(name, symbol, uri *string) *domain.AssetMetadata {
	if name == nil && symbol == nil && uri == nil {
		return nil
	}

	m := &domain.AssetMetadata{}
	if name != nil {
		m.Name = *name
	}
	if symbol != nil {
		m.Symbol = *symbol
	}
	if uri != nil {
		m.URI = *uri
	}
	return m
}
