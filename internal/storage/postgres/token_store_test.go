package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pump-candles/internal/domain"
	"pump-candles/internal/storage"
)

func TestTokenStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)

	meta := &domain.AssetMetadata{Name: "Test Token", Symbol: "TST", URI: "https://example.com/tst.json"}
	require.NoError(t, store.UpsertToken(ctx, "MintMeta1", meta))

	retrieved, err := store.GetToken(ctx, "MintMeta1")
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, *meta, *retrieved)

	updated := &domain.AssetMetadata{Name: "Renamed", Symbol: "RN", URI: ""}
	require.NoError(t, store.UpsertToken(ctx, "MintMeta1", updated))

	retrieved, err = store.GetToken(ctx, "MintMeta1")
	require.NoError(t, err)
	assert.Equal(t, *updated, *retrieved)
}

func TestTokenStore_NilMetadata(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)

	require.NoError(t, store.UpsertToken(ctx, "MintBare", nil))

	retrieved, err := store.GetToken(ctx, "MintBare")
	require.NoError(t, err)
	assert.Nil(t, retrieved)

	meta := &domain.AssetMetadata{Name: "Later", Symbol: "LT"}
	require.NoError(t, store.UpsertToken(ctx, "MintBare", meta))
	require.NoError(t, store.UpsertToken(ctx, "MintBare", nil))

	retrieved, err = store.GetToken(ctx, "MintBare")
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, "Later", retrieved.Name)
}

func TestTokenStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTokenStore(pool)

	_, err := store.GetToken(context.Background(), "Missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTokenStore_ListTokens(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)

	require.NoError(t, store.UpsertToken(ctx, "MintB", nil))
	require.NoError(t, store.UpsertToken(ctx, "MintA", &domain.AssetMetadata{Name: "A", Symbol: "A"}))

	tokens, err := store.ListTokens(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	assert.Equal(t, "MintA", tokens[0].Mint)
	require.NotNil(t, tokens[0].Metadata)
	assert.Equal(t, "A", tokens[0].Metadata.Name)

	assert.Equal(t, "MintB", tokens[1].Mint)
	assert.Nil(t, tokens[1].Metadata)
}
