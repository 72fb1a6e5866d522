package storage

import (
	"context"

	"pump-candles/internal/domain"
)

// CandleTier is one storage tier holding OHLCV candles keyed by (mint, resolution, bucket).
// Implementations apply merges with the candle merge semantics: open is set only
// when the bucket is new, close is overwritten, high/low keep the extremes and
// volume accumulates.
type CandleTier interface {
	// ApplyMerges applies the merges of a single trade.
	ApplyMerges(ctx context.Context, merges []domain.CandleMerge) error

	// TradesSince returns candles with bucket >= from (unix seconds), ordered by bucket ASC.
	// An unknown mint yields an empty slice.
	TradesSince(ctx context.Context, mint string, res domain.Resolution, from int64) ([]domain.TradeOhlcv, error)

	// LastTrade returns the most recent candle. Returns ErrNotFound if none is stored.
	LastTrade(ctx context.Context, mint string, res domain.Resolution) (domain.TradeOhlcv, error)

	// LatestBefore returns the most recent candle with bucket < before.
	// Returns ErrNotFound if none is stored.
	LatestBefore(ctx context.Context, mint string, res domain.Resolution, before int64) (domain.TradeOhlcv, error)
}

// TokenStore provides access to known mints and their metadata.
type TokenStore interface {
	// GetToken returns the metadata of a mint. Returns ErrNotFound if the mint is unknown.
	// A known mint without metadata yields (nil, nil).
	GetToken(ctx context.Context, mint string) (*domain.AssetMetadata, error)

	// UpsertToken records a mint. Non-nil metadata replaces the stored metadata;
	// nil metadata only makes sure the mint is known.
	UpsertToken(ctx context.Context, mint string, meta *domain.AssetMetadata) error

	// ListTokens returns all known mints ordered by mint.
	ListTokens(ctx context.Context) ([]domain.Token, error)
}
