package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pump-candles/internal/domain"
	"pump-candles/internal/storage"
)

// CandleStore implements storage.CandleTier using PostgreSQL.
type CandleStore struct {
	pool *Pool
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(pool *Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CandleTier = (*CandleStore)(nil)

// ApplyMerges upserts the merges of one trade in a single statement.
// Merges must address distinct buckets.
func (s *CandleStore) ApplyMerges(ctx context.Context, merges []domain.CandleMerge) error {
	if len(merges) == 0 {
		return nil
	}

	mints := make([]string, len(merges))
	resolutions := make([]string, len(merges))
	buckets := make([]int64, len(merges))
	prices := make([]float64, len(merges))
	volumes := make([]float64, len(merges))
	for i, m := range merges {
		mints[i] = m.Key.Mint
		resolutions[i] = m.Key.Resolution.String()
		buckets[i] = m.Key.Bucket
		prices[i] = m.Price
		volumes[i] = m.Volume
	}

	query := `
		INSERT INTO candles (mint, resolution, bucket, open, close, high, low, volume)
		SELECT m.mint, m.resolution, to_timestamp(m.bucket), m.price, m.price, m.price, m.price, m.volume
		FROM unnest($1::text[], $2::text[], $3::bigint[], $4::float8[], $5::float8[])
			AS m(mint, resolution, bucket, price, volume)
		ON CONFLICT (mint, resolution, bucket) DO UPDATE SET
			close  = EXCLUDED.close,
			high   = GREATEST(candles.high, EXCLUDED.high),
			low    = LEAST(candles.low, EXCLUDED.low),
			volume = candles.volume + EXCLUDED.volume
	`

	if _, err := s.pool.Exec(ctx, query, mints, resolutions, buckets, prices, volumes); err != nil {
		return fmt.Errorf("upsert candles: %w", err)
	}
	return nil
}

// TradesSince retrieves candles with bucket >= from, ordered by bucket ASC.
func (s *CandleStore) TradesSince(ctx context.Context, mint string, res domain.Resolution, from int64) ([]domain.TradeOhlcv, error) {
	query := `
		SELECT extract(epoch FROM bucket)::bigint, open, close, high, low, volume
		FROM candles
		WHERE mint = $1 AND resolution = $2 AND bucket >= to_timestamp($3::bigint)
		ORDER BY bucket ASC
	`

	rows, err := s.pool.Query(ctx, query, mint, res.String(), from)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	result := []domain.TradeOhlcv{}
	for rows.Next() {
		point, err := scanCandle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		result = append(result, point)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles: %w", err)
	}

	return result, nil
}

// LastTrade retrieves the candle with the latest bucket. Returns ErrNotFound if none.
func (s *CandleStore) LastTrade(ctx context.Context, mint string, res domain.Resolution) (domain.TradeOhlcv, error) {
	query := `
		SELECT extract(epoch FROM bucket)::bigint, open, close, high, low, volume
		FROM candles
		WHERE mint = $1 AND resolution = $2
		ORDER BY bucket DESC
		LIMIT 1
	`
	return s.latest(ctx, query, mint, res.String())
}

// LatestBefore retrieves the latest candle with bucket < before. Returns ErrNotFound if none.
func (s *CandleStore) LatestBefore(ctx context.Context, mint string, res domain.Resolution, before int64) (domain.TradeOhlcv, error) {
	query := `
		SELECT extract(epoch FROM bucket)::bigint, open, close, high, low, volume
		FROM candles
		WHERE mint = $1 AND resolution = $2 AND bucket < to_timestamp($3::bigint)
		ORDER BY bucket DESC
		LIMIT 1
	`
	return s.latest(ctx, query, mint, res.String(), before)
}

func (s *CandleStore) latest(ctx context.Context, query string, args ...any) (domain.TradeOhlcv, error) {
	point, err := scanCandle(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNotFoundError(err) {
			return domain.TradeOhlcv{}, storage.ErrNotFound
		}
		return domain.TradeOhlcv{}, fmt.Errorf("get latest candle: %w", err)
	}
	return point, nil
}

// scanCandle scans a single row into TradeOhlcv.
func scanCandle(row pgx.Row) (domain.TradeOhlcv, error) {
	var p domain.TradeOhlcv

	err := row.Scan(
		&p.Timestamp,
		&p.Candle.Open,
		&p.Candle.Close,
		&p.Candle.High,
		&p.Candle.Low,
		&p.Candle.Volume,
	)
	if err != nil {
		return domain.TradeOhlcv{}, err
	}

	return p, nil
}
