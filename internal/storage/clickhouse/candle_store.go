package clickhouse

import (
	"context"
	"fmt"

	"pump-candles/internal/domain"
	"pump-candles/internal/storage"
)

// CandleStore implements storage.CandleTier on an append-only candle_merges table.
// Candles are folded at read time; open and close are picked by sequence number,
// so the result does not depend on insert order.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleTier = (*CandleStore)(nil)

const candleSelect = `
	SELECT
		bucket,
		argMin(price, seq) AS open,
		argMax(price, seq) AS close,
		max(price)         AS high,
		min(price)         AS low,
		sum(volume)        AS volume
	FROM candle_merges
`

// ApplyMerges appends the merges of one trade in one batch.
func (s *CandleStore) ApplyMerges(ctx context.Context, merges []domain.CandleMerge) error {
	if len(merges) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candle_merges (
			mint, resolution, bucket, seq, price, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, m := range merges {
		err = batch.Append(
			m.Key.Mint, m.Key.Resolution.String(), m.Key.Bucket,
			m.Seq, m.Price, m.Volume,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// TradesSince folds merges into candles with bucket >= from, ordered by bucket ASC.
func (s *CandleStore) TradesSince(ctx context.Context, mint string, res domain.Resolution, from int64) ([]domain.TradeOhlcv, error) {
	query := candleSelect + `
		WHERE mint = ? AND resolution = ? AND bucket >= ?
		GROUP BY bucket
		ORDER BY bucket ASC
	`

	rows, err := s.conn.Query(ctx, query, mint, res.String(), from)
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

// LastTrade folds the latest bucket. Returns ErrNotFound if the series is empty.
func (s *CandleStore) LastTrade(ctx context.Context, mint string, res domain.Resolution) (domain.TradeOhlcv, error) {
	return s.latest(ctx, `WHERE mint = ? AND resolution = ?`, mint, res.String())
}

// LatestBefore folds the latest bucket strictly before `before`.
// Returns ErrNotFound if there is none.
func (s *CandleStore) LatestBefore(ctx context.Context, mint string, res domain.Resolution, before int64) (domain.TradeOhlcv, error) {
	return s.latest(ctx, `WHERE mint = ? AND resolution = ? AND bucket < ?`, mint, res.String(), before)
}

func (s *CandleStore) latest(ctx context.Context, where string, args ...any) (domain.TradeOhlcv, error) {
	query := candleSelect + where + `
		GROUP BY bucket
		ORDER BY bucket DESC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return domain.TradeOhlcv{}, fmt.Errorf("query latest candle: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.TradeOhlcv{}, fmt.Errorf("iterate latest candle: %w", err)
		}
		return domain.TradeOhlcv{}, storage.ErrNotFound
	}

	point, err := scanCandle(rows)
	if err != nil {
		return domain.TradeOhlcv{}, fmt.Errorf("scan latest candle: %w", err)
	}
	return point, nil
}

// chRows is the subset of driver.Rows used for scanning.
type chRows interface {
	Scan(dest ...any) error
}

func scanCandle(rows chRows) (domain.TradeOhlcv, error) {
	var p domain.TradeOhlcv

	err := rows.Scan(
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
