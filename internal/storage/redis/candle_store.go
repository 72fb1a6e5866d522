package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"pump-candles/internal/domain"
	"pump-candles/internal/storage"
)

// DefaultRetention is how long the cache keeps samples.
const DefaultRetention = 24 * time.Hour

// field is one OHLCV component stored as its own time series.
type field struct {
	name   string
	policy string // TS.ADD ON_DUPLICATE policy
}

// One series per field; the duplicate policy is what merges samples of the same bucket.
var fields = [5]field{
	{name: "open", policy: "FIRST"},
	{name: "high", policy: "MAX"},
	{name: "low", policy: "MIN"},
	{name: "close", policy: "LAST"},
	{name: "volume", policy: "SUM"},
}

// CandleStore implements storage.CandleTier on RedisTimeSeries.
type CandleStore struct {
	client    *Client
	retention time.Duration
}

// NewCandleStore creates a new CandleStore. A zero retention uses DefaultRetention.
func NewCandleStore(client *Client, retention time.Duration) *CandleStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &CandleStore{client: client, retention: retention}
}

// Compile-time interface check.
var _ storage.CandleTier = (*CandleStore)(nil)

// Retention returns the retention window applied to new series.
func (s *CandleStore) Retention() time.Duration {
	return s.retention
}

// ApplyMerges writes all samples of one trade in a single pipeline round trip.
func (s *CandleStore) ApplyMerges(ctx context.Context, merges []domain.CandleMerge) error {
	if len(merges) == 0 {
		return nil
	}

	retention := s.retention.Milliseconds()

	pipe := s.client.Pipeline()
	for _, m := range merges {
		ts := m.Key.Bucket * 1000
		for _, f := range fields {
			value := m.Price
			if f.name == "volume" {
				value = m.Volume
			}
			pipe.Do(ctx, "TS.ADD", seriesKey(m.Key.Mint, m.Key.Resolution, f.name), ts, value,
				"RETENTION", retention, "ON_DUPLICATE", f.policy)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add candle samples: %w", err)
	}
	return nil
}

// TradesSince reads every field series from `from` onwards and joins them by bucket.
func (s *CandleStore) TradesSince(ctx context.Context, mint string, res domain.Resolution, from int64) ([]domain.TradeOhlcv, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*redis.Cmd, len(fields))
	for i, f := range fields {
		cmds[i] = pipe.Do(ctx, "TS.RANGE", seriesKey(mint, res, f.name), from*1000, "+")
	}
	// per-command errors are inspected below
	_, _ = pipe.Exec(ctx)

	buckets := make(map[int64]*domain.Candle)
	for i, cmd := range cmds {
		reply, err := cmd.Slice()
		if err != nil {
			if isMissingKey(err) {
				continue
			}
			return nil, fmt.Errorf("range %s series: %w", fields[i].name, err)
		}

		for _, raw := range reply {
			tsMs, value, err := parseSample(raw)
			if err != nil {
				return nil, fmt.Errorf("range %s series: %w", fields[i].name, err)
			}

			bucket := tsMs / 1000
			c, ok := buckets[bucket]
			if !ok {
				c = &domain.Candle{}
				buckets[bucket] = c
			}
			setField(c, fields[i].name, value)
		}
	}

	result := make([]domain.TradeOhlcv, 0, len(buckets))
	for bucket, c := range buckets {
		result = append(result, domain.TradeOhlcv{Timestamp: bucket, Candle: *c})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

// LastTrade reads the latest sample of every field series.
// Returns ErrNotFound if any series is missing or empty.
func (s *CandleStore) LastTrade(ctx context.Context, mint string, res domain.Resolution) (domain.TradeOhlcv, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*redis.Cmd, len(fields))
	for i, f := range fields {
		cmds[i] = pipe.Do(ctx, "TS.GET", seriesKey(mint, res, f.name))
	}
	_, _ = pipe.Exec(ctx)

	var (
		c      domain.Candle
		lastMs int64
	)
	for i, cmd := range cmds {
		reply, err := cmd.Result()
		if err != nil {
			if isMissingKey(err) || errors.Is(err, redis.Nil) {
				return domain.TradeOhlcv{}, storage.ErrNotFound
			}
			return domain.TradeOhlcv{}, fmt.Errorf("get %s sample: %w", fields[i].name, err)
		}

		sample, ok := reply.([]interface{})
		if !ok || len(sample) == 0 {
			return domain.TradeOhlcv{}, storage.ErrNotFound
		}

		tsMs, value, err := parseSample(sample)
		if err != nil {
			return domain.TradeOhlcv{}, fmt.Errorf("get %s sample: %w", fields[i].name, err)
		}

		lastMs = max(lastMs, tsMs)
		setField(&c, fields[i].name, value)
	}

	return domain.TradeOhlcv{Timestamp: lastMs / 1000, Candle: c}, nil
}

// LatestBefore reads the newest sample before `before` of every field series.
// All fields of a bucket are written together, so the samples share one timestamp.
// Returns ErrNotFound if any series is missing or has no earlier sample.
func (s *CandleStore) LatestBefore(ctx context.Context, mint string, res domain.Resolution, before int64) (domain.TradeOhlcv, error) {
	if before <= 0 {
		return domain.TradeOhlcv{}, storage.ErrNotFound
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.Cmd, len(fields))
	for i, f := range fields {
		cmds[i] = pipe.Do(ctx, "TS.REVRANGE", seriesKey(mint, res, f.name), "-", before*1000-1, "COUNT", 1)
	}
	_, _ = pipe.Exec(ctx)

	var (
		c      domain.Candle
		lastMs int64
	)
	for i, cmd := range cmds {
		reply, err := cmd.Slice()
		if err != nil {
			if isMissingKey(err) {
				return domain.TradeOhlcv{}, storage.ErrNotFound
			}
			return domain.TradeOhlcv{}, fmt.Errorf("revrange %s series: %w", fields[i].name, err)
		}
		if len(reply) == 0 {
			return domain.TradeOhlcv{}, storage.ErrNotFound
		}

		tsMs, value, err := parseSample(reply[0])
		if err != nil {
			return domain.TradeOhlcv{}, fmt.Errorf("revrange %s series: %w", fields[i].name, err)
		}
		lastMs = max(lastMs, tsMs)
		setField(&c, fields[i].name, value)
	}

	return domain.TradeOhlcv{Timestamp: lastMs / 1000, Candle: c}, nil
}

// seriesKey returns the time series name, e.g. trade_<mint>_M1_close.
func seriesKey(mint string, res domain.Resolution, fieldName string) string {
	return "trade_" + mint + "_" + res.String() + "_" + fieldName
}

func setField(c *domain.Candle, name string, value float64) {
	switch name {
	case "open":
		c.Open = value
	case "high":
		c.High = value
	case "low":
		c.Low = value
	case "close":
		c.Close = value
	case "volume":
		c.Volume = value
	}
}

// isMissingKey reports whether a RedisTimeSeries error means the series does not exist.
func isMissingKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "key does not exist")
}

// parseSample decodes a [timestamp, value] reply. Values are strings under RESP2
// and doubles under RESP3.
func parseSample(raw interface{}) (int64, float64, error) {
	pair, ok := raw.([]interface{})
	if !ok || len(pair) != 2 {
		return 0, 0, fmt.Errorf("unexpected sample %v", raw)
	}

	ts, ok := pair[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected sample timestamp %v", pair[0])
	}

	switch v := pair[1].(type) {
	case float64:
		return ts, v, nil
	case int64:
		return ts, float64(v), nil
	case string:
		value, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("parse sample value: %w", err)
		}
		return ts, value, nil
	default:
		return 0, 0, fmt.Errorf("unexpected sample value %v", pair[1])
	}
}
