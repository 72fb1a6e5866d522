package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"pump-candles/internal/candle"
	"pump-candles/internal/domain"
	"pump-candles/internal/storage"
)

// seriesKey identifies one (mint, resolution) candle series.
type seriesKey struct {
	mint string
	res  domain.Resolution
}

// CandleStore is an in-memory implementation of storage.CandleTier.
// With a non-zero retention it behaves like the cache tier: buckets that start
// before now-retention are dropped.
type CandleStore struct {
	mu        sync.RWMutex
	series    map[seriesKey]map[int64]domain.Candle // bucket start -> candle
	retention time.Duration
	now       func() time.Time
}

// NewCandleStore creates a store that keeps every bucket.
func NewCandleStore() *CandleStore {
	return NewCandleStoreWithRetention(0, nil)
}

// NewCandleStoreWithRetention creates a store that expires buckets older than retention.
// A nil clock defaults to time.Now.
func NewCandleStoreWithRetention(retention time.Duration, now func() time.Time) *CandleStore {
	if now == nil {
		now = time.Now
	}
	return &CandleStore{
		series:    make(map[seriesKey]map[int64]domain.Candle),
		retention: retention,
		now:       now,
	}
}

// ApplyMerges applies the merges of one trade atomically.
func (s *CandleStore) ApplyMerges(_ context.Context, merges []domain.CandleMerge) error {
	for _, m := range merges {
		if m.Key.Mint == "" || !m.Key.Resolution.Valid() {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff, expires := s.cutoff()
	for _, m := range merges {
		key := seriesKey{mint: m.Key.Mint, res: m.Key.Resolution}
		buckets, ok := s.series[key]
		if !ok {
			buckets = make(map[int64]domain.Candle)
			s.series[key] = buckets
		}

		existing, exists := buckets[m.Key.Bucket]
		buckets[m.Key.Bucket] = candle.Apply(existing, exists, m)

		if expires {
			for bucket := range buckets {
				if bucket < cutoff {
					delete(buckets, bucket)
				}
			}
		}
	}
	return nil
}

// TradesSince returns candles with bucket >= from, ordered by bucket ASC.
func (s *CandleStore) TradesSince(_ context.Context, mint string, res domain.Resolution, from int64) ([]domain.TradeOhlcv, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff, expires := s.cutoff()
	if expires && from < cutoff {
		from = cutoff
	}

	result := []domain.TradeOhlcv{}
	for bucket, c := range s.series[seriesKey{mint: mint, res: res}] {
		if bucket >= from {
			result = append(result, domain.TradeOhlcv{Timestamp: bucket, Candle: c})
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

// LastTrade returns the candle with the latest bucket. Returns ErrNotFound if none.
func (s *CandleStore) LastTrade(_ context.Context, mint string, res domain.Resolution) (domain.TradeOhlcv, error) {
	return s.latest(mint, res, math.MaxInt64)
}

// LatestBefore returns the candle with the latest bucket < before. Returns ErrNotFound if none.
func (s *CandleStore) LatestBefore(_ context.Context, mint string, res domain.Resolution, before int64) (domain.TradeOhlcv, error) {
	return s.latest(mint, res, before)
}

func (s *CandleStore) latest(mint string, res domain.Resolution, before int64) (domain.TradeOhlcv, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff, expires := s.cutoff()

	var last domain.TradeOhlcv
	found := false
	for bucket, c := range s.series[seriesKey{mint: mint, res: res}] {
		if (expires && bucket < cutoff) || bucket >= before {
			continue
		}
		if !found || bucket > last.Timestamp {
			last = domain.TradeOhlcv{Timestamp: bucket, Candle: c}
			found = true
		}
	}

	if !found {
		return domain.TradeOhlcv{}, storage.ErrNotFound
	}
	return last, nil
}

// cutoff returns the oldest bucket start still retained.
func (s *CandleStore) cutoff() (int64, bool) {
	if s.retention <= 0 {
		return 0, false
	}
	return s.now().Add(-s.retention).Unix(), true
}

var _ storage.CandleTier = (*CandleStore)(nil)
