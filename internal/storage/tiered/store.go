// Package tiered combines a retention-bounded cache tier and a durable tier
// into the candle store used by ingestion and chart sessions.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"pump-candles/internal/candle"
	"pump-candles/internal/domain"
	"pump-candles/internal/observability"
	"pump-candles/internal/storage"
)

const (
	tierCache   = "cache"
	tierDurable = "durable"
)

// Options configures the tiered store.
type Options struct {
	// Retention is the cache window. Reads starting before now-Retention go to the durable tier.
	Retention time.Duration
	// Timeout bounds every single tier call.
	Timeout time.Duration
	Logger  *log.Logger
	// Now is the clock used for the retention check.
	Now func() time.Time
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{
		Retention: 24 * time.Hour,
		Timeout:   5 * time.Second,
	}
}

// Store routes candle reads and writes across the cache and durable tiers.
// Token metadata lives in the durable token store only.
type Store struct {
	cache   storage.CandleTier
	durable storage.CandleTier
	tokens  storage.TokenStore
	opts    Options
	logger  *log.Logger
}

// New creates a tiered store.
func New(cache, durable storage.CandleTier, tokens storage.TokenStore, opts Options) *Store {
	defaults := DefaultOptions()
	if opts.Retention <= 0 {
		opts.Retention = defaults.Retention
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Store{
		cache:   cache,
		durable: durable,
		tokens:  tokens,
		opts:    opts,
		logger:  logger,
	}
}

// InsertTrade aggregates a trade and writes the merges to both tiers concurrently.
// Validation errors are returned before anything is written. A failing tier is
// logged; the call fails with ErrTierUnavailable only when both tiers fail.
func (s *Store) InsertTrade(ctx context.Context, trade domain.TradeInfo, timestamp int64) error {
	merges, err := candle.Aggregate(trade, timestamp)
	if err != nil {
		return err
	}

	var (
		wg                   sync.WaitGroup
		cacheErr, durableErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		cacheErr = s.applyMerges(ctx, tierCache, s.cache, merges)
	}()
	go func() {
		defer wg.Done()
		durableErr = s.applyMerges(ctx, tierDurable, s.durable, merges)
	}()
	wg.Wait()

	if cacheErr != nil {
		s.logger.Printf("insert trade %s into cache: %v", trade.Mint, cacheErr)
	}
	if durableErr != nil {
		s.logger.Printf("insert trade %s into durable tier: %v", trade.Mint, durableErr)
	}

	if cacheErr != nil && durableErr != nil {
		return fmt.Errorf("%w: cache: %w, durable: %w", storage.ErrTierUnavailable, cacheErr, durableErr)
	}
	return nil
}

// TradesSince returns candles with bucket >= from. Ranges inside the cache window are
// served by the cache and fall back to the durable tier on error.
func (s *Store) TradesSince(ctx context.Context, mint string, res domain.Resolution, from int64) ([]domain.TradeOhlcv, error) {
	cacheStart := s.opts.Now().Add(-s.opts.Retention).Unix()

	var cacheErr error
	if from > cacheStart {
		result, err := s.tradesSince(ctx, tierCache, s.cache, mint, res, from)
		if err == nil {
			return result, nil
		}
		cacheErr = err
		s.logger.Printf("read trades of %s from cache: %v", mint, err)
		observability.RecordFallback("trades_since")
	}

	result, err := s.tradesSince(ctx, tierDurable, s.durable, mint, res, from)
	if err != nil {
		if cacheErr != nil {
			return nil, fmt.Errorf("%w: cache: %w, durable: %w", storage.ErrTierUnavailable, cacheErr, err)
		}
		return nil, fmt.Errorf("%w: durable: %w", storage.ErrTierUnavailable, err)
	}
	return result, nil
}

// LastTrade returns the latest candle, cache first. Any cache error, ErrNotFound
// included, falls through to the durable tier since the cache may have expired the series.
func (s *Store) LastTrade(ctx context.Context, mint string, res domain.Resolution) (domain.TradeOhlcv, error) {
	return s.latest(ctx, "last_trade", mint, func(ctx context.Context, t storage.CandleTier) (domain.TradeOhlcv, error) {
		return t.LastTrade(ctx, mint, res)
	})
}

// LatestBefore returns the latest candle with bucket < before, with the same
// fallthrough as LastTrade. Seeds older than the cache window come from the durable tier.
func (s *Store) LatestBefore(ctx context.Context, mint string, res domain.Resolution, before int64) (domain.TradeOhlcv, error) {
	return s.latest(ctx, "latest_before", mint, func(ctx context.Context, t storage.CandleTier) (domain.TradeOhlcv, error) {
		return t.LatestBefore(ctx, mint, res, before)
	})
}

func (s *Store) latest(ctx context.Context, op, mint string, read func(context.Context, storage.CandleTier) (domain.TradeOhlcv, error)) (domain.TradeOhlcv, error) {
	point, cacheErr := s.readPoint(ctx, tierCache, op, s.cache, read)
	if cacheErr == nil {
		return point, nil
	}
	if !errors.Is(cacheErr, storage.ErrNotFound) {
		s.logger.Printf("%s of %s from cache: %v", op, mint, cacheErr)
	}
	observability.RecordFallback(op)

	point, err := s.readPoint(ctx, tierDurable, op, s.durable, read)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.TradeOhlcv{}, err
		}
		return domain.TradeOhlcv{}, fmt.Errorf("%w: cache: %w, durable: %w", storage.ErrTierUnavailable, cacheErr, err)
	}
	return point, nil
}

// GetMetadata returns token metadata from the durable tier.
// Returns ErrNotFound if the mint is unknown and (nil, nil) if it has no metadata.
func (s *Store) GetMetadata(ctx context.Context, mint string) (*domain.AssetMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	meta, err := s.tokens.GetToken(ctx, mint)
	observability.RecordTierCall(tierDurable, "get_token", time.Since(start).Seconds(), ignoreNotFound(err))
	return meta, err
}

// UpsertMetadata records a mint with optional metadata in the durable tier.
func (s *Store) UpsertMetadata(ctx context.Context, mint string, meta *domain.AssetMetadata) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	err := s.tokens.UpsertToken(ctx, mint, meta)
	observability.RecordTierCall(tierDurable, "upsert_token", time.Since(start).Seconds(), err)
	return err
}

// ListTokens returns every known mint with its metadata.
func (s *Store) ListTokens(ctx context.Context) ([]domain.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	tokens, err := s.tokens.ListTokens(ctx)
	observability.RecordTierCall(tierDurable, "list_tokens", time.Since(start).Seconds(), err)
	return tokens, err
}

func (s *Store) applyMerges(ctx context.Context, tier string, t storage.CandleTier, merges []domain.CandleMerge) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	err := t.ApplyMerges(ctx, merges)
	observability.RecordTierCall(tier, "apply_merges", time.Since(start).Seconds(), err)
	return err
}

func (s *Store) tradesSince(ctx context.Context, tier string, t storage.CandleTier, mint string, res domain.Resolution, from int64) ([]domain.TradeOhlcv, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	result, err := t.TradesSince(ctx, mint, res, from)
	observability.RecordTierCall(tier, "trades_since", time.Since(start).Seconds(), err)
	return result, err
}

func (s *Store) readPoint(ctx context.Context, tier, op string, t storage.CandleTier, read func(context.Context, storage.CandleTier) (domain.TradeOhlcv, error)) (domain.TradeOhlcv, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	point, err := read(ctx, t)
	observability.RecordTierCall(tier, op, time.Since(start).Seconds(), ignoreNotFound(err))
	return point, err
}

func ignoreNotFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}
