package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pump-candles/internal/candle"
	"pump-candles/internal/domain"
	"pump-candles/internal/observability"
	"pump-candles/internal/storage"
)

// Store is the write side of the candle store used by ingestion.
type Store interface {
	InsertTrade(ctx context.Context, trade domain.TradeInfo, timestamp int64) error
	GetMetadata(ctx context.Context, mint string) (*domain.AssetMetadata, error)
	UpsertMetadata(ctx context.Context, mint string, meta *domain.AssetMetadata) error
}

// MetadataSource resolves token metadata for mints first seen without it.
type MetadataSource interface {
	// Fetch returns nil metadata when the mint has none.
	Fetch(ctx context.Context, mint string) (*domain.AssetMetadata, error)
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// Metadata is optional. Without it unseen mints are stored without metadata.
	Metadata MetadataSource
	Logger   *log.Logger
	// Now stamps trades that carry no block time.
	Now func() time.Time
}

// Handler applies decoded events to the store.
type Handler struct {
	store    Store
	metadata MetadataSource
	logger   *log.Logger
	now      func() time.Time
}

// NewHandler creates an event handler.
func NewHandler(store Store, opts HandlerOptions) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		store:    store,
		metadata: opts.Metadata,
		logger:   logger,
		now:      now,
	}
}

// Handle applies one event. Rejected trades are logged and dropped without error.
func (h *Handler) Handle(ctx context.Context, event domain.Event) error {
	switch e := event.(type) {
	case *domain.CreateEvent:
		return h.handleCreate(ctx, e)
	case *domain.TradeEvent:
		return h.handleTrade(ctx, e)
	default:
		return nil
	}
}

func (h *Handler) handleCreate(ctx context.Context, e *domain.CreateEvent) error {
	meta := e.Metadata
	if meta == nil {
		meta = h.fetchMetadata(ctx, e.Mint)
	}
	if err := h.store.UpsertMetadata(ctx, e.Mint, meta); err != nil {
		return fmt.Errorf("upsert metadata %s: %w", e.Mint, err)
	}
	return nil
}

func (h *Handler) handleTrade(ctx context.Context, e *domain.TradeEvent) error {
	_, err := h.store.GetMetadata(ctx, e.Mint)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		meta := h.fetchMetadata(ctx, e.Mint)
		if err := h.store.UpsertMetadata(ctx, e.Mint, meta); err != nil {
			return fmt.Errorf("upsert metadata %s: %w", e.Mint, err)
		}
	case err != nil:
		// The trade is still worth recording.
		h.logger.Printf("get metadata %s: %v", e.Mint, err)
	}

	timestamp := e.Timestamp
	if timestamp <= 0 {
		timestamp = h.now().Unix()
	}

	if err := h.store.InsertTrade(ctx, e.TradeInfo(), timestamp); err != nil {
		if errors.Is(err, candle.ErrInvalidPrice) {
			observability.RecordTradeRejected()
			h.logger.Printf("rejected trade %s (mint=%s sol=%d token=%d): %v",
				e.Signature, e.Mint, e.SolAmount, e.TokenAmount, err)
			return nil
		}
		return fmt.Errorf("insert trade %s: %w", e.Signature, err)
	}
	observability.RecordTradeIngested()
	return nil
}

// fetchMetadata returns nil when no source is configured or the fetch fails.
func (h *Handler) fetchMetadata(ctx context.Context, mint string) *domain.AssetMetadata {
	if h.metadata == nil {
		return nil
	}
	meta, err := h.metadata.Fetch(ctx, mint)
	if err != nil {
		h.logger.Printf("fetch metadata %s: %v", mint, err)
		return nil
	}
	return meta
}
