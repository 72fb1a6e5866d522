package pumpfun

import (
	"context"
	"errors"
	"fmt"
	"log"

	"pump-candles/internal/domain"
	"pump-candles/internal/observability"
	"pump-candles/internal/solana"
)

// ErrSubscriptionClosed is returned when the log stream ends.
var ErrSubscriptionClosed = errors.New("log subscription closed")

// SourceOptions configures a Source.
type SourceOptions struct {
	Commitment string
	Logger     *log.Logger
}

// Source streams decoded pump.fun events from a logs subscription.
type Source struct {
	ws      solana.WSClient
	decoder *Decoder
	opts    SourceOptions
	logger  *log.Logger
}

// NewSource creates a source over ws.
func NewSource(ws solana.WSClient, opts SourceOptions) *Source {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Source{
		ws:      ws,
		decoder: NewDecoder(),
		opts:    opts,
		logger:  logger,
	}
}

// Run subscribes and pushes decoded events into out until ctx is done or the
// subscription ends. Sends block, so a full queue slows the reader instead of
// dropping events. out is closed on return.
func (s *Source) Run(ctx context.Context, out chan<- domain.Event) error {
	defer close(out)

	logs, err := s.ws.SubscribeLogs(ctx, solana.LogsFilter{
		Mentions:   []string{ProgramID},
		Commitment: s.opts.Commitment,
	})
	if err != nil {
		return fmt.Errorf("subscribe pump.fun logs: %w", err)
	}
	s.logger.Printf("subscribed to %s", ProgramID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notif, ok := <-logs:
			if !ok {
				return ErrSubscriptionClosed
			}
			events, err := s.decoder.Decode(notif)
			if err != nil {
				s.logger.Printf("%v", err)
			}
			for _, event := range events {
				select {
				case out <- event:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			observability.UpdateQueueDepth(len(out))
		}
	}
}
