package chart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pump-candles/internal/domain"
	"pump-candles/internal/observability"
	"pump-candles/internal/storage"
)

// ErrClientGone is returned when a point could not be delivered to the client.
var ErrClientGone = errors.New("chart client gone")

// ErrIdleTimeout is returned when nothing was sent for longer than the idle timeout.
var ErrIdleTimeout = errors.New("chart session idle")

// State is the lifecycle stage of a session.
type State int32

const (
	StateBootstrap State = iota
	StateLive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateBootstrap:
		return "bootstrap"
	case StateLive:
		return "live"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Store is the read side of the candle store used by sessions.
type Store interface {
	TradesSince(ctx context.Context, mint string, res domain.Resolution, from int64) ([]domain.TradeOhlcv, error)
	LastTrade(ctx context.Context, mint string, res domain.Resolution) (domain.TradeOhlcv, error)
	LatestBefore(ctx context.Context, mint string, res domain.Resolution, before int64) (domain.TradeOhlcv, error)
}

// Sink delivers points to one client.
type Sink interface {
	Send(ctx context.Context, point domain.TradeOhlcv) error
}

// Options configures a session.
type Options struct {
	Points   int           // history points sent on bootstrap
	Interval time.Duration // live refresh period
	// IdleTimeout ends the session when no point was sent for this long. Zero disables it.
	IdleTimeout time.Duration
	Logger      *log.Logger
	Now         func() time.Time
	ID          string
}

// DefaultOptions returns the default session options.
func DefaultOptions() Options {
	return Options{
		Points:      100,
		Interval:    time.Second,
		IdleTimeout: 10 * time.Minute,
	}
}

// Session streams candles of one (mint, resolution) to one client: a bootstrap
// of interpolated history followed by one live point per interval.
type Session struct {
	store  Store
	sink   Sink
	mint   string
	res    domain.Resolution
	opts   Options
	logger *log.Logger

	state    atomic.Int32
	lastSend time.Time
}

// NewSession creates a session in the Bootstrap state.
// Points and Interval fall back to defaults when unset.
func NewSession(store Store, sink Sink, mint string, res domain.Resolution, opts Options) *Session {
	defaults := DefaultOptions()
	if opts.Points <= 0 {
		opts.Points = defaults.Points
	}
	if opts.Interval <= 0 {
		opts.Interval = defaults.Interval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Session{
		store:  store,
		sink:   sink,
		mint:   mint,
		res:    res,
		opts:   opts,
		logger: logger,
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.opts.ID
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Run streams until the client goes away, ctx is cancelled or the session idles out.
// It always leaves the session Terminated and returns the reason.
func (s *Session) Run(ctx context.Context) error {
	observability.SessionStarted()
	s.logger.Printf("session %s started: %s %s", s.opts.ID, s.mint, s.res)

	err := s.run(ctx)

	s.state.Store(int32(StateTerminated))
	observability.SessionEnded(terminationReason(err))
	s.logger.Printf("session %s terminated: %v", s.opts.ID, err)
	return err
}

func (s *Session) run(ctx context.Context) error {
	s.lastSend = s.opts.Now()

	if err := s.bootstrap(ctx); err != nil {
		return err
	}

	s.state.Store(int32(StateLive))

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				return err
			}
		}
	}
}

// bootstrap sends the interpolated history of the last Points buckets.
func (s *Session) bootstrap(ctx context.Context) error {
	step := s.res.Seconds()
	to := s.opts.Now().Unix()
	from := s.res.Align(to - int64(s.opts.Points)*step)

	known, err := s.store.TradesSince(ctx, s.mint, s.res, from)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Printf("session %s: read history: %v", s.opts.ID, err)
		known = nil
	}

	// the grid before the first bucket in range continues the latest older candle
	if len(known) == 0 || known[0].Timestamp > from {
		seed, err := s.store.LatestBefore(ctx, s.mint, s.res, from)
		switch {
		case err == nil:
			known = append([]domain.TradeOhlcv{seed}, known...)
		case ctx.Err() != nil:
			return ctx.Err()
		case !errors.Is(err, storage.ErrNotFound):
			s.logger.Printf("session %s: read seed candle: %v", s.opts.ID, err)
		}
	}

	for _, point := range Interpolate(from, to, step, known) {
		if err := s.send(ctx, point); err != nil {
			return err
		}
	}
	return nil
}

// tick sends the candle of the current bucket, or a flat continuation of the last one.
// A failed last-trade read skips the tick.
func (s *Session) tick(ctx context.Context) error {
	now := s.opts.Now()
	if s.opts.IdleTimeout > 0 && now.Sub(s.lastSend) >= s.opts.IdleTimeout {
		return ErrIdleTimeout
	}

	last, err := s.store.LastTrade(ctx, s.mint, s.res)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Printf("session %s: read last trade: %v", s.opts.ID, err)
		}
		return nil
	}

	current := s.res.Align(now.Unix())
	c := last.Candle
	if current < last.Timestamp || current >= last.Timestamp+s.res.Seconds() {
		c = domain.Flat(last.Candle.Close)
	}

	return s.send(ctx, domain.TradeOhlcv{Timestamp: current, Candle: c})
}

func (s *Session) send(ctx context.Context, point domain.TradeOhlcv) error {
	if err := s.sink.Send(ctx, point); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrClientGone, err)
	}
	s.lastSend = s.opts.Now()
	observability.RecordMessageSent()
	return nil
}

func terminationReason(err error) string {
	switch {
	case errors.Is(err, ErrClientGone):
		return "client_gone"
	case errors.Is(err, ErrIdleTimeout):
		return "idle"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
