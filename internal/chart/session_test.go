package chart

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"pump-candles/internal/domain"
	"pump-candles/internal/storage"
)

type fakeStore struct {
	mu         sync.Mutex
	history    []domain.TradeOhlcv
	historyErr error
	last       domain.TradeOhlcv
	lastErr    error
	seedErr    error
	seedCalls  int
}

func (f *fakeStore) TradesSince(_ context.Context, _ string, _ domain.Resolution, from int64) ([]domain.TradeOhlcv, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.historyErr != nil {
		return nil, f.historyErr
	}
	var out []domain.TradeOhlcv
	for _, p := range f.history {
		if p.Timestamp >= from {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) LastTrade(_ context.Context, _ string, _ domain.Resolution) (domain.TradeOhlcv, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.lastErr
}

// LatestBefore searches the history and the last trade, ignoring historyErr.
func (f *fakeStore) LatestBefore(_ context.Context, _ string, _ domain.Resolution, before int64) (domain.TradeOhlcv, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seedCalls++
	if f.seedErr != nil {
		return domain.TradeOhlcv{}, f.seedErr
	}
	candidates := f.history
	if f.lastErr == nil {
		candidates = append(candidates[:len(candidates):len(candidates)], f.last)
	}
	var seed domain.TradeOhlcv
	found := false
	for _, p := range candidates {
		if p.Timestamp < before && (!found || p.Timestamp > seed.Timestamp) {
			seed, found = p, true
		}
	}
	if !found {
		return domain.TradeOhlcv{}, storage.ErrNotFound
	}
	return seed, nil
}

func (f *fakeStore) setLast(p domain.TradeOhlcv) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last, f.lastErr = p, nil
}

type chanSink struct {
	points chan domain.TradeOhlcv
	err    error
}

func newChanSink() *chanSink {
	return &chanSink{points: make(chan domain.TradeOhlcv, 256)}
}

func (s *chanSink) Send(ctx context.Context, p domain.TradeOhlcv) error {
	if s.err != nil {
		return s.err
	}
	select {
	case s.points <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *chanSink) next(t *testing.T) domain.TradeOhlcv {
	t.Helper()
	select {
	case p := <-s.points:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a point")
		return domain.TradeOhlcv{}
	}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

const base = int64(1704067200)

func testOptions(clk *clock, interval time.Duration) Options {
	return Options{
		Points:   5,
		Interval: interval,
		Logger:   log.New(io.Discard, "", 0),
		Now:      clk.Now,
	}
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", s.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSession_Bootstrap(t *testing.T) {
	c := domain.Candle{Open: 1, Close: 1.5, High: 2, Low: 1, Volume: 7}
	store := &fakeStore{
		history: []domain.TradeOhlcv{{Timestamp: base - 180, Candle: c}},
		last:    domain.TradeOhlcv{Timestamp: base - 180, Candle: c},
	}
	sink := newChanSink()
	clk := &clock{t: time.Unix(base+30, 0)}

	session := NewSession(store, sink, "mint", domain.ResolutionM1, testOptions(clk, time.Hour))
	if session.State() != StateBootstrap {
		t.Fatalf("initial state = %s, want bootstrap", session.State())
	}
	if session.ID() == "" {
		t.Error("session id not assigned")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	// from = align(base+30-300) = base-300; grid base-300..base
	want := []domain.TradeOhlcv{
		{Timestamp: base - 180, Candle: c},
		{Timestamp: base - 120, Candle: domain.Flat(1.5)},
		{Timestamp: base - 60, Candle: domain.Flat(1.5)},
		{Timestamp: base, Candle: domain.Flat(1.5)},
	}
	for i, w := range want {
		if got := sink.next(t); got != w {
			t.Errorf("point %d = %+v, want %+v", i, got, w)
		}
	}

	waitState(t, session, StateLive)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if session.State() != StateTerminated {
		t.Errorf("state = %s, want terminated", session.State())
	}
}

func TestSession_BootstrapSeedsGapBeforeFirstBucket(t *testing.T) {
	older := domain.Candle{Open: 1, Close: 1, High: 1, Low: 1, Volume: 3}
	inRange := domain.Candle{Open: 2, Close: 2, High: 2, Low: 2, Volume: 4}
	// from = align(base) - 300 = base-300; the window holds data only at from+180
	from := base - 300
	store := &fakeStore{
		history: []domain.TradeOhlcv{
			{Timestamp: from - 600, Candle: older},
			{Timestamp: from + 180, Candle: inRange},
		},
		last: domain.TradeOhlcv{Timestamp: from + 180, Candle: inRange},
	}
	sink := newChanSink()
	clk := &clock{t: time.Unix(base, 0)}

	session := NewSession(store, sink, "mint", domain.ResolutionM1, testOptions(clk, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.Run(ctx)

	want := []domain.TradeOhlcv{
		{Timestamp: from, Candle: domain.Flat(1)},
		{Timestamp: from + 60, Candle: domain.Flat(1)},
		{Timestamp: from + 120, Candle: domain.Flat(1)},
		{Timestamp: from + 180, Candle: inRange},
		{Timestamp: from + 240, Candle: domain.Flat(2)},
		{Timestamp: from + 300, Candle: domain.Flat(2)},
	}
	for i, w := range want {
		if got := sink.next(t); got != w {
			t.Errorf("point %d = %+v, want %+v", i, got, w)
		}
	}
	waitState(t, session, StateLive)
}

func TestSession_BootstrapNoSeedWhenRangeStartsAtFrom(t *testing.T) {
	c := domain.Candle{Open: 5, Close: 5, High: 5, Low: 5, Volume: 1}
	store := &fakeStore{
		history: []domain.TradeOhlcv{{Timestamp: base - 300, Candle: c}},
		last:    domain.TradeOhlcv{Timestamp: base - 300, Candle: c},
	}
	sink := newChanSink()
	clk := &clock{t: time.Unix(base, 0)}

	session := NewSession(store, sink, "mint", domain.ResolutionM1, testOptions(clk, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.Run(ctx)

	if p := sink.next(t); p.Timestamp != base-300 || p.Candle != c {
		t.Errorf("first point = %+v", p)
	}
	waitState(t, session, StateLive)

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.seedCalls != 0 {
		t.Errorf("seed read %d times, want 0", store.seedCalls)
	}
}

func TestSession_BootstrapSeedsWhenHistoryFails(t *testing.T) {
	store := &fakeStore{
		historyErr: errors.New("cache down"),
		last:       domain.TradeOhlcv{Timestamp: base - 3600, Candle: domain.Candle{Open: 1, Close: 4, High: 4, Low: 1, Volume: 2}},
	}
	sink := newChanSink()
	clk := &clock{t: time.Unix(base, 0)}

	session := NewSession(store, sink, "mint", domain.ResolutionM1, testOptions(clk, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.Run(ctx)

	// grid base-300..base, all flat at the seed close
	for i := 0; i < 6; i++ {
		p := sink.next(t)
		if p.Timestamp != base-300+int64(i)*60 || p.Candle != domain.Flat(4) {
			t.Errorf("point %d = %+v", i, p)
		}
	}
}

func TestSession_LiveTicks(t *testing.T) {
	c := domain.Candle{Open: 1, Close: 2, High: 3, Low: 1, Volume: 5}
	store := &fakeStore{lastErr: storage.ErrNotFound}
	sink := newChanSink()
	clk := &clock{t: time.Unix(base+10, 0)}

	session := NewSession(store, sink, "mint", domain.ResolutionM1, testOptions(clk, 5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.Run(ctx)

	waitState(t, session, StateLive)

	// trade lands in the current bucket
	store.setLast(domain.TradeOhlcv{Timestamp: base, Candle: c})
	p := sink.next(t)
	if p.Timestamp != base || p.Candle != c {
		t.Errorf("live point = %+v, want real candle at %d", p, base)
	}

	// next bucket without trades
	clk.Set(time.Unix(base+70, 0))
	for {
		p = sink.next(t)
		if p.Timestamp == base+60 {
			break
		}
	}
	if p.Candle != domain.Flat(2) {
		t.Errorf("flat point = %+v, want flat at 2", p.Candle)
	}
}

func TestSession_NoDataSendsNothing(t *testing.T) {
	store := &fakeStore{lastErr: storage.ErrNotFound}
	sink := newChanSink()
	clk := &clock{t: time.Unix(base, 0)}

	session := NewSession(store, sink, "mint", domain.ResolutionS1, testOptions(clk, 2*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := session.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v, want deadline exceeded", err)
	}
	if len(sink.points) != 0 {
		t.Errorf("sent %d points without data", len(sink.points))
	}
}

func TestSession_TickReadErrorSkipsTick(t *testing.T) {
	store := &fakeStore{lastErr: errors.New("cache down")}
	sink := newChanSink()
	clk := &clock{t: time.Unix(base+10, 0)}

	session := NewSession(store, sink, "mint", domain.ResolutionM1, testOptions(clk, 2*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	waitState(t, session, StateLive)
	time.Sleep(30 * time.Millisecond)
	if len(sink.points) != 0 {
		t.Errorf("sent %d points while the last trade was unreadable", len(sink.points))
	}
	if session.State() != StateLive {
		t.Errorf("state = %s, want live", session.State())
	}

	// the session keeps ticking once reads recover
	c := domain.Candle{Open: 1, Close: 2, High: 3, Low: 1, Volume: 5}
	store.setLast(domain.TradeOhlcv{Timestamp: base, Candle: c})
	if p := sink.next(t); p.Timestamp != base || p.Candle != c {
		t.Errorf("point after recovery = %+v", p)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want canceled", err)
	}
}

func TestSession_SendFailure(t *testing.T) {
	store := &fakeStore{
		history: []domain.TradeOhlcv{{Timestamp: base, Candle: domain.Flat(1)}},
		last:    domain.TradeOhlcv{Timestamp: base, Candle: domain.Flat(1)},
	}
	sink := newChanSink()
	sink.err = errors.New("broken pipe")
	clk := &clock{t: time.Unix(base, 0)}

	session := NewSession(store, sink, "mint", domain.ResolutionM1, testOptions(clk, time.Hour))

	err := session.Run(context.Background())
	if !errors.Is(err, ErrClientGone) {
		t.Fatalf("Run = %v, want ErrClientGone", err)
	}
	if !errors.Is(err, sink.err) {
		t.Errorf("send error not wrapped: %v", err)
	}
	if session.State() != StateTerminated {
		t.Errorf("state = %s, want terminated", session.State())
	}
}

func TestSession_IdleTimeout(t *testing.T) {
	store := &fakeStore{lastErr: storage.ErrNotFound}
	sink := newChanSink()
	clk := &clock{t: time.Unix(base, 0)}

	opts := testOptions(clk, 2*time.Millisecond)
	opts.IdleTimeout = time.Minute
	session := NewSession(store, sink, "mint", domain.ResolutionM1, opts)

	done := make(chan error, 1)
	go func() { done <- session.Run(context.Background()) }()

	waitState(t, session, StateLive)
	clk.Set(time.Unix(base+61, 0))

	select {
	case err := <-done:
		if !errors.Is(err, ErrIdleTimeout) {
			t.Errorf("Run = %v, want ErrIdleTimeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not idle out")
	}
}
