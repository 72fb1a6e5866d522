package ingestion

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"pump-candles/internal/domain"
	"pump-candles/internal/observability"
)

// EventHandler applies a single event.
type EventHandler interface {
	Handle(ctx context.Context, event domain.Event) error
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// LaneIdle is how long an empty lane waits before retiring.
	LaneIdle time.Duration
	Logger   *log.Logger
	// Now seeds sequence numbers.
	Now func() time.Time
}

// DefaultDispatcherOptions returns the default dispatcher options.
func DefaultDispatcherOptions() DispatcherOptions {
	return DispatcherOptions{
		LaneIdle: 30 * time.Second,
	}
}

// Dispatcher fans events out to one goroutine per mint. Events of the same
// mint are handled strictly in arrival order; different mints run in parallel.
// Handing an event to a lane never blocks, so a busy mint cannot stall the others.
type Dispatcher struct {
	handler EventHandler
	opts    DispatcherOptions
	logger  *log.Logger

	// owned by the Run goroutine
	lanes   map[string]*lane
	lastSeq uint64

	retire chan *lane
	wg     sync.WaitGroup
}

// lane is an unbounded FIFO drained by its own goroutine. Only the Run
// goroutine pushes and closes.
type lane struct {
	mint string
	wake chan struct{} // signalled on push, closed on retirement

	mu     sync.Mutex
	queue  []domain.Event
	closed bool
}

func newLane(mint string) *lane {
	return &lane{mint: mint, wake: make(chan struct{}, 1)}
}

func (l *lane) push(event domain.Event) {
	l.mu.Lock()
	l.queue = append(l.queue, event)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// pop returns the oldest queued event. done is true once the lane is closed and drained.
func (l *lane) pop() (event domain.Event, ok, done bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		l.queue = nil
		return nil, false, l.closed
	}
	event = l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return event, true, false
}

// closeIfEmpty closes the lane unless events are still queued.
func (l *lane) closeIfEmpty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) > 0 {
		return false
	}
	l.closed = true
	close(l.wake)
	return true
}

func (l *lane) close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	close(l.wake)
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(handler EventHandler, opts DispatcherOptions) *Dispatcher {
	defaults := DefaultDispatcherOptions()
	if opts.LaneIdle <= 0 {
		opts.LaneIdle = defaults.LaneIdle
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		handler: handler,
		opts:    opts,
		logger:  logger,
		lanes:   make(map[string]*lane),
		retire:  make(chan *lane),
	}
}

// Run consumes events until the channel closes or ctx is done, then waits
// for every lane to finish. A closed channel drains the lanes and returns nil.
func (d *Dispatcher) Run(ctx context.Context, events <-chan domain.Event) error {
	defer d.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l := <-d.retire:
			d.retireLane(l)
		case event, ok := <-events:
			if !ok {
				return nil
			}
			observability.UpdateQueueDepth(len(events))
			d.dispatch(ctx, event)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, event domain.Event) {
	if trade, ok := event.(*domain.TradeEvent); ok {
		trade.Seq = d.nextSeq()
	}

	mint := event.EventMint()
	l, ok := d.lanes[mint]
	if !ok {
		l = newLane(mint)
		d.lanes[mint] = l
		observability.UpdateActiveLanes(len(d.lanes))
		d.wg.Add(1)
		go d.runLane(ctx, l)
	}
	l.push(event)
}

// nextSeq is strictly increasing and roughly tracks wall-clock nanoseconds,
// so sequences stay ordered across restarts.
func (d *Dispatcher) nextSeq() uint64 {
	seq := d.lastSeq + 1
	if now := uint64(d.opts.Now().UnixNano()); now > seq {
		seq = now
	}
	d.lastSeq = seq
	return seq
}

// retireLane closes l if nothing was queued since it asked to retire.
func (d *Dispatcher) retireLane(l *lane) {
	if d.lanes[l.mint] != l || !l.closeIfEmpty() {
		return
	}
	delete(d.lanes, l.mint)
	observability.UpdateActiveLanes(len(d.lanes))
}

func (d *Dispatcher) runLane(ctx context.Context, l *lane) {
	defer d.wg.Done()

	idle := time.NewTimer(d.opts.LaneIdle)
	defer idle.Stop()

	// retire is non-nil only while the lane is idle.
	var retire chan<- *lane
	for ctx.Err() == nil {
		event, ok, done := l.pop()
		if done {
			return
		}
		if ok {
			d.handle(ctx, event)
			retire = nil
			idle.Reset(d.opts.LaneIdle)
			continue
		}

		select {
		case <-l.wake:
		case <-idle.C:
			retire = d.retire
		case retire <- l:
			retire = nil
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, event domain.Event) {
	if err := d.handler.Handle(ctx, event); err != nil {
		observability.RecordEventError(eventType(event), errorType(err))
		d.logger.Printf("handle %s event for %s: %v", eventType(event), event.EventMint(), err)
	}
}

func (d *Dispatcher) shutdown() {
	for mint, l := range d.lanes {
		l.close()
		delete(d.lanes, mint)
	}
	d.wg.Wait()
	observability.UpdateActiveLanes(0)
}

func eventType(event domain.Event) string {
	switch event.(type) {
	case *domain.CreateEvent:
		return "create"
	case *domain.TradeEvent:
		return "trade"
	default:
		return "unknown"
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "store"
	}
}
