package view

import (
	"context"
	"fmt"
	"sync"
	"time"

	"projectdesk/internal/domain"
	"projectdesk/internal/logging"
)

// Fetcher looks up one project record by identifier.
type Fetcher interface {
	FetchProject(ctx context.Context, id int64) (domain.Project, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id int64) (domain.Project, error)

func (f FetcherFunc) FetchProject(ctx context.Context, id int64) (domain.Project, error) {
	return f(ctx, id)
}

// Transition describes one applied state change.
type Transition struct {
	Generation uint64
	From       State
	To         State
	At         time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithTimeout bounds every fetch. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithLogger sets the controller logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithObserver registers fn for every applied transition. Calls run on a
// delivery goroutine, one at a time, in transition order. fn must not call
// Close.
func WithObserver(fn func(Transition)) Option {
	return func(c *Controller) { c.observers = append(c.observers, fn) }
}

// WithClock overrides the transition timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns the view state for the detail page.
type Controller struct {
	fetcher   Fetcher
	timeout   time.Duration
	log       logging.Logger
	now       func() time.Time
	observers []func(Transition)

	mu      sync.Mutex
	state   State
	gen     uint64
	cancel  context.CancelFunc
	subs    map[chan State]struct{}
	closed  bool
	wg      sync.WaitGroup

	// Observer delivery, guarded by mu.
	delivery  *sync.Cond
	pending   []Transition
	queued    uint64
	delivered uint64
	emitted   chan struct{}
}

// New returns an idle controller backed by f.
func New(f Fetcher, opts ...Option) *Controller {
	c := &Controller{
		fetcher: f,
		timeout: 10 * time.Second,
		log:     logging.Nop(),
		now:     time.Now,
		state:   Idle{},
		subs:    map[chan State]struct{}{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.delivery = sync.NewCond(&c.mu)
	if len(c.observers) > 0 {
		c.emitted = make(chan struct{})
		go c.emit()
	}
	return c
}

// CurrentState returns the present state.
func (c *Controller) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnIdentifierChange enters Loading for id and starts the fetch. It returns
// before the fetch settles. A result for an older identifier is discarded.
func (c *Controller) OnIdentifierChange(id int64) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), c.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	c.cancel = cancel
	c.setLocked(gen, Loading{ID: id})
	c.wg.Add(1)
	c.mu.Unlock()

	c.log.Debug(ctx, "fetch started", "id", id, "generation", gen)
	go c.run(ctx, cancel, gen, id)
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, gen uint64, id int64) {
	defer c.wg.Done()
	defer cancel()

	p, err := c.fetch(ctx, id)

	var next State
	if err != nil {
		next = Failed{ID: id, Reason: err.Error(), Err: err}
	} else {
		next = Loaded{ID: id, Project: p}
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.log.Debug(ctx, "stale fetch discarded", "id", id, "generation", gen)
		return
	}
	c.cancel = nil
	c.setLocked(gen, next)
	c.mu.Unlock()

	if err != nil {
		c.log.Warn(ctx, "fetch failed", "id", id, "generation", gen, "error", err)
	}
}

func (c *Controller) fetch(ctx context.Context, id int64) (p domain.Project, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch panicked: %v", r)
		}
	}()
	if c.fetcher == nil {
		return domain.Project{}, fmt.Errorf("no fetcher configured")
	}
	return c.fetcher.FetchProject(ctx, id)
}

// setLocked applies s, queues the transition for observers and hands s to
// subscribers. c.mu must be held.
func (c *Controller) setLocked(gen uint64, s State) {
	if c.emitted != nil {
		c.pending = append(c.pending, Transition{Generation: gen, From: c.state, To: s, At: c.now()})
		c.queued++
		c.delivery.Broadcast()
	}
	c.state = s
	for ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// emit delivers queued transitions in order until Close drains the queue.
func (c *Controller) emit() {
	defer close(c.emitted)
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		for len(c.pending) == 0 && !c.closed {
			c.delivery.Wait()
		}
		if len(c.pending) == 0 {
			return
		}
		tr := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		for _, fn := range c.observers {
			fn(tr)
		}
		c.mu.Lock()
		c.delivered++
		c.delivery.Broadcast()
	}
}

// Subscribe returns a channel that always holds the most recent state not
// yet received. The returned func unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
		})
	}
}

// Wait blocks until no fetch is running and every transition has reached
// the observers.
func (c *Controller) Wait() {
	c.wg.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.delivered < c.queued {
		c.delivery.Wait()
	}
}

// Close cancels the in-flight fetch, waits for it, flushes pending
// transitions to the observers and closes subscriptions. The last state
// stays readable.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	// Stale generation so the cancelled fetch cannot land.
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
	c.delivery.Broadcast()
	c.mu.Unlock()

	if c.emitted != nil {
		<-c.emitted
	}
}
