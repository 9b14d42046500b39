// Package notify delivers outbox events to external sinks after commit.
//
// Delivery is best effort: a failing sink is logged and retried on the next
// pass, and an event that keeps failing is dropped for that sink. Nothing here
// feeds back into the booking transaction.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"staffline/internal/domain"
)

const (
	defaultInterval    = 2 * time.Second
	defaultBatch       = 100
	defaultMaxAttempts = 3
	defaultGapWait     = 10 * time.Second
)

// Sink is one delivery channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, evt domain.Event) error
}

// EventSource reads the outbox.
type EventSource interface {
	EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error)
	LatestEventID(ctx context.Context) (int64, error)
}

type route struct {
	sink   Sink
	filter EventFilter
}

type Dispatcher struct {
	source      EventSource
	routes      []route
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
	kick        chan struct{}
	start       *int64
	gapWait     time.Duration
	now         func() time.Time

	mu       sync.Mutex
	cursors  map[int]int64
	attempts map[int]int
	gaps     map[int]gap
}

// gap is a run of event ids, starting at from, that a sink has not seen committed yet.
type gap struct {
	from int64
	seen time.Time
}

type Option func(*Dispatcher)

func WithInterval(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.interval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithGapWait sets how long a sink waits for a missing event id to commit before
// treating it as rolled back. Zero never waits.
func WithGapWait(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d >= 0 {
			disp.gapWait = d
		}
	}
}

// WithCursor starts every sink after the given event id instead of the latest one.
func WithCursor(id int64) Option {
	return func(d *Dispatcher) {
		d.start = &id
	}
}

func NewDispatcher(source EventSource, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		source:      source,
		interval:    defaultInterval,
		maxAttempts: defaultMaxAttempts,
		logger:      slog.Default(),
		kick:        make(chan struct{}, 1),
		gapWait:     defaultGapWait,
		now:         time.Now,
		cursors:     make(map[int]int64),
		attempts:    make(map[int]int),
		gaps:        make(map[int]gap),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Add registers a sink for the given event types; no types means all events.
// Sinks must be added before Run.
func (d *Dispatcher) Add(sink Sink, eventTypes ...string) {
	d.routes = append(d.routes, route{sink: sink, filter: NewEventFilter(eventTypes)})
}

// Len returns the number of registered sinks.
func (d *Dispatcher) Len() int {
	return len(d.routes)
}

// Kick asks the dispatcher to deliver without waiting for the next tick. It never blocks.
func (d *Dispatcher) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Run delivers until ctx is cancelled. Events already in the outbox when a sink
// is first polled are skipped unless WithCursor was given.
func (d *Dispatcher) Run(ctx context.Context) error {
	if len(d.routes) == 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-d.kick:
		}
	}
}

// DispatchOnce runs one delivery pass over every sink.
func (d *Dispatcher) DispatchOnce(ctx context.Context) {
	for i := range d.routes {
		if ctx.Err() != nil {
			return
		}
		d.dispatch(ctx, i)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, idx int) {
	r := d.routes[idx]
	cursor, ok := d.cursorFor(ctx, idx)
	if !ok {
		return
	}
	evts, err := d.source.EventsAfter(ctx, defaultBatch, cursor)
	if err != nil {
		d.logger.Error("notify: fetch events failed", "sink", r.sink.Name(), "err", err)
		return
	}
	next := cursor + 1
	for _, evt := range evts {
		if evt.ID > next && d.holdGap(idx, next, evt.ID) {
			return
		}
		next = evt.ID + 1
		if !r.filter.Match(evt.Type) {
			d.advance(idx, evt.ID)
			continue
		}
		if err := r.sink.Deliver(ctx, evt); err != nil {
			if d.failed(idx) {
				d.logger.Error("notify: dropping event", "sink", r.sink.Name(), "event_id", evt.ID, "type", evt.Type, "err", err)
				d.advance(idx, evt.ID)
				continue
			}
			d.logger.Warn("notify: delivery failed", "sink", r.sink.Name(), "event_id", evt.ID, "type", evt.Type, "err", err)
			return
		}
		d.advance(idx, evt.ID)
	}
}

func (d *Dispatcher) cursorFor(ctx context.Context, idx int) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur, true
	}
	if d.start != nil {
		d.cursors[idx] = *d.start
		return *d.start, true
	}
	cur, err := d.source.LatestEventID(ctx)
	if err != nil {
		d.logger.Error("notify: init cursor failed", "sink", d.routes[idx].sink.Name(), "err", err)
		return 0, false
	}
	d.cursors[idx] = cur
	return cur, true
}

func (d *Dispatcher) advance(idx int, id int64) {
	d.mu.Lock()
	d.cursors[idx] = id
	delete(d.attempts, idx)
	d.mu.Unlock()
}

// holdGap reports whether a sink must stop before ids [from, to), which are not visible yet.
// Ids are allocated at insert time, so a missing one is either a transaction still in flight
// or one that rolled back. After gapWait the run is assumed rolled back and skipped.
func (d *Dispatcher) holdGap(idx int, from, to int64) bool {
	if d.gapWait == 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	g, ok := d.gaps[idx]
	if !ok || g.from != from {
		d.gaps[idx] = gap{from: from, seen: now}
		return true
	}
	if now.Sub(g.seen) < d.gapWait {
		return true
	}
	delete(d.gaps, idx)
	d.logger.Warn("notify: skipping event ids that never committed", "sink", d.routes[idx].sink.Name(), "from", from, "to", to-1)
	return false
}

// failed records a failed attempt and reports whether the event should be dropped.
func (d *Dispatcher) failed(idx int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts[idx]++
	return d.attempts[idx] >= d.maxAttempts
}

// EventFilter matches event types; an empty filter matches everything.
type EventFilter struct {
	set mapset.Set[string]
}

func NewEventFilter(types []string) EventFilter {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set.Add(key)
		}
	}
	return EventFilter{set: set}
}

func (f EventFilter) Match(evtType string) bool {
	if f.set == nil || f.set.Cardinality() == 0 {
		return true
	}
	return f.set.Contains(evtType)
}
