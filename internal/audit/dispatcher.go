package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authstate/clock"
	"github.com/google/uuid"
)

// Config controls dispatcher buffering and shutdown.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// FlushTimeout bounds Close. Events still queued when it elapses are
	// counted as dropped. Zero waits until the queue is empty.
	FlushTimeout time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Dispatcher delivers events to a sink from a single goroutine, so a slow
// sink never sits on a login or rate-limit path. Every event that does not
// reach the sink is counted under its EventType.
type Dispatcher struct {
	cfg    Config
	sink   Sink
	clock  clock.Clock
	logger *slog.Logger

	queue    chan Event
	stop     chan struct{}
	finished chan struct{}

	closing   atomic.Bool
	abandon   atomic.Bool
	closeOnce sync.Once
	closeErr  error

	drops      dropCounter
	sinkPanics atomic.Uint64
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg is
// disabled; a nil Dispatcher accepts and discards events.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		cfg:      cfg,
		sink:     sink,
		clock:    clock.OrSystem(cfg.Clock),
		logger:   logger,
		queue:    make(chan Event, cfg.BufferSize),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.finished)

	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// deliver hands ev to the sink. A panicking sink loses that one event and
// the dispatcher keeps running. After an abandoned shutdown events are
// counted instead of delivered.
func (d *Dispatcher) deliver(ev Event) {
	if d.abandon.Load() {
		d.drops.add(ev.EventType)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.sinkPanics.Add(1)
			d.drops.add(ev.EventType)
			d.logger.Error("audit sink panicked",
				slog.String("event_type", ev.EventType),
				slog.Any("panic", r),
			)
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues ev, stamping ID and Timestamp when unset. With DropIfFull a
// full queue drops the event; otherwise Emit waits for room until ctx ends
// or shutdown begins, and an event given up that way is also a drop. Emit
// after Close is a silent no-op.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = d.clock.Now().UTC()
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- ev:
		default:
			d.drops.add(ev.EventType)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.drops.add(ev.EventType)
	case <-d.stop:
		d.drops.add(ev.EventType)
	}
}

// Shutdown stops intake and waits for queued events to reach the sink. If
// ctx ends first, ctx.Err() is returned and the delivery goroutine discards
// the remainder as drops once the sink call in flight returns.
// Later calls return the first result.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)

		select {
		case <-d.finished:
		case <-ctx.Done():
			d.abandon.Store(true)
			d.closeErr = ctx.Err()
			d.logger.Warn("audit flush timed out",
				slog.Int("queued", len(d.queue)),
				slog.Uint64("dropped_total", d.drops.total.Load()),
			)
		}
	})
	return d.closeErr
}

// Close is Shutdown bounded by Config.FlushTimeout.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	ctx := context.Background()
	if d.cfg.FlushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.FlushTimeout)
		defer cancel()
	}
	_ = d.Shutdown(ctx)
}

// Dropped returns the number of events that never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.drops.total.Load()
}

// DroppedByType returns a copy of the drop counts keyed by EventType.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return map[string]uint64{}
	}
	return d.drops.snapshot()
}

// SinkPanics returns how many deliveries panicked inside the sink.
func (d *Dispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.sinkPanics.Load()
}

type dropCounter struct {
	total  atomic.Uint64
	mu     sync.Mutex
	byType map[string]uint64
}

func (c *dropCounter) add(eventType string) {
	c.total.Add(1)
	c.mu.Lock()
	if c.byType == nil {
		c.byType = make(map[string]uint64)
	}
	c.byType[eventType]++
	c.mu.Unlock()
}

func (c *dropCounter) snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.byType))
	for k, v := range c.byType {
		out[k] = v
	}
	return out
}
