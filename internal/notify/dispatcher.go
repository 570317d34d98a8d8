package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bikeshare/internal/observability"
)

// Sink delivers events to one destination. Sinks ignore event types they do
// not handle by returning nil.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, evt Event) error
}

// Options tunes the dispatcher.
type Options struct {
	QueueSize   int
	Workers     int
	MaxAttempts int
	Backoff     time.Duration // doubled after every failed attempt
	Timeout     time.Duration // per delivery attempt
}

// Dispatcher fans committed events out to sinks on background workers.
// Enqueue never blocks; when the queue is full the event is dropped.
type Dispatcher struct {
	opts   Options
	sinks  []Sink
	logger *slog.Logger
	queue  chan Event

	mu      sync.RWMutex
	started bool
	stopped bool
	stop    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Call Start before events are delivered.
func NewDispatcher(opts Options, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	return &Dispatcher{
		opts:   opts,
		sinks:  sinks,
		logger: logger.With(slog.String("component", "notify")),
		queue:  make(chan Event, opts.QueueSize),
		stop:   make(chan struct{}),
	}
}

// Start launches the workers. Cancelling ctx aborts in-flight deliveries.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true

	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.run(ctx)
	}
}

// Enqueue schedules evt for delivery.
func (d *Dispatcher) Enqueue(evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		d.drop(evt, "dispatcher stopped")
		return
	}

	select {
	case d.queue <- evt:
	default:
		d.drop(evt, "queue full")
	}
}

// Stop drains queued events and waits for the workers. If ctx expires first,
// in-flight deliveries are cancelled.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	started := d.started
	close(d.stop)
	d.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case evt := <-d.queue:
			d.deliver(ctx, evt)
		case <-d.stop:
			for {
				select {
				case evt := <-d.queue:
					d.deliver(ctx, evt)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, evt Event) {
	for _, sink := range d.sinks {
		d.deliverTo(ctx, sink, evt)
	}
}

func (d *Dispatcher) deliverTo(ctx context.Context, sink Sink, evt Event) {
	backoff := d.opts.Backoff
	var err error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
		err = sink.Deliver(attemptCtx, evt)
		cancel()
		if err == nil {
			observability.NotificationsDelivered.WithLabelValues(sink.Name()).Inc()
			return
		}
		if attempt == d.opts.MaxAttempts || ctx.Err() != nil {
			break
		}

		d.logger.Debug("notification attempt failed",
			slog.String("sink", sink.Name()),
			slog.String("event", string(evt.Type)),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
		}
		backoff *= 2
	}

	observability.NotificationsFailed.WithLabelValues(sink.Name()).Inc()
	d.logger.Warn("notification abandoned",
		slog.String("sink", sink.Name()),
		slog.String("event", string(evt.Type)),
		slog.String("event_id", evt.ID),
		slog.Any("error", err),
	)
}

func (d *Dispatcher) drop(evt Event, reason string) {
	observability.NotificationsDropped.Inc()
	d.logger.Warn("notification dropped",
		slog.String("event", string(evt.Type)),
		slog.String("event_id", evt.ID),
		slog.String("reason", reason),
	)
}
