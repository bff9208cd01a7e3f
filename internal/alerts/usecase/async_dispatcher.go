package usecase

import (
	"context"
	"log/slog"
	"sync"

	alertsDomain "github.com/keyfold/keyfold/internal/alerts/domain"
)

// AsyncDispatcher decouples alert delivery from the caller's latency path.
// Events are queued on a bounded channel and delivered by a single worker
// goroutine; when the queue is full the event is dropped and counted, never
// blocking a secret operation.
type AsyncDispatcher struct {
	next    Dispatcher
	logger  *slog.Logger
	queue   chan alertsDomain.Event
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// NewAsyncDispatcher wraps next with a bounded asynchronous queue and starts
// the delivery worker. Callers must Close it to drain outstanding events.
func NewAsyncDispatcher(next Dispatcher, logger *slog.Logger, queueSize int) *AsyncDispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &AsyncDispatcher{
		next:   next,
		logger: logger,
		queue:  make(chan alertsDomain.Event, queueSize),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *AsyncDispatcher) run() {
	defer d.wg.Done()
	for event := range d.queue {
		// Delivery happens outside the originating request; use a background
		// context so a cancelled request does not lose its alert.
		d.next.Dispatch(context.Background(), event)
	}
}

// Dispatch enqueues the event, dropping it when the queue is full or closed.
func (d *AsyncDispatcher) Dispatch(ctx context.Context, event alertsDomain.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.dropped++
		return
	}
	select {
	case d.queue <- event:
	default:
		d.dropped++
		d.logger.WarnContext(ctx, "alert queue full, event dropped",
			slog.String("kind", string(event.Kind)),
			slog.String("principal", event.Principal),
		)
	}
}

// Dropped returns the number of events discarded because the queue was full
// or the dispatcher was closed.
func (d *AsyncDispatcher) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close drains the queue and stops the worker. Safe to call once.
func (d *AsyncDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}
