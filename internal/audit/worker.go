package audit

import (
	"context"
	"log/slog"
	"time"

	"governor/pkg/platform/circuit"
)

// Worker consumes violation events from a bounded channel and publishes
// them. Enqueue never blocks domain logic: when the buffer is full or the
// breaker is open the event is dropped and counted, not retried inline.
type Worker struct {
	publisher Publisher
	inbox     chan Event
	breaker   *circuit.Breaker
	logger    *slog.Logger
	dropped   func()
}

// Option configures a Worker.
type Option func(*Worker)

// WithBuffer sets the inbox buffer size.
func WithBuffer(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.inbox = make(chan Event, n)
		}
	}
}

// WithDropCounter registers a callback invoked once per dropped event.
func WithDropCounter(fn func()) Option {
	return func(w *Worker) {
		w.dropped = fn
	}
}

// NewWorker creates a worker for the given publisher.
func NewWorker(publisher Publisher, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		publisher: publisher,
		inbox:     make(chan Event, 256),
		breaker:   circuit.New("audit-stream", circuit.WithFailureThreshold(5)),
		logger:    logger,
		dropped:   func() {},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enqueue offers an event to the worker. Returns false when the event was
// dropped. Safe on a nil worker, which makes an unconfigured stream a no-op.
func (w *Worker) Enqueue(event Event) bool {
	if w == nil {
		return false
	}
	if w.breaker.IsOpen() {
		w.dropped()
		return false
	}
	select {
	case w.inbox <- event:
		return true
	default:
		w.dropped()
		return false
	}
}

// Run publishes events until the context is cancelled. Nothing is drained on
// shutdown: the stream is best-effort and the ledger already holds the
// durable record.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			w.publish(ctx, event)
		}
	}
}

func (w *Worker) publish(ctx context.Context, event Event) {
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := w.publisher.Publish(pubCtx, event); err != nil {
		w.dropped()
		if _, change := w.breaker.RecordFailure(); change.Opened {
			w.logger.Warn("audit stream circuit opened", "rule_id", event.RuleID, "error", err)
		}
		return
	}
	if _, change := w.breaker.RecordSuccess(); change.Closed {
		w.logger.Info("audit stream circuit closed")
	}
}
