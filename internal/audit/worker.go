package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrQueueFull = errors.New("audit queue full")

// Queue is an Emit sink that hands events to a Worker through a buffered
// channel. Emit never blocks the registration path: when the buffer is full
// the event is dropped and ErrQueueFull returned.
type Queue struct {
	inbox chan<- Event
}

func NewQueue(inbox chan<- Event) *Queue {
	return &Queue{inbox: inbox}
}

func (q *Queue) Emit(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case q.inbox <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Worker consumes audit events from a channel and persists them.
type Worker struct {
	store  Store
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run persists events until ctx is done or the inbox is closed. A failed
// append is logged and the worker keeps going.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.store.Append(ctx, event); err != nil && w.logger != nil {
				w.logger.ErrorContext(ctx, "failed to persist audit event",
					"action", event.Action,
					"identity_id", event.IdentityID,
					"error", err,
				)
			}
		}
	}
}
