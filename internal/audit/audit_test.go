package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherStampsTimestamp(t *testing.T) {
	store := NewInMemoryStore()
	publisher := NewPublisher(store)

	require.NoError(t, publisher.Emit(context.Background(), Event{IdentityID: "abc", Action: EventRegistrationCompleted}))

	events, err := publisher.List(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, EventRegistrationCompleted, events[0].Action)
}

func TestQueueDropsWhenFull(t *testing.T) {
	inbox := make(chan Event, 1)
	queue := NewQueue(inbox)

	require.NoError(t, queue.Emit(context.Background(), Event{Action: "first"}))
	err := queue.Emit(context.Background(), Event{Action: "second"})
	assert.True(t, errors.Is(err, ErrQueueFull))
}

func TestWorkerPersistsUntilInboxClosed(t *testing.T) {
	store := NewInMemoryStore()
	inbox := make(chan Event, 4)
	worker := NewWorker(store, inbox, slog.New(slog.NewTextHandler(io.Discard, nil)))
	queue := NewQueue(inbox)

	require.NoError(t, queue.Emit(context.Background(), Event{IdentityID: "abc", Action: EventRegistrationFailed}))
	require.NoError(t, queue.Emit(context.Background(), Event{IdentityID: "abc", Action: EventRollbackCompleted}))
	close(inbox)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, worker.Run(ctx))

	events, err := store.ListByIdentity(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventRegistrationFailed, events[0].Action)
	assert.Equal(t, EventRollbackCompleted, events[1].Action)
}
