package events

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) (*Bus, context.CancelFunc) {
	t.Helper()
	bus := NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go bus.Start(ctx)
	return bus, cancel
}

func TestBusDeliversToSubscriber(t *testing.T) {
	bus, cancel := newTestBus(t)
	defer cancel()

	sub, err := bus.Subscribe()
	require.NoError(t, err)

	bus.Emit(New(EventBookImported, BookEventData{UniqueID: "abc", Title: "Dune"}))

	select {
	case evt := <-sub.Ch:
		assert.Equal(t, EventBookImported, evt.Type)
		data, ok := evt.Data.(BookEventData)
		require.True(t, ok)
		assert.Equal(t, "Dune", data.Title)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusUnsubscribeClosesChannels(t *testing.T) {
	bus, cancel := newTestBus(t)
	defer cancel()

	sub, err := bus.Subscribe()
	require.NoError(t, err)
	assert.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(sub.ID)
	assert.Equal(t, 0, bus.SubscriberCount())

	select {
	case <-sub.Done:
	case <-time.After(time.Second):
		t.Fatal("Done not closed after unsubscribe")
	}

	// Unsubscribing twice is a no-op.
	bus.Unsubscribe(sub.ID)
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	bus, cancel := newTestBus(t)
	defer cancel()

	sub, err := bus.Subscribe()
	require.NoError(t, err)

	// Never read from sub.Ch; fill past its buffer.
	for i := 0; i < 150; i++ {
		bus.Emit(New(EventBookUpdated, nil))
	}

	// The bus must stay responsive and deliver to a fresh subscriber.
	fresh, err := bus.Subscribe()
	require.NoError(t, err)
	bus.Emit(New(EventShelfCreated, ShelfEventData{ShelfID: "shelf-1"}))

	select {
	case evt := <-fresh.Ch:
		for evt.Type != EventShelfCreated {
			evt = <-fresh.Ch
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bus stalled behind slow subscriber")
	}
	_ = sub
}

func TestBusShutdownDrainsQueued(t *testing.T) {
	bus := NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Start(ctx)

	sub, err := bus.Subscribe()
	require.NoError(t, err)

	bus.Emit(New(EventSyncCompleted, SyncEventData{BooksUploaded: 2}))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	require.NoError(t, bus.Shutdown(shutdownCtx))

	// Emit after shutdown must not panic.
	bus.Emit(New(EventBookUpdated, nil))

	// The queued event was either delivered by the loop or the drain.
	select {
	case evt := <-sub.Ch:
		assert.Equal(t, EventSyncCompleted, evt.Type)
	default:
		t.Fatal("queued event lost during shutdown")
	}
}
