package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/inkwellapp/inkwell-client/internal/id"
)

// Subscriber is a registered event consumer. Events are delivered on
// Ch; Done is closed when the subscriber is removed.
type Subscriber struct {
	ID   string
	Ch   chan Event
	Done chan struct{}
}

// Bus fans events out to subscribers. Delivery is best-effort: a slow
// subscriber gets events dropped rather than stalling the bus.
type Bus struct {
	subscribers map[string]*Subscriber
	events      chan Event
	logger      *slog.Logger
	wg          sync.WaitGroup
	mu          sync.RWMutex

	// Shutdown state - protected by shutdownMu
	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewBus creates a new event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string]*Subscriber),
		events:      make(chan Event, 1000), // Buffer 1000 events
		logger:      logger,
	}
}

// Start begins the broadcast loop. Call once at startup in a goroutine.
func (b *Bus) Start(ctx context.Context) {
	b.wg.Add(1)
	defer b.wg.Done()

	b.logger.Debug("event bus starting")

	for {
		select {
		case event := <-b.events:
			b.broadcast(event)

		case <-ctx.Done():
			b.logger.Debug("event bus stopping")
			b.closeAllSubscribers()
			return
		}
	}
}

// Shutdown stops accepting new events, drains what is queued, and
// closes all subscribers.
func (b *Bus) Shutdown(ctx context.Context) error {
	// Mark as shutdown AND close channel atomically while holding lock.
	// This prevents race with Emit() which holds read lock during send.
	b.shutdownMu.Lock()
	b.shutdown = true
	close(b.events)
	b.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		for event := range b.events {
			b.broadcast(event)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("event drain timeout, some events may be lost")
	}

	b.wg.Wait()
	return nil
}

func (b *Bus) broadcast(event Event) {
	var delivered, dropped int

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		// Non-blocking send (drop if subscriber is slow/stuck).
		select {
		case sub.Ch <- event:
			delivered++
		default:
			dropped++
			b.logger.Warn("dropped event for slow subscriber",
				slog.String("subscriber_id", sub.ID),
				slog.String("event_type", string(event.Type)))
		}
	}

	b.logger.Debug("event broadcast",
		slog.String("event_type", string(event.Type)),
		slog.Int("delivered", delivered),
		slog.Int("dropped", dropped))
}

// Subscribe registers a new subscriber and returns it.
func (b *Bus) Subscribe() (*Subscriber, error) {
	subID, err := id.Generate("sub")
	if err != nil {
		return nil, err
	}

	sub := &Subscriber{
		ID:   subID,
		Ch:   make(chan Event, 100), // Buffer 100 events per subscriber
		Done: make(chan struct{}),
	}

	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	b.mu.Unlock()

	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channels.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	sub, ok := b.subscribers[subID]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subscribers, subID)
	b.mu.Unlock()

	close(sub.Done)
	close(sub.Ch)
}

// Emit queues an event for broadcast. Implements store.EventEmitter.
func (b *Bus) Emit(event any) {
	evt, ok := event.(Event)
	if !ok {
		b.logger.Error("invalid event type emitted")
		return
	}

	// Hold read lock through the entire send operation.
	// This prevents race with Shutdown() which closes the channel
	// under the write lock.
	b.shutdownMu.RLock()
	defer b.shutdownMu.RUnlock()

	if b.shutdown {
		// Events emitted during teardown are expected, drop silently.
		return
	}

	select {
	case b.events <- evt:
	default:
		b.logger.Error("event channel full, dropping event",
			slog.String("event_type", string(evt.Type)))
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Bus) closeAllSubscribers() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers {
		close(sub.Done)
		close(sub.Ch)
	}
	b.subscribers = make(map[string]*Subscriber)
}
