package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guardian-safety/alert-engine/internal/domain/alert"
	"github.com/guardian-safety/alert-engine/internal/logger"
)

// Kind identifies the type of an engine event.
type Kind string

const (
	// KindStateChanged is published on every lifecycle transition.
	KindStateChanged Kind = "state_changed"
	// KindCountdownTick is published once per countdown tick with the
	// remaining seconds.
	KindCountdownTick Kind = "countdown_tick"
	// KindLocationUpdated is published for every accepted location sample.
	KindLocationUpdated Kind = "location_updated"
	// KindNotificationLogged is published for every notification attempt.
	KindNotificationLogged Kind = "notification_logged"
	// KindGateLocked is published when the cancellation gate locks.
	KindGateLocked Kind = "gate_locked"
	// KindContactAcknowledged is published when a contact confirms
	// seeing the alert.
	KindContactAcknowledged Kind = "contact_acknowledged"
)

// Event carries one observation from the engine to its sinks.
// Only the fields relevant to the Kind are populated.
type Event struct {
	// Kind identifies the event type.
	Kind Kind
	// AlertID identifies the alert the event belongs to.
	AlertID string
	// UserID identifies the owning user.
	UserID string
	// State is the lifecycle state after a transition.
	State alert.State
	// SecondsLeft is the remaining countdown value on a tick.
	SecondsLeft int
	// Sample is the accepted location sample, if any.
	Sample *alert.LocationSample
	// Attempt is the logged notification attempt, if any.
	Attempt *alert.NotificationAttempt
	// ContactID identifies the acknowledging contact, if any.
	ContactID string
	// At is when the event was published.
	At time.Time
}

// Sink receives engine events. Implementations must not assume they see
// every event, slow sinks lose events instead of stalling the engine.
type Sink interface {
	OnEvent(event Event)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(event Event)

// OnEvent calls the wrapped function.
func (f SinkFunc) OnEvent(event Event) {
	f(event)
}

// DefaultQueueSize is the per-subscriber queue capacity used when the
// caller does not provide one.
const DefaultQueueSize = 64

// subscription is one registered sink with its delivery queue.
type subscription struct {
	// sink is the registered listener.
	sink Sink
	// queue buffers events between the publisher and the delivery goroutine.
	queue chan Event
	// done is closed once the delivery goroutine has drained and exited.
	done chan struct{}
}

// Bus fans engine events out to subscribed sinks.
type Bus struct {
	// mu protects the subscription set.
	mu sync.RWMutex
	// subs holds active subscriptions keyed by registration order.
	subs map[uint64]*subscription
	// nextID is the key for the next subscription.
	nextID uint64
	// dropped counts events discarded because a queue was full.
	dropped atomic.Uint64
	// closed marks the bus as shut down.
	closed bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[uint64]*subscription),
	}
}

// Subscribe registers a sink with the given queue capacity and returns a
// function that unsubscribes it. Capacity below one falls back to
// DefaultQueueSize.
func (b *Bus) Subscribe(sink Sink, queueSize int) func() {
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}

	sub := &subscription{
		sink:  sink,
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
	}

	go func() {
		defer close(sub.done)

		for event := range sub.queue {
			sub.sink.OnEvent(event)
		}
	}()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.queue)

		return func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = sub

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.queue)
		}
	}
}

// Publish delivers the event to every subscriber without blocking.
// Events are stamped with the current time when At is unset.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		select {
		case sub.queue <- event:
		default:
			// Slow sink, drop instead of stalling the engine.
			b.dropped.Add(1)
			logger.WarnKV(ctx, "Event dropped for slow sink",
				"kind", event.Kind, "alert_id", event.AlertID)
		}
	}
}

// Dropped returns how many events were discarded due to full queues.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close unsubscribes every sink and waits for in-flight deliveries to drain.
// The bus accepts no events after Close.
func (b *Bus) Close() {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()

		return
	}

	b.closed = true

	subs := make([]*subscription, 0, len(b.subs))
	for id, sub := range b.subs {
		delete(b.subs, id)
		subs = append(subs, sub)
		close(sub.queue)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		<-sub.done
	}
}
