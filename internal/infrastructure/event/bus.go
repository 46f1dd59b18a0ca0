package event

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Topics published by the client core. Views subscribe to these to re-render.
const (
	TopicCartChanged = "cart.changed"
	TopicAuthChanged = "auth.changed"
)

// Event carries a topic and an arbitrary payload to subscribers.
type Event struct {
	ID      uuid.UUID
	Topic   string
	Payload any
}

// Handler processes a published event. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(Event)

// Bus is an in-memory pub/sub surface. Subscriptions are keyed by topic;
// dispatch is synchronous and panics in handlers are recovered and logged
// so one bad subscriber cannot take down a publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.Logger
}

// NewBus creates a new in-memory event bus
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for a topic
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	b.handlers[topic] = append(b.handlers[topic], handler)
	b.mu.Unlock()
	b.logger.Debug("handler subscribed", zap.String("topic", topic))
}

// Publish delivers the payload to every handler registered for the topic
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[topic]))
	copy(handlers, b.handlers[topic])
	b.mu.RUnlock()

	evt := Event{
		ID:      uuid.New(),
		Topic:   topic,
		Payload: payload,
	}

	for _, handler := range handlers {
		b.dispatch(handler, evt)
	}
}

// dispatch invokes a single handler, recovering panics
func (b *Bus) dispatch(handler Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", evt.Topic),
				zap.String("event_id", evt.ID.String()),
				zap.Error(fmt.Errorf("panic: %v", r)),
			)
		}
	}()
	handler(evt)
}
