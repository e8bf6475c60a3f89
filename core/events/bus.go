// Package events provides the publish/subscribe bus that carries entity
// change notifications. Events are named "<entity>.<action>", for example
// "user.created", and are published by the "emit" hook.
package events

import (
	"context"
	"strings"
	"sync"

	"github.com/artpar/crudkit/domain/model"
	"github.com/rs/zerolog"
)

// Actions published for entity routes.
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionDeleted  = "deleted"
	ActionRead     = "read"
	ActionReloaded = "reloaded"
)

// Event is a published change notification.
type Event struct {
	// Name is "<entity>.<action>".
	Name string

	Entity string
	Action string

	// Route is the route key that produced the event, e.g. "POST.ONE".
	Route string

	// Document is the affected document; nil for list reads and reloads.
	Document model.Document

	RequestID string
}

// Name builds an event name from an entity and an action.
func Name(entity, action string) string {
	return entity + "." + action
}

// Handler processes an event. Errors are logged, never returned to the
// publisher.
type Handler func(ctx context.Context, event Event) error

// Bus dispatches events to subscribers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

// NewBus creates an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers handler for pattern. Patterns are an exact name
// ("user.created"), an entity wildcard ("user.*") or "*".
func (b *Bus) Subscribe(pattern string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[pattern] = append(b.handlers[pattern], handler)
}

func (b *Bus) matching(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []Handler
	matched = append(matched, b.handlers[name]...)
	if prefix, _, ok := strings.Cut(name, "."); ok {
		matched = append(matched, b.handlers[prefix+".*"]...)
	}
	matched = append(matched, b.handlers["*"]...)
	return matched
}

// Publish calls every matching handler in registration order: exact
// subscribers first, then entity wildcards, then global ones.
func (b *Bus) Publish(ctx context.Context, event Event) {
	handlers := b.matching(event.Name)
	b.logger.Debug().
		Str("event", event.Name).
		Str("request_id", event.RequestID).
		Int("handlers", len(handlers)).
		Msg("event published")

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Msg("event handler failed")
		}
	}
}

// PublishAsync publishes from a new goroutine. The context keeps its values
// but not its cancellation, so handlers outlive the request.
func (b *Bus) PublishAsync(ctx context.Context, event Event) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.Publish(context.WithoutCancel(ctx), event)
	}()
}

// HasSubscribers reports whether Publish(name) would reach a handler.
func (b *Bus) HasSubscribers(name string) bool {
	return len(b.matching(name)) > 0
}

// Wait blocks until every PublishAsync call has finished.
func (b *Bus) Wait() {
	b.wg.Wait()
}
