package eventing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// EventHandler handles a published event.
type EventHandler func(ctx context.Context, event any) error

// Bus delivers events to subscribed handlers.
type Bus interface {
	Publish(ctx context.Context, event any) error
	Subscribe(eventType string, handler EventHandler)
}

var (
	// ErrNilEvent is returned when a nil event is published.
	ErrNilEvent = errors.New("eventing: nil event")
	// ErrInvalidEventType is returned when the event type cannot be determined.
	ErrInvalidEventType = errors.New("eventing: invalid event type")
)

// Named events choose their own type name. Others are named after their Go type.
type Named interface {
	EventName() string
}

// InMemoryBus runs handlers synchronously, in subscription order, on the
// publishing goroutine.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

// NewInMemoryBus constructs an empty bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[string][]EventHandler)}
}

// Publish runs every handler for the event's type, even after a failure, and
// returns the joined errors. A panicking handler is reported as an error.
func (b *InMemoryBus) Publish(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}
	eventType := EventType(event)
	if eventType == "" {
		return ErrInvalidEventType
	}

	b.mu.RLock()
	handlers := b.handlers[eventType]
	b.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := safeCall(ctx, handler, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers handler for eventType.
func (b *InMemoryBus) Subscribe(eventType string, handler EventHandler) {
	if eventType == "" || handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	// Copy on write so Publish can iterate without holding the lock.
	next := make([]EventHandler, len(b.handlers[eventType]), len(b.handlers[eventType])+1)
	copy(next, b.handlers[eventType])
	b.handlers[eventType] = append(next, handler)
}

func safeCall(ctx context.Context, handler EventHandler, event any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventing: handler panic: %v", r)
		}
	}()
	return handler(ctx, event)
}

// EventType names an event instance.
func EventType(event any) string {
	if event == nil {
		return ""
	}
	if named, ok := event.(Named); ok {
		return named.EventName()
	}
	return typeName(reflect.TypeOf(event))
}

// EventTypeOf names T without an instance.
func EventTypeOf[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Pointer {
		var zero T
		if named, ok := any(zero).(Named); ok {
			return named.EventName()
		}
	}
	return typeName(t)
}

func typeName(t reflect.Type) string {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.String()
}
