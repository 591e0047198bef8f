package eventing

import (
	"context"
	"fmt"
)

// ProcessedStore remembers which consumer handled which event.
type ProcessedStore interface {
	HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, consumerName string) error
}

// Subscribe registers handler under consumerName. With a store, an event id
// already handled by that consumer is skipped.
func Subscribe(bus Bus, eventType, consumerName string, handler EventHandler, store ProcessedStore) {
	if store != nil {
		handler = WrapHandler(consumerName, handler, store)
	}
	bus.Subscribe(eventType, handler)
}

// SubscribeTyped is Subscribe for handlers of a concrete event type.
func SubscribeTyped[T any](bus Bus, consumerName string, handler func(ctx context.Context, event T) error, store ProcessedStore) {
	Subscribe(bus, EventTypeOf[T](), consumerName, typed(handler), store)
}

func typed[T any](handler func(ctx context.Context, event T) error) EventHandler {
	return func(ctx context.Context, event any) error {
		if ptr, ok := event.(*T); ok {
			if ptr == nil {
				return ErrNilEvent
			}
			return handler(ctx, *ptr)
		}
		evt, ok := event.(T)
		if !ok {
			return fmt.Errorf("%w: got %T", ErrInvalidEventType, event)
		}
		return handler(ctx, evt)
	}
}

// WrapHandler makes handler idempotent per consumer. Events delivered without
// an envelope cannot be deduplicated and always run.
func WrapHandler(consumerName string, handler EventHandler, store ProcessedStore) EventHandler {
	return func(ctx context.Context, event any) error {
		env, ok := EnvelopeFromContext(ctx)
		if !ok || env.EventID == "" {
			return handler(ctx, event)
		}
		done, err := store.HasProcessed(ctx, env.EventID, consumerName)
		if err != nil || done {
			return err
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
		return store.MarkProcessed(ctx, env.EventID, consumerName)
	}
}
