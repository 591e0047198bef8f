package eventing

import (
	"errors"
	"reflect"
	"sync"
)

// ErrUnknownEventType is returned when decoding an unregistered type.
var ErrUnknownEventType = errors.New("eventing: unknown event type")

// Registry decodes stored envelopes back into typed events for redelivery.
type Registry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewRegistry registers each sample's type.
func NewRegistry(samples ...any) *Registry {
	r := &Registry{types: make(map[string]reflect.Type, len(samples))}
	for _, sample := range samples {
		r.Register(sample)
	}
	return r
}

// Register adds sample's type under its event name.
func (r *Registry) Register(sample any) {
	if r == nil || sample == nil {
		return
	}
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := EventType(reflect.Zero(t).Interface())
	r.mu.Lock()
	r.types[name] = t
	r.mu.Unlock()
}

// DecodePayload returns the event value stored in env.
func (r *Registry) DecodePayload(env Envelope) (any, error) {
	if r == nil {
		return nil, errors.New("eventing: nil registry")
	}
	r.mu.RLock()
	t, ok := r.types[env.EventType]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownEventType
	}
	target := reflect.New(t)
	if err := env.Decode(target.Interface()); err != nil {
		return nil, err
	}
	return target.Elem().Interface(), nil
}
