// Package cache provides process-local caches that refresh lazily without locks.
package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Fetcher loads a fresh value. The returned ttl overrides the default when positive.
type Fetcher[T any] func(ctx context.Context) (value T, ttl time.Duration, err error)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type snapshot[T any] struct {
	value      T
	expiresAt  time.Time
	generation uint64
}

// Refreshing holds one lazily refreshed value. Readers never block each other;
// concurrent refreshes race on a compare-and-swap of the snapshot, and the loser
// adopts whatever snapshot won.
type Refreshing[T any] struct {
	fetch   Fetcher[T]
	ttl     time.Duration
	clock   Clock
	current atomic.Pointer[snapshot[T]]
}

// Option configures a Refreshing cache.
type Option[T any] func(*Refreshing[T])

// WithClock overrides the default clock.
func WithClock[T any](clock Clock) Option[T] {
	return func(r *Refreshing[T]) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewRefreshing constructs a cache with the given default ttl.
func NewRefreshing[T any](fetch Fetcher[T], ttl time.Duration, opts ...Option[T]) (*Refreshing[T], error) {
	if fetch == nil {
		return nil, errors.New("cache: nil fetcher")
	}
	if ttl <= 0 {
		return nil, errors.New("cache: ttl must be positive")
	}
	r := &Refreshing[T]{fetch: fetch, ttl: ttl, clock: systemClock{}}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Get returns the cached value, refreshing it when missing or expired. When the
// refresh fails and a stale value exists, the stale value is returned with the error.
func (r *Refreshing[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if r == nil {
		return zero, errors.New("cache: nil cache")
	}
	old := r.current.Load()
	now := r.clock.Now()
	if old != nil && now.Before(old.expiresAt) {
		return old.value, nil
	}

	value, ttl, err := r.fetch(ctx)
	if err != nil {
		if old != nil {
			return old.value, err
		}
		return zero, err
	}
	if ttl <= 0 {
		ttl = r.ttl
	}
	next := &snapshot[T]{value: value, expiresAt: now.Add(ttl), generation: 1}
	if old != nil {
		next.generation = old.generation + 1
	}
	if r.current.CompareAndSwap(old, next) {
		return value, nil
	}
	if winner := r.current.Load(); winner != nil {
		return winner.value, nil
	}
	return value, nil
}

// Generation returns the number of successful refreshes so far.
func (r *Refreshing[T]) Generation() uint64 {
	if r == nil {
		return 0
	}
	if snap := r.current.Load(); snap != nil {
		return snap.generation
	}
	return 0
}

// Invalidate forces the next Get to refetch.
func (r *Refreshing[T]) Invalidate() {
	if r == nil {
		return
	}
	for {
		old := r.current.Load()
		if old == nil {
			return
		}
		expired := &snapshot[T]{value: old.value, generation: old.generation}
		if r.current.CompareAndSwap(old, expired) {
			return
		}
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
