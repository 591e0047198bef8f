package sun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

const (
	defaultKeyPrefix = "sun:window:"
	defaultStoreTTL  = 72 * time.Hour
)

// Store caches one SunWindow per site and date.
type Store interface {
	Get(ctx context.Context, siteID, date string) (*status.SunWindow, error)
	PutIfAbsent(ctx context.Context, window status.SunWindow) (bool, error)
}

// RedisStore keeps windows as JSON values. The first writer wins.
type RedisStore struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore constructs a store.
func NewRedisStore(client *redis.Client, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("sun: nil redis client")
	}
	if ttl <= 0 {
		ttl = defaultStoreTTL
	}
	return &RedisStore{redis: client, prefix: defaultKeyPrefix, ttl: ttl}, nil
}

func (s *RedisStore) key(siteID, date string) string {
	return fmt.Sprintf("%s%s:%s", s.prefix, siteID, date)
}

// Get returns nil when no window is cached.
func (s *RedisStore) Get(ctx context.Context, siteID, date string) (*status.SunWindow, error) {
	if s == nil || s.redis == nil {
		return nil, errors.New("sun: redis store not initialized")
	}
	raw, err := s.redis.Get(ctx, s.key(siteID, date)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var window status.SunWindow
	if err := json.Unmarshal(raw, &window); err != nil {
		return nil, err
	}
	return &window, nil
}

// PutIfAbsent writes the window unless one exists and reports whether it wrote.
func (s *RedisStore) PutIfAbsent(ctx context.Context, window status.SunWindow) (bool, error) {
	if s == nil || s.redis == nil {
		return false, errors.New("sun: redis store not initialized")
	}
	if window.SiteID == "" || window.Date == "" {
		return false, errors.New("sun: window missing site or date")
	}
	b, err := json.Marshal(window)
	if err != nil {
		return false, err
	}
	return s.redis.SetNX(ctx, s.key(window.SiteID, window.Date), b, s.ttl).Result()
}
