// Package faultcodes resolves provider fault codes to severity colours.
package faultcodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Sabari-Jazz/moose/internal/cache"
	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

const defaultTTL = time.Hour

// Source loads the full code to colour table.
type Source interface {
	Load(ctx context.Context) (map[string]string, error)
}

// RESTSource reads the reference table from a PostgREST endpoint.
type RESTSource struct {
	http *resty.Client
}

// NewRESTSource constructs a source for {baseURL}/rest/v1/error_codes.
func NewRESTSource(baseURL, apiKey string, timeout time.Duration) (*RESTSource, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("faultcodes: empty base url")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("apikey", apiKey).SetAuthToken(apiKey)
	}
	return &RESTSource{http: client}, nil
}

type codeRow struct {
	Code   json.RawMessage `json:"code"`
	Colour string          `json:"colour"`
}

// Load fetches every row.
func (s *RESTSource) Load(ctx context.Context) (map[string]string, error) {
	if s == nil {
		return nil, errors.New("faultcodes: nil source")
	}
	var rows []codeRow
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParam("select", "code,colour").
		SetResult(&rows).
		Get("/rest/v1/error_codes")
	if err != nil {
		return nil, fmt.Errorf("faultcodes: load: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("faultcodes: load: status %d", resp.StatusCode())
	}
	table := make(map[string]string, len(rows))
	for _, row := range rows {
		code := strings.Trim(strings.TrimSpace(string(row.Code)), `"`)
		if code == "" || code == "null" {
			continue
		}
		table[code] = strings.ToLower(strings.TrimSpace(row.Colour))
	}
	return table, nil
}

// Cache serves the colour table from an atomically swapped snapshot.
type Cache struct {
	cell   *cache.Refreshing[map[string]string]
	logger *zap.Logger
}

// Option customizes the cache.
type Option func(*cacheOptions)

type cacheOptions struct {
	clock cache.Clock
	ttl   time.Duration
}

// WithClock assigns a clock.
func WithClock(clock cache.Clock) Option {
	return func(o *cacheOptions) { o.clock = clock }
}

// WithTTL overrides the refresh interval.
func WithTTL(ttl time.Duration) Option {
	return func(o *cacheOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// NewCache constructs a cache over source.
func NewCache(source Source, logger *zap.Logger, opts ...Option) (*Cache, error) {
	if source == nil {
		return nil, errors.New("faultcodes: nil source")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	options := cacheOptions{ttl: defaultTTL}
	for _, opt := range opts {
		opt(&options)
	}
	var cellOpts []cache.Option[map[string]string]
	if options.clock != nil {
		cellOpts = append(cellOpts, cache.WithClock[map[string]string](options.clock))
	}
	cell, err := cache.NewRefreshing(func(ctx context.Context) (map[string]string, time.Duration, error) {
		table, err := source.Load(ctx)
		if err != nil {
			return nil, 0, err
		}
		logger.Info("fault code table refreshed", zap.Int("codes", len(table)))
		return table, options.ttl, nil
	}, options.ttl, cellOpts...)
	if err != nil {
		return nil, err
	}
	return &Cache{cell: cell, logger: logger}, nil
}

// Colours returns the current table. A stale table is served when a refresh fails.
func (c *Cache) Colours(ctx context.Context) (map[string]string, error) {
	if c == nil {
		return nil, errors.New("faultcodes: nil cache")
	}
	table, err := c.cell.Get(ctx)
	if err != nil && table != nil {
		c.logger.Warn("fault code refresh failed, serving stale table", zap.Error(err))
		return table, nil
	}
	return table, err
}

// IsCritical reports whether code maps to a critical colour.
func (c *Cache) IsCritical(ctx context.Context, code string) (bool, error) {
	table, err := c.Colours(ctx)
	if err != nil {
		return false, err
	}
	return status.IsCriticalColour(table[code]), nil
}

// Generation exposes the refresh count.
func (c *Cache) Generation() uint64 {
	if c == nil {
		return 0
	}
	return c.cell.Generation()
}
