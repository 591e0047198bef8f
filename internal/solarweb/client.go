package solarweb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Sabari-Jazz/moose/internal/cache"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultRetryCount  = 3
	defaultNullRetries = 5
	defaultNullDelay   = 2 * time.Second
	defaultTokenTTL    = time.Hour
	maxRetryAfter      = time.Minute
)

// ErrUnauthorized is returned when the provider rejects the credentials.
var ErrUnauthorized = errors.New("solarweb: unauthorized")

// Config holds provider credentials and retry tuning.
type Config struct {
	BaseURL        string
	AccessKeyID    string
	AccessKeyValue string
	UserID         string
	Password       string
	Timeout        time.Duration
	RetryCount     int
	NullRetries    int
	NullRetryDelay time.Duration
}

// Client talks to the inverter monitoring API.
type Client struct {
	http        *resty.Client
	token       *cache.Refreshing[string]
	logger      *zap.Logger
	cfg         Config
	nullRetries int
	nullDelay   time.Duration
}

// Option customizes the client.
type Option func(*Client)

// WithRetryWait overrides resty's backoff bounds.
func WithRetryWait(min, max time.Duration) Option {
	return func(c *Client) {
		c.http.SetRetryWaitTime(min).SetRetryMaxWaitTime(max)
	}
}

// NewClient constructs a client. Tokens are cached until their expiry.
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("solarweb: empty base url")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	} else if cfg.RetryCount == 0 {
		cfg.RetryCount = defaultRetryCount
	}
	client := &Client{
		logger:      logger,
		cfg:         cfg,
		nullRetries: cfg.NullRetries,
		nullDelay:   cfg.NullRetryDelay,
	}
	if client.nullRetries <= 0 {
		client.nullRetries = defaultNullRetries
	}
	if client.nullDelay < 0 {
		client.nullDelay = 0
	} else if client.nullDelay == 0 {
		client.nullDelay = defaultNullDelay
	}

	client.http = resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(maxRetryAfter).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("AccessKeyId", cfg.AccessKeyID).
		SetHeader("AccessKeyValue", cfg.AccessKeyValue).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		}).
		SetRetryAfter(retryAfter)

	token, err := cache.NewRefreshing(client.fetchToken, defaultTokenTTL)
	if err != nil {
		return nil, err
	}
	client.token = token

	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// retryAfter honours the Retry-After header on 429 responses.
func retryAfter(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
	if resp == nil || resp.StatusCode() != http.StatusTooManyRequests {
		return 0, nil
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(resp.Header().Get("Retry-After")))
	if err != nil || seconds <= 0 {
		return 0, nil
	}
	wait := time.Duration(seconds) * time.Second
	if wait > maxRetryAfter {
		wait = maxRetryAfter
	}
	return wait, nil
}

type tokenRequest struct {
	UserID   string `json:"UserId"`
	Password string `json:"password"`
}

type tokenResponse struct {
	JWTToken   string `json:"jwtToken"`
	Expiration string `json:"jwtTokenExpiration"`
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	var out tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(tokenRequest{UserID: c.cfg.UserID, Password: c.cfg.Password}).
		SetResult(&out).
		Post("/iam/jwt")
	if err != nil {
		return "", 0, fmt.Errorf("solarweb: request token: %w", err)
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return "", 0, ErrUnauthorized
	}
	if resp.IsError() {
		return "", 0, fmt.Errorf("solarweb: request token: status %d", resp.StatusCode())
	}
	if out.JWTToken == "" {
		return "", 0, errors.New("solarweb: token response missing jwtToken")
	}

	ttl := defaultTokenTTL
	if out.Expiration != "" {
		if expiresAt, err := time.Parse(time.RFC3339, out.Expiration); err == nil {
			if remaining := time.Until(expiresAt) - time.Minute; remaining > 0 && remaining < ttl {
				ttl = remaining
			}
		}
	}
	c.logger.Info("solarweb token refreshed", zap.Duration("ttl", ttl))
	return out.JWTToken, ttl, nil
}

// get issues an authenticated GET. A 401 drops the cached token and retries once.
func (c *Client) get(ctx context.Context, path string, query map[string]string, result any) (*resty.Response, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.token.Get(ctx)
		if err != nil && token == "" {
			return nil, err
		}
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetQueryParams(query).
			SetResult(result).
			Get(path)
		if err != nil {
			return resp, fmt.Errorf("solarweb: GET %s: %w", path, err)
		}
		if resp.StatusCode() == http.StatusUnauthorized && attempt == 0 {
			c.token.Invalidate()
			continue
		}
		if resp.IsError() {
			return resp, fmt.Errorf("solarweb: GET %s: status %d", path, resp.StatusCode())
		}
		return resp, nil
	}
	return nil, ErrUnauthorized
}
