package sun

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Provider returns sunrise and sunset for coordinates on a local date.
type Provider interface {
	SunTimes(ctx context.Context, latitude, longitude float64, date string) (sunrise, sunset string, err error)
}

// AstronomyClient calls a WeatherAPI-style astronomy endpoint.
type AstronomyClient struct {
	http   *resty.Client
	apiKey string
}

// NewAstronomyClient constructs the client.
func NewAstronomyClient(baseURL, apiKey string, timeout time.Duration) (*AstronomyClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("sun: empty astronomy base url")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetHeader("Accept", "application/json")
	return &AstronomyClient{http: client, apiKey: apiKey}, nil
}

type astronomyResponse struct {
	Astronomy struct {
		Astro struct {
			Sunrise string `json:"sunrise"`
			Sunset  string `json:"sunset"`
		} `json:"astro"`
	} `json:"astronomy"`
}

// SunTimes fetches the astro block for one date.
func (c *AstronomyClient) SunTimes(ctx context.Context, latitude, longitude float64, date string) (string, string, error) {
	if c == nil {
		return "", "", errors.New("sun: nil astronomy client")
	}
	var out astronomyResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key": c.apiKey,
			"q":   fmt.Sprintf("%g,%g", latitude, longitude),
			"dt":  date,
		}).
		SetResult(&out).
		Get("/v1/astronomy.json")
	if err != nil {
		return "", "", fmt.Errorf("sun: astronomy request: %w", err)
	}
	if resp.IsError() {
		return "", "", fmt.Errorf("sun: astronomy request: status %d", resp.StatusCode())
	}
	sunrise := strings.TrimSpace(out.Astronomy.Astro.Sunrise)
	sunset := strings.TrimSpace(out.Astronomy.Astro.Sunset)
	if sunrise == "" || sunset == "" {
		return "", "", errors.New("sun: astronomy response missing sunrise/sunset")
	}
	return sunrise, sunset, nil
}
