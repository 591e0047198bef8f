package solarweb

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// powerChannels are checked in order; the first non-null value wins.
var powerChannels = []string{"PowerPV", "PowerOutput", "Power"}

type flowDataResponse struct {
	Status *struct {
		IsOnline bool `json:"isOnline"`
	} `json:"status"`
	Data *struct {
		Channels []struct {
			ChannelName string   `json:"channelName"`
			Value       *float64 `json:"value"`
		} `json:"channels"`
	} `json:"data"`
}

// Reading is the power snapshot of one device.
type Reading struct {
	Online   bool
	HasData  bool
	Power    float64
	Attempts int
}

// FlowData returns the current power of a device. An offline device, or an online
// device whose payload stays null after every attempt, reads as zero power.
func (c *Client) FlowData(ctx context.Context, siteID, deviceID string) (Reading, error) {
	if c == nil {
		return Reading{}, fmt.Errorf("solarweb: nil client")
	}
	path := fmt.Sprintf("/pvsystems/%s/devices/%s/flowdata", siteID, deviceID)

	var reading Reading
	for attempt := 1; attempt <= c.nullRetries; attempt++ {
		var out flowDataResponse
		resp, err := c.get(ctx, path, nil, &out)
		reading.Attempts = attempt
		if err != nil {
			return reading, err
		}
		if resp != nil && resp.StatusCode() == http.StatusNoContent {
			return reading, nil
		}

		reading.Online = out.Status != nil && out.Status.IsOnline
		reading.HasData = out.Data != nil
		if reading.Online && !reading.HasData && attempt < c.nullRetries {
			c.logger.Debug("flowdata null while online, retrying",
				zap.String("device_id", deviceID),
				zap.Int("attempt", attempt),
			)
			if err := sleep(ctx, c.nullDelay); err != nil {
				return reading, err
			}
			continue
		}

		if reading.Online && reading.HasData {
			for _, name := range powerChannels {
				if value, ok := channelValue(out, name); ok {
					reading.Power = value
					break
				}
			}
		}
		return reading, nil
	}
	return reading, nil
}

func channelValue(out flowDataResponse, name string) (float64, bool) {
	for _, ch := range out.Data.Channels {
		if ch.ChannelName == name && ch.Value != nil {
			return *ch.Value, true
		}
	}
	return 0, false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
