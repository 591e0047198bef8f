package solarweb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

// MessageTimeLayout is the provider's compact UTC timestamp format.
const MessageTimeLayout = "20060102T150405Z"

// stateCode accepts both numeric and string codes.
type stateCode string

func (s *stateCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = stateCode(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = stateCode(num.String())
	return nil
}

type messagesResponse struct {
	Messages []struct {
		StateCode stateCode `json:"stateCode"`
	} `json:"messages"`
}

// Messages returns error-severity events reported since from, in provider order.
func (c *Client) Messages(ctx context.Context, siteID, deviceID string, from time.Time) ([]status.FaultEvent, error) {
	if c == nil {
		return nil, fmt.Errorf("solarweb: nil client")
	}
	path := fmt.Sprintf("/pvsystems/%s/devices/%s/messages", siteID, deviceID)
	query := map[string]string{
		"from":          from.UTC().Format(MessageTimeLayout),
		"statetype":     "Error",
		"stateseverity": "Error",
	}

	var out messagesResponse
	if _, err := c.get(ctx, path, query, &out); err != nil {
		return nil, err
	}
	events := make([]status.FaultEvent, 0, len(out.Messages))
	for _, msg := range out.Messages {
		if msg.StateCode == "" {
			continue
		}
		events = append(events, status.FaultEvent{Code: string(msg.StateCode)})
	}
	return events, nil
}
