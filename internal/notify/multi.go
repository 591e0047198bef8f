package notify

import (
	"context"
	"errors"
)

// MultiChannel delivers a message through every configured channel.
type MultiChannel struct {
	channels []Channel
}

// NewMultiChannel constructs a MultiChannel, dropping nil channels.
func NewMultiChannel(channels ...Channel) *MultiChannel {
	multi := &MultiChannel{}
	for _, channel := range channels {
		if channel != nil {
			multi.channels = append(multi.channels, channel)
		}
	}
	return multi
}

// Send forwards to all channels. Channels with no recipient are ignored; the
// remaining failures are joined. ErrNoRecipient is returned when no channel
// had anyone to deliver to.
func (m *MultiChannel) Send(ctx context.Context, msg Message) error {
	if m == nil || len(m.channels) == 0 {
		return ErrNoRecipient
	}
	var (
		errs      []error
		delivered bool
	)
	for _, channel := range m.channels {
		err := channel.Send(ctx, msg)
		switch {
		case err == nil:
			delivered = true
		case errors.Is(err, ErrNoRecipient):
		default:
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if !delivered {
		return ErrNoRecipient
	}
	return nil
}
