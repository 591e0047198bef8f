package eventing

import "github.com/google/uuid"

// NewEventID returns a time-ordered event id so outbox rows sort by creation.
func NewEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
