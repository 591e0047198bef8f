package eventing

import (
	"encoding/json"
	"errors"
	"time"
)

// Envelope is the persisted and relayed form of an event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	SiteID        string          `json:"site_id"`
	SubjectID     string          `json:"subject_id"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// Route carries the keys an event is stored and partitioned under. SubjectID
// is the device for device events and the site for site events.
type Route struct {
	SiteID     string
	SubjectID  string
	OccurredAt time.Time
}

// Routed events expose their Route.
type Routed interface {
	Route() Route
}

// Meta overrides envelope fields.
type Meta struct {
	EventID       string
	OccurredAt    time.Time
	CorrelationID string
	SiteID        string
	SchemaVersion int
}

const currentSchemaVersion = 1

// BuildEnvelope serializes event and fills metadata. Meta wins over the
// event's Route; missing ids are generated.
func BuildEnvelope(event any, meta Meta) (Envelope, error) {
	if event == nil {
		return Envelope{}, ErrNilEvent
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}
	var route Route
	if routed, ok := event.(Routed); ok {
		route = routed.Route()
	}

	env := Envelope{
		EventID:       firstNonEmpty(meta.EventID, NewEventID()),
		EventType:     EventType(event),
		SiteID:        firstNonEmpty(meta.SiteID, route.SiteID),
		SubjectID:     route.SubjectID,
		SchemaVersion: meta.SchemaVersion,
		Payload:       payload,
	}
	if env.EventType == "" {
		return Envelope{}, ErrInvalidEventType
	}
	env.CorrelationID = firstNonEmpty(meta.CorrelationID, env.EventID)
	if env.SchemaVersion == 0 {
		env.SchemaVersion = currentSchemaVersion
	}
	switch {
	case !meta.OccurredAt.IsZero():
		env.OccurredAt = meta.OccurredAt.UTC()
	case !route.OccurredAt.IsZero():
		env.OccurredAt = route.OccurredAt.UTC()
	default:
		env.OccurredAt = time.Now().UTC()
	}
	return env, nil
}

// Decode unmarshals the payload into target.
func (e Envelope) Decode(target any) error {
	if len(e.Payload) == 0 {
		return errors.New("eventing: empty payload")
	}
	return json.Unmarshal(e.Payload, target)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
