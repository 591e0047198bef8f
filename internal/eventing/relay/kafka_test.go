package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sabari-Jazz/moose/internal/eventing"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type statusFlip struct {
	DeviceID   string
	SiteID     string
	OccurredAt time.Time
}

func (e statusFlip) Route() eventing.Route {
	return eventing.Route{SiteID: e.SiteID, SubjectID: e.DeviceID, OccurredAt: e.OccurredAt}
}

func TestRelayWritesEnvelopeKeyedByDevice(t *testing.T) {
	writer := &fakeWriter{}
	relay, err := NewKafkaRelay(writer, "device-status", nil)
	require.NoError(t, err)

	bus := eventing.NewInMemoryBus()
	relay.Register(bus, eventing.EventTypeOf[statusFlip]())

	event := statusFlip{DeviceID: "dev-1", SiteID: "site-1", OccurredAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, bus.Publish(context.Background(), event))

	require.Len(t, writer.msgs, 1)
	msg := writer.msgs[0]
	assert.Equal(t, "device-status", msg.Topic)
	assert.Equal(t, "dev-1", string(msg.Key))

	var env eventing.Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, "site-1", env.SiteID)
	assert.Equal(t, eventing.EventTypeOf[statusFlip](), env.EventType)
}

func TestRelayReusesEnvelopeFromContext(t *testing.T) {
	writer := &fakeWriter{}
	relay, err := NewKafkaRelay(writer, "t", nil)
	require.NoError(t, err)

	env, err := eventing.BuildEnvelope(statusFlip{DeviceID: "d"}, eventing.Meta{EventID: "evt-1"})
	require.NoError(t, err)
	require.NoError(t, relay.Handle(eventing.WithEnvelope(context.Background(), env), statusFlip{DeviceID: "d"}))

	require.Len(t, writer.msgs, 1)
	var got eventing.Envelope
	require.NoError(t, json.Unmarshal(writer.msgs[0].Value, &got))
	assert.Equal(t, "evt-1", got.EventID)
}

func TestRelaySwallowsWriteErrors(t *testing.T) {
	relay, err := NewKafkaRelay(&fakeWriter{err: errors.New("broker down")}, "t", nil)
	require.NoError(t, err)
	assert.NoError(t, relay.Handle(context.Background(), statusFlip{DeviceID: "d"}))
}

func TestNewKafkaWriterRequiresBrokers(t *testing.T) {
	_, err := NewKafkaWriter(nil, "moose")
	assert.Error(t, err)

	w, err := NewKafkaWriter([]string{"localhost:9092"}, "moose")
	require.NoError(t, err)
	assert.NotNil(t, w)
}
