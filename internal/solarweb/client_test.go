package solarweb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	tokenCalls   int32
	flowCalls    int32
	nullResponds int32
	rejectOnce   int32
	throttleOnce int32
	flowBody     string
	messagesBody string
	lastQuery    atomic.Value
}

func (f *fakeProvider) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/iam/jwt", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key-id", r.Header.Get("AccessKeyId"))
		atomic.AddInt32(&f.tokenCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jwtToken":"tok"}`))
	})
	mux.HandleFunc("/pvsystems/site-1/devices/dev-1/flowdata", func(w http.ResponseWriter, r *http.Request) {
		if atomic.CompareAndSwapInt32(&f.rejectOnce, 1, 0) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if atomic.CompareAndSwapInt32(&f.throttleOnce, 1, 0) {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		n := atomic.AddInt32(&f.flowCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		if n <= atomic.LoadInt32(&f.nullResponds) {
			_, _ = w.Write([]byte(`{"status":{"isOnline":true},"data":null}`))
			return
		}
		_, _ = w.Write([]byte(f.flowBody))
	})
	mux.HandleFunc("/pvsystems/site-1/devices/dev-1/messages", func(w http.ResponseWriter, r *http.Request) {
		f.lastQuery.Store(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(f.messagesBody))
	})
	return mux
}

func newTestClient(t *testing.T, provider *fakeProvider) *Client {
	server := httptest.NewServer(provider.handler(t))
	t.Cleanup(server.Close)
	client, err := NewClient(Config{
		BaseURL:        server.URL,
		AccessKeyID:    "key-id",
		AccessKeyValue: "key-value",
		UserID:         "user",
		Password:       "pw",
		RetryCount:     2,
		NullRetryDelay: time.Millisecond,
	}, zap.NewNop(), WithRetryWait(time.Millisecond, 5*time.Millisecond))
	require.NoError(t, err)
	return client
}

func TestFlowDataPicksFirstPowerChannel(t *testing.T) {
	provider := &fakeProvider{flowBody: `{"status":{"isOnline":true},"data":{"channels":[
		{"channelName":"Voltage","value":230},
		{"channelName":"PowerPV","value":null},
		{"channelName":"PowerOutput","value":1520.5},
		{"channelName":"Power","value":99}
	]}}`}
	client := newTestClient(t, provider)

	reading, err := client.FlowData(context.Background(), "site-1", "dev-1")
	require.NoError(t, err)
	assert.True(t, reading.Online)
	assert.InDelta(t, 1520.5, reading.Power, 0.001)

	_, err = client.FlowData(context.Background(), "site-1", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.tokenCalls))
}

func TestFlowDataRetriesNullPayload(t *testing.T) {
	provider := &fakeProvider{
		nullResponds: 2,
		flowBody:     `{"status":{"isOnline":true},"data":{"channels":[{"channelName":"Power","value":12}]}}`,
	}
	client := newTestClient(t, provider)

	reading, err := client.FlowData(context.Background(), "site-1", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 3, reading.Attempts)
	assert.InDelta(t, 12, reading.Power, 0.001)
}

func TestFlowDataNullAfterAllAttemptsIsZero(t *testing.T) {
	provider := &fakeProvider{nullResponds: 100}
	client := newTestClient(t, provider)

	reading, err := client.FlowData(context.Background(), "site-1", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, defaultNullRetries, reading.Attempts)
	assert.Equal(t, int32(defaultNullRetries), atomic.LoadInt32(&provider.flowCalls))
	assert.Zero(t, reading.Power)
	assert.False(t, reading.HasData)
}

func TestFlowDataOfflineIsZero(t *testing.T) {
	provider := &fakeProvider{flowBody: `{"status":{"isOnline":false},"data":{"channels":[{"channelName":"Power","value":50}]}}`}
	client := newTestClient(t, provider)

	reading, err := client.FlowData(context.Background(), "site-1", "dev-1")
	require.NoError(t, err)
	assert.False(t, reading.Online)
	assert.Zero(t, reading.Power)
	assert.Equal(t, 1, reading.Attempts)
}

func TestFlowDataRefreshesTokenOnUnauthorized(t *testing.T) {
	provider := &fakeProvider{rejectOnce: 1, flowBody: `{"status":{"isOnline":true},"data":{"channels":[]}}`}
	client := newTestClient(t, provider)

	_, err := client.FlowData(context.Background(), "site-1", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&provider.tokenCalls))
}

func TestFlowDataRetriesThrottled(t *testing.T) {
	provider := &fakeProvider{throttleOnce: 1, flowBody: `{"status":{"isOnline":true},"data":{"channels":[{"channelName":"Power","value":3}]}}`}
	client := newTestClient(t, provider)

	reading, err := client.FlowData(context.Background(), "site-1", "dev-1")
	require.NoError(t, err)
	assert.InDelta(t, 3, reading.Power, 0.001)
}

func TestMessagesParsesNumericAndStringCodes(t *testing.T) {
	provider := &fakeProvider{messagesBody: `{"messages":[{"stateCode":567},{"stateCode":"102"},{"stateCode":null}]}`}
	client := newTestClient(t, provider)

	from := time.Date(2026, 5, 4, 13, 2, 1, 0, time.UTC)
	events, err := client.Messages(context.Background(), "site-1", "dev-1", from)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "567", events[0].Code)
	assert.Equal(t, "102", events[1].Code)

	query := provider.lastQuery.Load().(url.Values)
	assert.Equal(t, []string{"20260504T130201Z"}, query["from"])
	assert.Equal(t, []string{"Error"}, query["statetype"])
	assert.Equal(t, []string{"Error"}, query["stateseverity"])
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	assert.Error(t, err)
}
