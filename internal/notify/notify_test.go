package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func (r *recordingChannel) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recordingChannel) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *recordingChannel) Latest() Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return Message{}
	}
	return r.messages[len(r.messages)-1]
}

func TestWebhookChannelPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	require.NoError(t, err)
	require.NoError(t, channel.Send(context.Background(), Message{
		Tag:      TagDailyReminder,
		SiteID:   "site-1",
		DeviceID: "inv-1",
		Subject:  "Daily Red Code Reminder - Inverter 1",
		Body:     "still in fault",
	}))

	select {
	case payload := <-payloadCh:
		assert.Equal(t, "text", payload.MsgType)
		assert.Equal(t, "Daily Red Code Reminder - Inverter 1\nstill in fault", payload.Text.Content)
		assert.Equal(t, TagDailyReminder, payload.Tag)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for webhook payload")
	}
}

func TestWebhookChannelNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	require.NoError(t, err)
	require.Error(t, channel.Send(context.Background(), Message{Body: "x"}))

	_, err = NewWebhookChannel("")
	require.Error(t, err)
}

func TestExpoChannelSendsValidTokens(t *testing.T) {
	var (
		mu       sync.Mutex
		received []expoMessage
		auth     string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != expoSendPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var batch []expoMessage
		_ = json.NewDecoder(r.Body).Decode(&batch)
		mu.Lock()
		received = append(received, batch...)
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		tickets := make([]expoTicket, len(batch))
		for i := range tickets {
			tickets[i] = expoTicket{Status: "ok", ID: "t"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(expoResponse{Data: tickets})
	}))
	defer server.Close()

	channel := NewExpoChannel(server.URL, WithExpoAccessToken("secret"))
	err := channel.Send(context.Background(), Message{
		Subject:    "Inverter 1 Status Change",
		Body:       "needs attention",
		PushTokens: []string{"ExponentPushToken[a]", "not-a-token", "ExpoPushToken[b]"},
		Data:       map[string]string{"deviceId": "inv-1"},
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, "default", received[0].Sound)
	assert.Equal(t, "Inverter 1 Status Change", received[0].Title)
	assert.Equal(t, "inv-1", received[1].Data["deviceId"])
	assert.Equal(t, "Bearer secret", auth)
}

func TestExpoChannelWithoutTokens(t *testing.T) {
	channel := NewExpoChannel("http://127.0.0.1:1")
	err := channel.Send(context.Background(), Message{PushTokens: []string{"bogus"}})
	require.ErrorIs(t, err, ErrNoRecipient)
}

func TestEmailChannelComposesMail(t *testing.T) {
	channel, err := NewEmailChannel(SMTPConfig{Host: "smtp.example.com", Port: 2525, From: "alerts@example.com", Username: "u", Password: "p"})
	require.NoError(t, err)
	channel.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	channel.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	err = channel.Send(context.Background(), Message{
		Tag:     TagEscalation,
		Contact: "tech@example.com",
		Subject: "URGENT: Solar System Alert - Inverter 1 (Roof)\r\nBcc: evil@example.com",
		Body:    "line one\nline two",
	})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, []string{"tech@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: URGENT: Solar System Alert - Inverter 1 (Roof)  Bcc: evil@example.com\r\n")
	assert.Contains(t, gotMsg, "line one\r\nline two")
	assert.Contains(t, gotMsg, "X-Moose-Tag: Escalation")

	require.ErrorIs(t, channel.Send(context.Background(), Message{Subject: "x"}), ErrNoRecipient)

	channel.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay down") }
	require.Error(t, channel.Send(context.Background(), Message{Contact: "a@b.c"}))
}

func TestMultiChannel(t *testing.T) {
	ok := &recordingChannel{}
	none := &recordingChannel{err: ErrNoRecipient}
	broken := &recordingChannel{err: errors.New("boom")}

	require.NoError(t, NewMultiChannel(ok, none, nil).Send(context.Background(), Message{Body: "a"}))
	assert.Equal(t, 1, ok.Count())

	err := NewMultiChannel(ok, broken).Send(context.Background(), Message{Body: "b"})
	require.Error(t, err)
	assert.Equal(t, 2, ok.Count())

	require.ErrorIs(t, NewMultiChannel(none).Send(context.Background(), Message{}), ErrNoRecipient)
	require.ErrorIs(t, NewMultiChannel().Send(context.Background(), Message{}), ErrNoRecipient)
}

func TestEscalationTemplate(t *testing.T) {
	templates, err := NewTemplates("https://forms.example.com/respond?entry=")
	require.NoError(t, err)

	created := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	subject, body, err := templates.Escalation(EscalationData{
		Device:      "Inverter 1",
		Site:        "Roof",
		DeviceID:    "inv-1",
		SiteID:      "site-1",
		RecipientID: "user 7",
		Reason:      "error code: 567",
		CreatedAt:   created,
		EscalatedAt: created.Add(time.Hour),
		Deadline:    time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, "URGENT: Solar System Alert - Inverter 1 (Roof)", subject)
	for _, expected := range []string{
		"INCIDENT ESCALATION (1 HOUR PENDING)",
		"- Device ID: inv-1",
		"- Incident Created: 2024-06-01 10:00:00 UTC",
		"- Escalated At: 2024-06-01 11:00:00 UTC",
		"Last known reason: error code: 567",
		"https://forms.example.com/respond?entry=user+7",
	} {
		assert.True(t, strings.Contains(body, expected), "missing %q in %s", expected, body)
	}

	subject, _, err = templates.Escalation(EscalationData{DeviceID: "inv-2", SiteID: "site-2"})
	require.NoError(t, err)
	assert.Equal(t, "URGENT: Solar System Alert - inv-2 (site-2)", subject)
}

func TestReminderAndAlertTemplates(t *testing.T) {
	templates, err := NewTemplates("")
	require.NoError(t, err)

	subject, body, err := templates.Reminder(ReminderData{Device: "Inverter 1", Site: "Roof", Reason: "no production", Since: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, "Daily Red Code Reminder - Inverter 1", subject)
	assert.Contains(t, body, "still in fault (no production)")
	assert.Contains(t, body, "2024-06-01 00:00:00 UTC")

	subject, body, err = templates.Alert(AlertData{Device: "Inverter 1", Tag: TagStatusChange, Power: 0})
	require.NoError(t, err)
	assert.Equal(t, "Inverter 1 Status Change", subject)
	assert.Contains(t, body, "Current power: 0W")
	assert.Empty(t, templates.ResponseURL("x"))
}
