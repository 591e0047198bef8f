package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sabari-Jazz/moose/internal/audit"
	"github.com/Sabari-Jazz/moose/internal/auth"
	"github.com/Sabari-Jazz/moose/internal/directory"
	incidentsapp "github.com/Sabari-Jazz/moose/internal/incidents/application"
	incidents "github.com/Sabari-Jazz/moose/internal/incidents/domain"
	"github.com/Sabari-Jazz/moose/internal/incidents/infrastructure/memory"
	"github.com/Sabari-Jazz/moose/internal/jobs"
	"github.com/Sabari-Jazz/moose/internal/notify"
	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

type people map[string]directory.Recipient

func (p people) RecipientsForSite(context.Context, string) ([]directory.Recipient, error) {
	var out []directory.Recipient
	for _, r := range p {
		out = append(out, r)
	}
	return out, nil
}

func (p people) Recipient(_ context.Context, id string) (*directory.Recipient, error) {
	r, ok := p[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return &r, nil
}

type noDevices struct{}

func (noDevices) Get(context.Context, string) (*status.DeviceStatusRecord, error) { return nil, nil }

type nopTimers struct{}

func (nopTimers) Schedule(_ context.Context, _ time.Time, p jobs.DeadlinePayload) (string, error) {
	return p.TaskID(), nil
}

func (nopTimers) Cancel(context.Context, string) error { return nil }

type countingChannel struct{ sent int }

func (c *countingChannel) Send(context.Context, notify.Message) error {
	c.sent++
	return nil
}

type auditLog struct{ entries []audit.Entry }

func (a *auditLog) Log(_ context.Context, entry audit.Entry) error {
	a.entries = append(a.entries, entry)
	return nil
}

type fixture struct {
	handler *Handler
	store   *memory.Store
	channel *countingChannel
	audit   *auditLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), channel: &countingChannel{}, audit: &auditLog{}}
	templates, err := notify.NewTemplates("")
	require.NoError(t, err)
	service, err := incidentsapp.NewService(f.store,
		people{"tech": {UserID: "tech", EscalationContact: "tech@example.com"}},
		noDevices{}, nopTimers{}, f.channel, templates)
	require.NoError(t, err)
	f.handler, err = NewHandler(service, f.audit)
	require.NoError(t, err)

	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"inc-1", "inc-2"} {
		require.NoError(t, f.store.Create(context.Background(), incidents.Incident{
			ID: id, DeviceID: "inv-1", SiteID: "site-1", RecipientID: "tech",
			Status: incidents.StatusPending, DeviceStatus: status.StatusFault,
			CreatedAt: created, Deadline: created.Add(time.Hour),
		}))
	}
	return f
}

func (f *fixture) do(method, path string, role auth.Role, subject string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), role, subject))
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	return resp
}

func TestListPendingIncidents(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodGet, "/api/v1/incidents", auth.RoleRecipient, "tech")
	require.Equal(t, http.StatusOK, resp.Code)
	var body []incidentResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "pending", body[0].Status)
	assert.Equal(t, "fault", body[0].DeviceState)

	resp = f.do(http.MethodGet, "/api/v1/incidents?recipient_id=tech", auth.RoleRecipient, "owner")
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = f.do(http.MethodGet, "/api/v1/incidents?recipient_id=tech", auth.RoleAdmin, "admin")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestGetIncidentHidesOtherRecipients(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/incidents/inc-1", auth.RoleRecipient, "tech").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/incidents/inc-1", auth.RoleRecipient, "owner").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/incidents/inc-1", auth.RoleAdmin, "admin").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/incidents/nope", auth.RoleRecipient, "tech").Code)
}

func TestIncidentActions(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodPost, "/api/v1/incidents/inc-1/dismiss", auth.RoleRecipient, "tech")
	require.Equal(t, http.StatusOK, resp.Code)
	var body incidentResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "dismissed", body.Status)
	assert.Equal(t, incidents.ReasonAcknowledged, body.Resolution)

	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/api/v1/incidents/inc-1/escalate", auth.RoleRecipient, "tech").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/v1/incidents/inc-2/escalate", auth.RoleRecipient, "owner").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/v1/incidents/inc-2/snooze", auth.RoleRecipient, "tech").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/api/v1/incidents/inc-2/escalate", auth.RoleRecipient, "tech").Code)

	resp = f.do(http.MethodPost, "/api/v1/incidents/inc-2/escalate", auth.RoleRecipient, "tech")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, f.channel.sent)

	require.Len(t, f.audit.entries, 2)
	assert.Equal(t, "incident.dismiss", f.audit.entries[0].Action)
	assert.Equal(t, "incident.escalate", f.audit.entries[1].Action)
	assert.Equal(t, "site-1", f.audit.entries[1].SiteID)
}

func TestRequiresSubject(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/incidents", auth.RoleRecipient, "").Code)
}
