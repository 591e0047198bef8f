package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Sabari-Jazz/moose/internal/audit"
	"github.com/Sabari-Jazz/moose/internal/auth"
	incidentsapp "github.com/Sabari-Jazz/moose/internal/incidents/application"
	incidents "github.com/Sabari-Jazz/moose/internal/incidents/domain"
	"github.com/Sabari-Jazz/moose/internal/notify"
)

const prefix = "/api/v1/incidents"

// Handler serves recipient incident endpoints.
type Handler struct {
	service     *incidentsapp.Service
	auditLogger audit.Logger
}

// NewHandler constructs a handler. auditLogger may be nil.
func NewHandler(service *incidentsapp.Service, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("incidents handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger}, nil
}

type incidentResponse struct {
	ID          string     `json:"id"`
	DeviceID    string     `json:"device_id"`
	DeviceName  string     `json:"device_name,omitempty"`
	SiteID      string     `json:"site_id"`
	SiteName    string     `json:"site_name,omitempty"`
	RecipientID string     `json:"recipient_id"`
	Status      string     `json:"status"`
	DeviceState string     `json:"device_status"`
	Reason      string     `json:"reason,omitempty"`
	Resolution  string     `json:"resolution,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Deadline    time.Time  `json:"deadline"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// ServeHTTP handles /api/v1/incidents and /api/v1/incidents/{id}[/dismiss|/escalate].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject := auth.SubjectFromContext(r.Context())
	if subject == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if rest == "" {
		h.handleList(w, r, subject)
		return
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		h.handleGet(w, r, subject, parts[0])
	case 2:
		h.handleAction(w, r, subject, parts[0], incidentsapp.Action(parts[1]))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, subject string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	recipientID := subject
	if requested := r.URL.Query().Get("recipient_id"); requested != "" && requested != subject {
		if auth.RoleFromContext(r.Context()) != auth.RoleAdmin {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		recipientID = requested
	}
	list, err := h.service.ListPending(r.Context(), recipientID)
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]incidentResponse, 0, len(list))
	for _, item := range list {
		resp := toResponse(item.Incident)
		resp.DeviceName = item.DeviceName
		resp.SiteName = item.SiteName
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, subject, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	incident, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if incident.RecipientID != subject && auth.RoleFromContext(r.Context()) != auth.RoleAdmin {
		respondError(w, incidents.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(*incident))
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request, subject, id string, action incidentsapp.Action) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	incident, err := h.service.Act(r.Context(), subject, id, action)
	if err != nil {
		respondError(w, err)
		return
	}
	h.logAudit(r, subject, incident, action)
	writeJSON(w, http.StatusOK, toResponse(*incident))
}

func (h *Handler) logAudit(r *http.Request, subject string, incident *incidents.Incident, action incidentsapp.Action) {
	if h.auditLogger == nil || incident == nil {
		return
	}
	entry := audit.FromRequest(r, subject, string(auth.RoleFromContext(r.Context())), "incident."+string(action)).
		On("incident", incident.ID, incident.SiteID).
		With("device_id", incident.DeviceID).
		With("status", string(incident.Status))
	_ = h.auditLogger.Log(r.Context(), entry)
}

func toResponse(incident incidents.Incident) incidentResponse {
	resp := incidentResponse{
		ID:          incident.ID,
		DeviceID:    incident.DeviceID,
		SiteID:      incident.SiteID,
		RecipientID: incident.RecipientID,
		Status:      string(incident.Status),
		DeviceState: string(incident.DeviceStatus),
		Reason:      incident.DeviceReason,
		Resolution:  incident.Resolution,
		CreatedAt:   incident.CreatedAt,
		Deadline:    incident.Deadline,
	}
	if !incident.ResolvedAt.IsZero() {
		resolved := incident.ResolvedAt
		resp.ResolvedAt = &resolved
	}
	return resp
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, incidents.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, incidents.ErrInvalidTransition):
		http.Error(w, "incident already resolved", http.StatusConflict)
	case errors.Is(err, incidentsapp.ErrInvalidAction):
		http.Error(w, "unknown action", http.StatusNotFound)
	case errors.Is(err, notify.ErrNoRecipient):
		http.Error(w, "no escalation contact configured", http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
