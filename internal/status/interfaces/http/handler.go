package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Sabari-Jazz/moose/internal/auth"
	statusapp "github.com/Sabari-Jazz/moose/internal/status/application"
	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

// Handler serves status read models and admin maintenance endpoints.
type Handler struct {
	query  *statusapp.QueryService
	admin  *statusapp.AdminService
	access auth.SiteAccessChecker
	now    func() time.Time
}

// NewHandler constructs a handler. admin may be nil to disable admin routes.
func NewHandler(query *statusapp.QueryService, admin *statusapp.AdminService, access auth.SiteAccessChecker) (*Handler, error) {
	if query == nil {
		return nil, errors.New("status handler: nil query service")
	}
	return &Handler{
		query:  query,
		admin:  admin,
		access: access,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// ServeHTTP handles /api/v1/devices/, /api/v1/sites/ and /api/v1/admin/.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/v1/devices/"):
		h.handleDevice(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/sites/"):
		h.handleSite(w, r)
	case r.URL.Path == "/api/v1/admin/devices/reset":
		h.handleReset(w, r)
	case r.URL.Path == "/api/v1/admin/sites/recompute":
		h.handleRecompute(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID, action, ok := splitResource(r.URL.Path, "/api/v1/devices/")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	record, err := h.query.DeviceStatus(r.Context(), deviceID)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := auth.EnsureSiteAccess(r.Context(), h.access, record.SiteID); err != nil {
		respondError(w, err)
		return
	}
	switch action {
	case "status":
		writeJSON(w, deviceStatusDTO(record))
	case "logs":
		h.writeDailyLog(w, r, status.SubjectDevice, deviceID, record.SiteID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleSite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	siteID, action, ok := splitResource(r.URL.Path, "/api/v1/sites/")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err := auth.EnsureSiteAccess(r.Context(), h.access, siteID); err != nil {
		respondError(w, err)
		return
	}
	switch action {
	case "status":
		record, err := h.query.SiteStatus(r.Context(), siteID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, siteStatusDTO(record))
	case "logs":
		h.writeDailyLog(w, r, status.SubjectSite, siteID, siteID)
	case "logs.xlsx":
		from := r.URL.Query().Get("from")
		to := r.URL.Query().Get("to")
		if from == "" || to == "" {
			http.Error(w, "from and to are required", http.StatusBadRequest)
			return
		}
		logs, err := h.query.LogRange(r.Context(), status.SubjectSite, siteID, from, to)
		if err != nil {
			respondError(w, err)
			return
		}
		payload, err := BuildLogXLSX(siteID, logs)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s_%s_%s.xlsx", siteID, from, to)))
		_, _ = w.Write(payload)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) writeDailyLog(w http.ResponseWriter, r *http.Request, kind status.SubjectKind, subjectID, siteID string) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.query.Today(r.Context(), siteID, h.now())
	}
	log, err := h.query.DailyLog(r.Context(), kind, subjectID, date)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, dailyLogDTO(log))
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.admin == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	result, err := h.admin.ResetAll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"devices_reset": result.Devices,
		"sites":         result.Recompute.Sites,
		"sites_written": result.Recompute.Written,
		"site_errors":   result.Recompute.Errors,
	})
}

func (h *Handler) handleRecompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.admin == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	result, err := h.admin.RecomputeAll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"sites":         result.Sites,
		"sites_written": result.Written,
		"site_errors":   result.Errors,
	})
}

func splitResource(path, prefix string) (string, string, bool) {
	parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, status.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, auth.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, statusapp.ErrInvalidRange):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
