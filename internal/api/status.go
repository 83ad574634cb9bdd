package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"soartrack/pkg/queue"
	"soartrack/pkg/remote"
	"soartrack/pkg/safety"
	"soartrack/pkg/session"
)

// StatusHandler exposes engine state and user/tracking controls.
type StatusHandler struct {
	mgr     *session.Manager
	safety  *safety.Monitor
	monitor *remote.Monitor
	queue   *queue.Queue
}

func NewStatusHandler(mgr *session.Manager, sm *safety.Monitor, mon *remote.Monitor, q *queue.Queue) *StatusHandler {
	return &StatusHandler{mgr: mgr, safety: sm, monitor: mon, queue: q}
}

// StatusResponse is the API response structure.
type StatusResponse struct {
	User       string `json:"user"`
	Tracking   bool   `json:"tracking"`
	Status     string `json:"status"`
	Online     bool   `json:"online"`
	PendingOps int    `json:"pending_ops"`
}

func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		User:     h.mgr.UserID(),
		Tracking: h.mgr.Tracking(),
		Status:   h.mgr.Status(),
	}
	if h.monitor != nil {
		resp.Online = h.monitor.Online()
	}
	if h.queue != nil {
		resp.PendingOps = h.queue.Len()
	}
	writeJSON(w, resp)
}

type setUserRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	License  string `json:"license"`
}

// HandleSetUser switches the active user. Flight history and alerts for
// the previous user stay on disk; the new user's are loaded.
func (h *StatusHandler) HandleSetUser(w http.ResponseWriter, r *http.Request) {
	var req setUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	h.mgr.SetUser(r.Context(), req.UserID)
	if h.safety != nil {
		h.safety.SetUser(r.Context(), req.UserID, req.UserName, req.License)
	}
	slog.Info("API: user switched", "user", req.UserID)
	writeJSON(w, map[string]string{"user": req.UserID})
}

type trackingRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *StatusHandler) HandleTracking(w http.ResponseWriter, r *http.Request) {
	var req trackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Enabled {
		h.mgr.EnableTracking()
	} else {
		h.mgr.DisableTracking()
	}
	writeJSON(w, map[string]bool{"tracking": h.mgr.Tracking()})
}
