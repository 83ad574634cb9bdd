package api

import (
	"net/http"

	"soartrack/pkg/model"
	"soartrack/pkg/safety"
)

// AlertHandler serves safety alerts and airspace dwell state.
type AlertHandler struct {
	monitor *safety.Monitor
}

func NewAlertHandler(m *safety.Monitor) *AlertHandler {
	return &AlertHandler{monitor: m}
}

func (h *AlertHandler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.monitor.Alerts()
	if alerts == nil {
		alerts = []model.AlertRecord{}
	}
	writeJSON(w, alerts)
}

// ActiveAirspaceResponse describes zones the current flight is inside
// plus the violations recorded so far.
type ActiveAirspaceResponse struct {
	Entries    []model.ZoneEntry       `json:"entries"`
	Violations []model.ViolationRecord `json:"violations"`
}

func (h *AlertHandler) HandleActive(w http.ResponseWriter, r *http.Request) {
	resp := ActiveAirspaceResponse{
		Entries:    h.monitor.ActiveEntries(),
		Violations: h.monitor.Violations(),
	}
	if resp.Entries == nil {
		resp.Entries = []model.ZoneEntry{}
	}
	if resp.Violations == nil {
		resp.Violations = []model.ViolationRecord{}
	}
	writeJSON(w, resp)
}
