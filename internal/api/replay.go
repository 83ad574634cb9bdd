package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"soartrack/pkg/session"
	"soartrack/pkg/store"
)

// ReplayHandler replays a stored track through the live pipeline.
type ReplayHandler struct {
	replayer *session.Replayer
	store    store.FlightStore
}

func NewReplayHandler(r *session.Replayer, st store.FlightStore) *ReplayHandler {
	return &ReplayHandler{replayer: r, store: st}
}

type replayStartRequest struct {
	FlightID   string `json:"flight_id"`
	IntervalMS int    `json:"interval_ms"`
}

func (h *ReplayHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req replayStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.FlightID == "" {
		http.Error(w, "flight_id is required", http.StatusBadRequest)
		return
	}

	track, ok := h.store.GetTrack(r.Context(), req.FlightID)
	if !ok || len(track) == 0 {
		http.Error(w, "track not found", http.StatusNotFound)
		return
	}

	interval := time.Duration(req.IntervalMS) * time.Millisecond
	if err := h.replayer.Start(track, interval); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("API: replay started", "flight", req.FlightID, "samples", len(track))
	writeJSON(w, map[string]any{"running": true, "samples": len(track)})
}

func (h *ReplayHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.replayer.Stop()
	writeJSON(w, map[string]bool{"running": false})
}

func (h *ReplayHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"running": h.replayer.Running()})
}
