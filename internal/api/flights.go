package api

import (
	"encoding/json"
	"net/http"
	"time"

	"soartrack/pkg/model"
	"soartrack/pkg/session"
	"soartrack/pkg/store"
)

// FlightHandler serves flight state and ingests position samples.
type FlightHandler struct {
	mgr   *session.Manager
	store store.FlightStore
}

func NewFlightHandler(mgr *session.Manager, st store.FlightStore) *FlightHandler {
	return &FlightHandler{mgr: mgr, store: st}
}

func (h *FlightHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	f := h.mgr.CurrentFlight()
	if f == nil {
		http.Error(w, "no flight in progress", http.StatusNotFound)
		return
	}
	writeJSON(w, f)
}

func (h *FlightHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.mgr.CancelCurrentFlight()
	writeJSON(w, map[string]string{"status": h.mgr.Status()})
}

func (h *FlightHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	flights := h.mgr.Flights()
	if flights == nil {
		flights = []model.TrackedFlight{}
	}
	writeJSON(w, flights)
}

func (h *FlightHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "flight id is required", http.StatusBadRequest)
		return
	}
	if h.store == nil {
		http.Error(w, "track storage unavailable", http.StatusServiceUnavailable)
		return
	}

	track, ok := h.store.GetTrack(r.Context(), id)
	if !ok {
		// The current flight's track has not been flushed yet
		if f := h.mgr.CurrentFlight(); f != nil && f.ID == id {
			writeJSON(w, f.Track)
			return
		}
		http.Error(w, "track not found", http.StatusNotFound)
		return
	}
	writeJSON(w, track)
}

// HandlePosition ingests one position sample from a feed or device bridge.
func (h *FlightHandler) HandlePosition(w http.ResponseWriter, r *http.Request) {
	var s model.PositionSample
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}

	h.mgr.ProcessPosition(s)
	writeJSON(w, map[string]string{"status": h.mgr.Status()})
}

func (h *FlightHandler) HandleInertial(w http.ResponseWriter, r *http.Request) {
	var s model.InertialSample
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}

	h.mgr.ProcessInertial(s)
	w.WriteHeader(http.StatusAccepted)
}
