package api

import (
	"encoding/json"
	"net/http"

	"soartrack/pkg/queue"
	"soartrack/pkg/tracker"
)

// StatsHandler reports per-user engine counters and queue depth.
type StatsHandler struct {
	tracker *tracker.Tracker
	queue   *queue.Queue
}

func NewStatsHandler(t *tracker.Tracker, q *queue.Queue) *StatsHandler {
	return &StatsHandler{tracker: t, queue: q}
}

type UserStatsDTO struct {
	SamplesProcessed int64 `json:"samples_processed"`
	FlightsOpened    int64 `json:"flights_opened"`
	FlightsClosed    int64 `json:"flights_closed"`
	ZoneEntries      int64 `json:"zone_entries"`
	AlertsCreated    int64 `json:"alerts_created"`
	SyncSuccess      int64 `json:"sync_success"`
	SyncFailures     int64 `json:"sync_errors"`
	SyncRate         int64 `json:"sync_rate"`
}

type StatsResponse struct {
	Users      map[string]UserStatsDTO `json:"users"`
	PendingOps int                     `json:"pending_ops"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	resp := StatsResponse{
		Users: make(map[string]UserStatsDTO),
	}
	if h.queue != nil {
		resp.PendingOps = h.queue.Len()
	}

	for user, stats := range snapshot {
		totalSync := stats.SyncSuccess + stats.SyncFailures
		syncRate := int64(0)
		if totalSync > 0 {
			syncRate = (stats.SyncSuccess * 100) / totalSync
		}
		resp.Users[user] = UserStatsDTO{
			SamplesProcessed: stats.SamplesProcessed,
			FlightsOpened:    stats.FlightsOpened,
			FlightsClosed:    stats.FlightsClosed,
			ZoneEntries:      stats.ZoneEntries,
			AlertsCreated:    stats.AlertsCreated,
			SyncSuccess:      stats.SyncSuccess,
			SyncFailures:     stats.SyncFailures,
			SyncRate:         syncRate,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
