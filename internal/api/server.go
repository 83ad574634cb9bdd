package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"soartrack/pkg/version"
)

// NewServer creates and configures the HTTP server.
// It accepts handlers for all API endpoints and a shutdownFunc for graceful shutdown.
func NewServer(addr string, status *StatusHandler, flights *FlightHandler, alerts *AlertHandler, zones *ZoneHandler, replayH *ReplayHandler, stats *StatsHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health Endpoint
	mux.HandleFunc("GET /health", handleHealth)

	// 2. Version Endpoint
	mux.HandleFunc("GET /api/version", handleVersion)

	// 3. Session Endpoints
	mux.HandleFunc("GET /api/status", status.HandleStatus)
	mux.HandleFunc("POST /api/user", status.HandleSetUser)
	mux.HandleFunc("POST /api/tracking", status.HandleTracking)

	// 4. Flight Endpoints
	mux.HandleFunc("GET /api/flight/current", flights.HandleCurrent)
	mux.HandleFunc("POST /api/flight/cancel", flights.HandleCancel)
	mux.HandleFunc("GET /api/flights", flights.HandleList)
	mux.HandleFunc("GET /api/flights/{id}/track", flights.HandleTrack)
	mux.HandleFunc("POST /api/position", flights.HandlePosition)
	mux.HandleFunc("POST /api/inertial", flights.HandleInertial)

	// 5. Alert Endpoints
	mux.HandleFunc("GET /api/alerts", alerts.HandleAlerts)
	mux.HandleFunc("GET /api/airspace/active", alerts.HandleActive)

	// 6. Zone Endpoint
	mux.HandleFunc("GET /api/zones/nearby", zones.HandleNearby)

	// 7. Replay Endpoints
	if replayH != nil {
		mux.HandleFunc("POST /api/replay/start", replayH.HandleStart)
		mux.HandleFunc("POST /api/replay/stop", replayH.HandleStop)
		mux.HandleFunc("GET /api/replay/status", replayH.HandleStatus)
	}

	// 8. Stats Endpoint
	mux.Handle("GET /api/stats", stats)

	// 9. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
