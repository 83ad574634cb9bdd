package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"soartrack/pkg/config"
	"soartrack/pkg/flight"
	"soartrack/pkg/model"
	"soartrack/pkg/safety"
	"soartrack/pkg/session"
)

// fakeFlightStore is an in-memory store.FlightStore for handler tests.
type fakeFlightStore struct {
	mu      sync.Mutex
	flights map[string][]model.TrackedFlight
	tracks  map[string][]model.PositionSample
}

func newFakeFlightStore() *fakeFlightStore {
	return &fakeFlightStore{
		flights: make(map[string][]model.TrackedFlight),
		tracks:  make(map[string][]model.PositionSample),
	}
}

func (f *fakeFlightStore) LoadFlights(ctx context.Context, userID string) ([]model.TrackedFlight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flights[userID], nil
}

func (f *fakeFlightStore) SaveFlights(ctx context.Context, userID string, flights []model.TrackedFlight) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flights[userID] = flights
	return nil
}

func (f *fakeFlightStore) GetTrack(ctx context.Context, flightID string) ([]model.PositionSample, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tracks[flightID]
	return t, ok
}

func (f *fakeFlightStore) SaveTrack(ctx context.Context, flightID, userID string, track []model.PositionSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks[flightID] = track
	return nil
}

func (f *fakeFlightStore) PruneTracks(ctx context.Context, keep []string) error { return nil }

func newTestManager(st *fakeFlightStore) *session.Manager {
	cfg := config.DefaultConfig()
	det := flight.NewDetector(cfg.Detector)
	mgr := session.NewManager(cfg.Session, det, nil, st)
	mgr.SetUser(context.Background(), "pilot-1")
	return mgr
}

func TestStatusHandler(t *testing.T) {
	mgr := newTestManager(newFakeFlightStore())
	h := NewStatusHandler(mgr, nil, nil, nil)

	req := httptest.NewRequest("GET", "/api/status", http.NoBody)
	w := httptest.NewRecorder()
	h.HandleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("StatusCode: got %v, want %v", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"user":"pilot-1"`) {
		t.Errorf("expected user in response, got %s", body)
	}
	if !strings.Contains(body, `"tracking":false`) {
		t.Errorf("expected tracking disabled, got %s", body)
	}
}

func TestSetUserValidation(t *testing.T) {
	mgr := newTestManager(newFakeFlightStore())
	sm := safety.NewMonitor(config.DefaultConfig().Alerts, nil, nil, nil)
	h := NewStatusHandler(mgr, sm, nil, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"Valid", `{"user_id": "pilot-2", "user_name": "Test Pilot"}`, http.StatusOK},
		{"MissingID", `{"user_name": "Test Pilot"}`, http.StatusBadRequest},
		{"Garbage", `not json`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/user", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.HandleSetUser(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("StatusCode: got %v, want %v", w.Code, tt.wantStatus)
			}
		})
	}

	if mgr.UserID() != "pilot-2" {
		t.Errorf("expected user switch to pilot-2, got %s", mgr.UserID())
	}
}

func TestTrackingToggle(t *testing.T) {
	mgr := newTestManager(newFakeFlightStore())
	h := NewStatusHandler(mgr, nil, nil, nil)

	req := httptest.NewRequest("POST", "/api/tracking", strings.NewReader(`{"enabled": true}`))
	w := httptest.NewRecorder()
	h.HandleTracking(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("StatusCode: got %v, want %v", w.Code, http.StatusOK)
	}
	if !mgr.Tracking() {
		t.Error("expected tracking enabled")
	}

	req = httptest.NewRequest("POST", "/api/tracking", strings.NewReader(`{"enabled": false}`))
	w = httptest.NewRecorder()
	h.HandleTracking(w, req)

	if mgr.Tracking() {
		t.Error("expected tracking disabled")
	}
}

func TestCurrentFlightNotFound(t *testing.T) {
	mgr := newTestManager(newFakeFlightStore())
	h := NewFlightHandler(mgr, nil)

	req := httptest.NewRequest("GET", "/api/flight/current", http.NoBody)
	w := httptest.NewRecorder()
	h.HandleCurrent(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("StatusCode: got %v, want %v", w.Code, http.StatusNotFound)
	}
}

func TestPositionIngestion(t *testing.T) {
	mgr := newTestManager(newFakeFlightStore())
	mgr.EnableTracking()
	h := NewFlightHandler(mgr, nil)

	req := httptest.NewRequest("POST", "/api/position",
		strings.NewReader(`{"lat": 46.96, "lon": 8.55, "altitude": 1820}`))
	w := httptest.NewRecorder()
	h.HandlePosition(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("StatusCode: got %v, want %v", w.Code, http.StatusOK)
	}

	req = httptest.NewRequest("POST", "/api/position", strings.NewReader(`broken`))
	w = httptest.NewRecorder()
	h.HandlePosition(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("StatusCode: got %v, want %v", w.Code, http.StatusBadRequest)
	}
}

func TestTrackLookup(t *testing.T) {
	st := newFakeFlightStore()
	st.tracks["flight-1"] = []model.PositionSample{
		{Timestamp: time.Now(), Lat: 46.96, Lon: 8.55, Altitude: 1820},
	}
	mgr := newTestManager(st)
	h := NewFlightHandler(mgr, st)

	req := httptest.NewRequest("GET", "/api/flights/flight-1/track", http.NoBody)
	req.SetPathValue("id", "flight-1")
	w := httptest.NewRecorder()
	h.HandleTrack(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("StatusCode: got %v, want %v", w.Code, http.StatusOK)
	}

	req = httptest.NewRequest("GET", "/api/flights/missing/track", http.NoBody)
	req.SetPathValue("id", "missing")
	w = httptest.NewRecorder()
	h.HandleTrack(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("StatusCode: got %v, want %v", w.Code, http.StatusNotFound)
	}
}

func TestReplayStartUnknownFlight(t *testing.T) {
	st := newFakeFlightStore()
	mgr := newTestManager(st)
	h := NewReplayHandler(session.NewReplayer(mgr), st)

	req := httptest.NewRequest("POST", "/api/replay/start",
		strings.NewReader(`{"flight_id": "missing"}`))
	w := httptest.NewRecorder()
	h.HandleStart(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("StatusCode: got %v, want %v", w.Code, http.StatusNotFound)
	}
}

func TestAlertsEmptyList(t *testing.T) {
	sm := safety.NewMonitor(config.DefaultConfig().Alerts, nil, nil, nil)
	h := NewAlertHandler(sm)

	req := httptest.NewRequest("GET", "/api/alerts", http.NoBody)
	w := httptest.NewRecorder()
	h.HandleAlerts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("StatusCode: got %v, want %v", w.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("expected empty JSON array, got %s", got)
	}
}
