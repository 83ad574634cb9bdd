package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"soartrack/pkg/airspace"
	"soartrack/pkg/model"
)

func testEvaluator() *airspace.Evaluator {
	zone := model.RestrictedZone{
		ID:       "ctr-test",
		Name:     "Test CTR",
		Category: model.ZoneControl,
		Ceiling:  model.AltitudeBound{Value: 3000, Reference: model.RefMSL},
		Boundary: []model.Coordinate{
			{Lat: 46.9, Lon: 8.3}, {Lat: 46.9, Lon: 8.5},
			{Lat: 47.1, Lon: 8.5}, {Lat: 47.1, Lon: 8.3},
		},
	}
	return airspace.NewFromZones([]model.RestrictedZone{zone}, 0)
}

func TestZoneHandlerNearby(t *testing.T) {
	h := NewZoneHandler(testEvaluator(), 10)

	req := httptest.NewRequest("GET", "/api/zones/nearby?lat=47.0&lon=8.4", http.NoBody)
	w := httptest.NewRecorder()
	h.HandleNearby(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("StatusCode: got %v, want %v", w.Code, http.StatusOK)
	}

	var zones []model.RestrictedZone
	if err := json.NewDecoder(w.Body).Decode(&zones); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if len(zones) != 1 || zones[0].ID != "ctr-test" {
		t.Errorf("expected one zone ctr-test, got %+v", zones)
	}
}

func TestZoneHandlerBadParams(t *testing.T) {
	h := NewZoneHandler(testEvaluator(), 10)

	tests := []struct {
		name string
		url  string
	}{
		{"MissingLat", "/api/zones/nearby?lon=8.4"},
		{"BadLon", "/api/zones/nearby?lat=47.0&lon=abc"},
		{"NegativeRadius", "/api/zones/nearby?lat=47.0&lon=8.4&radius_km=-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.url, http.NoBody)
			w := httptest.NewRecorder()
			h.HandleNearby(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("StatusCode: got %v, want %v", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestZoneHandlerFarAway(t *testing.T) {
	h := NewZoneHandler(testEvaluator(), 10)

	req := httptest.NewRequest("GET", "/api/zones/nearby?lat=40.0&lon=0.0", http.NoBody)
	w := httptest.NewRecorder()
	h.HandleNearby(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("StatusCode: got %v, want %v", w.Code, http.StatusOK)
	}

	var zones []model.RestrictedZone
	if err := json.NewDecoder(w.Body).Decode(&zones); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if len(zones) != 0 {
		t.Errorf("expected no zones, got %d", len(zones))
	}
}
