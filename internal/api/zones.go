package api

import (
	"net/http"
	"strconv"

	"soartrack/pkg/airspace"
	"soartrack/pkg/model"
)

// ZoneHandler answers restricted-zone queries against the loaded dataset.
type ZoneHandler struct {
	eval            *airspace.Evaluator
	defaultRadiusKm float64
}

func NewZoneHandler(eval *airspace.Evaluator, defaultRadiusKm float64) *ZoneHandler {
	if defaultRadiusKm <= 0 {
		defaultRadiusKm = 10
	}
	return &ZoneHandler{eval: eval, defaultRadiusKm: defaultRadiusKm}
}

// HandleNearby returns zones within radius_km of lat/lon, nearest first.
func (h *ZoneHandler) HandleNearby(w http.ResponseWriter, r *http.Request) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		http.Error(w, "invalid lat", http.StatusBadRequest)
		return
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil {
		http.Error(w, "invalid lon", http.StatusBadRequest)
		return
	}

	radiusKm := h.defaultRadiusKm
	if raw := r.URL.Query().Get("radius_km"); raw != "" {
		radiusKm, err = strconv.ParseFloat(raw, 64)
		if err != nil || radiusKm <= 0 {
			http.Error(w, "invalid radius_km", http.StatusBadRequest)
			return
		}
	}

	zones := h.eval.NearbyZones(lat, lon, radiusKm)
	resp := make([]model.RestrictedZone, 0, len(zones))
	for _, z := range zones {
		resp = append(resp, *z)
	}
	writeJSON(w, resp)
}
