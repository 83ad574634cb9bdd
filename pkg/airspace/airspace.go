package airspace

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	h3 "github.com/uber/h3-go/v4"

	"soartrack/pkg/geo"
	"soartrack/pkg/model"
)

// DefaultCellResolution is the H3 resolution of the zone pre-filter index.
// Res 4 cells average ~1,770 km², comfortably larger than typical CTR/TMA
// footprints, so the index stays small while still cutting the candidate set.
const DefaultCellResolution = 4

// Evaluator answers 3D containment queries against the loaded zone set.
// The zone set is immutable after construction; no locking needed.
type Evaluator struct {
	zones []model.RestrictedZone
	rings []orb.Ring // parallel to zones

	res   int
	cells map[h3.Cell][]int // cell -> zone indices; nil if the index failed to build
}

// NewFromZones builds an evaluator from an in-memory zone set.
func NewFromZones(zones []model.RestrictedZone, cellRes int) *Evaluator {
	if cellRes <= 0 {
		cellRes = DefaultCellResolution
	}

	e := &Evaluator{
		zones: zones,
		rings: make([]orb.Ring, len(zones)),
		res:   cellRes,
	}

	for i, z := range zones {
		e.rings[i] = ringFromBoundary(z.Boundary)
	}

	e.buildCellIndex()
	return e
}

// Load reads the zone dataset from a GeoJSON file. A missing or malformed
// dataset degrades to an empty zone set (geofencing disabled) rather than
// failing startup.
func Load(path string, cellRes int) *Evaluator {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Airspace: zone dataset unavailable, geofencing disabled", "path", path, "error", err)
		return NewFromZones(nil, cellRes)
	}

	zones, err := ParseDataset(data)
	if err != nil {
		slog.Warn("Airspace: zone dataset malformed, geofencing disabled", "path", path, "error", err)
		return NewFromZones(nil, cellRes)
	}

	slog.Info("Airspace: loaded restricted zones", "count", len(zones))
	return NewFromZones(zones, cellRes)
}

// ParseDataset decodes a GeoJSON FeatureCollection into restricted zones.
// Features with fewer than 3 boundary vertices are rejected.
func ParseDataset(data []byte) ([]model.RestrictedZone, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse zone geojson: %w", err)
	}

	var zones []model.RestrictedZone
	for _, f := range fc.Features {
		z, err := zoneFromFeature(f)
		if err != nil {
			slog.Warn("Airspace: skipping zone feature", "error", err)
			continue
		}
		zones = append(zones, z)
	}
	return zones, nil
}

func zoneFromFeature(f *geojson.Feature) (model.RestrictedZone, error) {
	var z model.RestrictedZone

	var ring orb.Ring
	switch g := f.Geometry.(type) {
	case orb.Polygon:
		if len(g) > 0 {
			ring = g[0]
		}
	case orb.MultiPolygon:
		// One zone per feature; take the primary part
		if len(g) > 0 && len(g[0]) > 0 {
			ring = g[0][0]
		}
	default:
		return z, fmt.Errorf("unsupported geometry %T", f.Geometry)
	}
	if len(ring) < 3 {
		return z, fmt.Errorf("boundary has %d vertices, need >= 3", len(ring))
	}

	z.ID = f.Properties.MustString("id", "")
	if z.ID == "" {
		if f.ID != nil {
			z.ID = fmt.Sprintf("%v", f.ID)
		} else {
			return z, fmt.Errorf("zone feature missing id")
		}
	}
	z.Name = f.Properties.MustString("name", z.ID)
	z.Category = model.ZoneCategory(f.Properties.MustString("category", string(model.ZoneOtherArea)))
	z.Class = f.Properties.MustString("class", "")

	z.Floor = model.AltitudeBound{
		Value:     f.Properties.MustFloat64("floor", 0),
		Reference: model.AltitudeReference(f.Properties.MustString("floor_ref", string(model.RefMSL))),
	}
	z.Ceiling = model.AltitudeBound{
		Value:     f.Properties.MustFloat64("ceiling", 0),
		Reference: model.AltitudeReference(f.Properties.MustString("ceiling_ref", string(model.RefMSL))),
	}

	z.TimeActivated = f.Properties.MustBool("time_activated", false)
	z.SpecialActivation = f.Properties.MustBool("special_activation", false)
	z.InformationalOnly = f.Properties.MustBool("informational", false)

	for _, p := range ring {
		z.Boundary = append(z.Boundary, model.Coordinate{Lat: p[1], Lon: p[0]})
	}
	// GeoJSON rings are closed; drop the duplicate closing vertex
	last := len(z.Boundary) - 1
	if last > 0 && z.Boundary[0] == z.Boundary[last] {
		z.Boundary = z.Boundary[:last]
	}

	return z, nil
}

// ringFromBoundary builds a closed orb ring from ordered vertices.
func ringFromBoundary(boundary []model.Coordinate) orb.Ring {
	ring := make(orb.Ring, 0, len(boundary)+1)
	for _, c := range boundary {
		ring = append(ring, orb.Point{c.Lon, c.Lat})
	}
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

// buildCellIndex computes an H3 covering per zone. Covering cells are
// expanded by one ring so boundary-straddling query cells still hit.
// On any H3 failure the index is dropped and queries scan all zones.
func (e *Evaluator) buildCellIndex() {
	cells := make(map[h3.Cell][]int)

	for i, z := range e.zones {
		loop := make([]h3.LatLng, 0, len(z.Boundary))
		for _, c := range z.Boundary {
			loop = append(loop, h3.LatLng{Lat: c.Lat, Lng: c.Lon})
		}

		covering, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: loop}, e.res)
		if err != nil {
			slog.Warn("Airspace: cell index build failed, falling back to full scans", "zone", z.ID, "error", err)
			e.cells = nil
			return
		}

		// Vertex cells catch slivers PolygonToCells misses (it tests centers)
		for _, ll := range loop {
			cell, err := h3.LatLngToCell(ll, e.res)
			if err != nil {
				e.cells = nil
				return
			}
			covering = append(covering, cell)
		}

		seen := make(map[h3.Cell]struct{}, len(covering)*7)
		for _, cell := range covering {
			disk, err := h3.GridDisk(cell, 1)
			if err != nil {
				e.cells = nil
				return
			}
			for _, c := range disk {
				seen[c] = struct{}{}
			}
		}

		for c := range seen {
			cells[c] = append(cells[c], i)
		}
	}

	e.cells = cells
}

// candidates returns the indices of zones whose covering includes the point.
func (e *Evaluator) candidates(lat, lon float64) []int {
	if e.cells == nil {
		all := make([]int, len(e.zones))
		for i := range all {
			all[i] = i
		}
		return all
	}

	cell, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, e.res)
	if err != nil {
		all := make([]int, len(e.zones))
		for i := range all {
			all[i] = i
		}
		return all
	}
	return e.cells[cell]
}

// ZonesContaining returns every non-informational zone containing the 3D
// point. Overlapping zones all report; downstream violation tracking treats
// them independently.
func (e *Evaluator) ZonesContaining(lat, lon, altitude float64) []*model.RestrictedZone {
	var matches []*model.RestrictedZone

	point := orb.Point{lon, lat}
	for _, i := range e.candidates(lat, lon) {
		z := &e.zones[i]
		if z.InformationalOnly {
			continue
		}
		// Altitude band first: cheap reject before the polygon test
		if !altitudeInBand(altitude, z) {
			continue
		}
		if planar.PolygonContains(orb.Polygon{e.rings[i]}, point) {
			matches = append(matches, z)
		}
	}
	return matches
}

// ZoneContaining returns an arbitrary first matching zone, or nil.
func (e *Evaluator) ZoneContaining(lat, lon, altitude float64) *model.RestrictedZone {
	point := orb.Point{lon, lat}
	for _, i := range e.candidates(lat, lon) {
		z := &e.zones[i]
		if z.InformationalOnly {
			continue
		}
		if !altitudeInBand(altitude, z) {
			continue
		}
		if planar.PolygonContains(orb.Polygon{e.rings[i]}, point) {
			return z
		}
	}
	return nil
}

// NearbyZones returns zones with any boundary vertex within radiusKm of the
// point, nearest first. Cheap equirectangular screen for proximity warnings,
// independent of the strict containment test.
func (e *Evaluator) NearbyZones(lat, lon, radiusKm float64) []*model.RestrictedZone {
	type match struct {
		zone *model.RestrictedZone
		dist float64
	}
	var matches []match

	p := geo.Point{Lat: lat, Lon: lon}
	radiusM := radiusKm * 1000

	for i := range e.zones {
		z := &e.zones[i]
		closest := math.Inf(1)
		for _, v := range z.Boundary {
			if d := geo.EquirectDistance(p, geo.Point{Lat: v.Lat, Lon: v.Lon}); d < closest {
				closest = d
			}
		}
		if closest <= radiusM {
			matches = append(matches, match{zone: z, dist: closest})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].dist < matches[j].dist })

	out := make([]*model.RestrictedZone, len(matches))
	for i := range matches {
		out[i] = matches[i].zone
	}
	return out
}

// Zone returns the zone with the given ID, or nil.
func (e *Evaluator) Zone(id string) *model.RestrictedZone {
	for i := range e.zones {
		if e.zones[i].ID == id {
			return &e.zones[i]
		}
	}
	return nil
}

// Count returns the number of loaded zones.
func (e *Evaluator) Count() int {
	return len(e.zones)
}

// altitudeInBand reports whether the altitude falls inside the zone's
// vertical band. AGL bounds compare best-effort against reported altitude
// since terrain elevation is not modeled.
func altitudeInBand(altitude float64, z *model.RestrictedZone) bool {
	return altitude >= z.Floor.Meters() && altitude <= z.Ceiling.Meters()
}
