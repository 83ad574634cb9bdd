package model

import "time"

// ZoneCategory classifies restricted airspace.
type ZoneCategory string

const (
	ZoneControl    ZoneCategory = "control_zone"
	ZoneDanger     ZoneCategory = "danger_area"
	ZoneProhibited ZoneCategory = "prohibited_area"
	ZoneRestricted ZoneCategory = "restricted_area"
	ZoneTMA        ZoneCategory = "tma"
	ZoneOtherArea  ZoneCategory = "other"
)

// AltitudeReference says how a zone bound is expressed.
type AltitudeReference string

const (
	RefMSL         AltitudeReference = "msl" // above mean sea level
	RefStd         AltitudeReference = "std" // standard pressure
	RefAGL         AltitudeReference = "agl" // above ground level, compared best-effort
	RefFlightLevel AltitudeReference = "fl"  // flight level, 1 FL = 30.48 m
)

// MetersPerFlightLevel converts FL values to meters.
const MetersPerFlightLevel = 30.48

// AltitudeBound is one vertical limit of a zone.
type AltitudeBound struct {
	Value     float64           `json:"value"`
	Reference AltitudeReference `json:"reference"`
}

// Meters returns the bound in meters for comparison against reported altitude.
func (b AltitudeBound) Meters() float64 {
	if b.Reference == RefFlightLevel {
		return b.Value * MetersPerFlightLevel
	}
	return b.Value
}

// Coordinate is a polygon vertex.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RestrictedZone is one airspace volume from the static dataset.
// Loaded once at startup, read-only afterwards.
type RestrictedZone struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Category ZoneCategory `json:"category"`
	Class    string       `json:"class,omitempty"`

	Floor   AltitudeBound `json:"floor"`
	Ceiling AltitudeBound `json:"ceiling"`

	Boundary []Coordinate `json:"boundary"` // ordered, >= 3 vertices

	TimeActivated     bool `json:"time_activated,omitempty"`
	SpecialActivation bool `json:"special_activation,omitempty"`
	InformationalOnly bool `json:"informational_only,omitempty"`
}

// ZoneEntry is per-zone dwell state while a flight is inside the zone.
// Keyed by zone ID; overlapping zones track independently.
type ZoneEntry struct {
	ZoneID   string       `json:"zone_id"`
	ZoneName string       `json:"zone_name"`
	Category ZoneCategory `json:"category"`

	EnteredAt time.Time `json:"entered_at"`
	UpdatedAt time.Time `json:"updated_at"`

	EntryLat float64 `json:"entry_lat"`
	EntryLon float64 `json:"entry_lon"`
	EntryAlt float64 `json:"entry_alt"`

	MinAlt      float64 `json:"min_alt"`
	MaxAlt      float64 `json:"max_alt"`
	SampleCount int     `json:"sample_count"`
}

// ViolationStatus is the terminal state of a violation record.
type ViolationStatus string

const (
	ViolationInProgress   ViolationStatus = "in_progress"
	ViolationCompleted    ViolationStatus = "completed"
	ViolationLandedInside ViolationStatus = "landed_in_airspace"
)

// ViolationRecord is the audit entry for one zone dwell during a flight.
type ViolationRecord struct {
	ZoneID   string          `json:"zone_id"`
	ZoneName string          `json:"zone_name"`
	Category ZoneCategory    `json:"category"`
	Status   ViolationStatus `json:"status"`

	EnteredAt time.Time `json:"entered_at"`
	ExitedAt  time.Time `json:"exited_at,omitempty"`

	EntryLat float64 `json:"entry_lat"`
	EntryLon float64 `json:"entry_lon"`
	ExitLat  float64 `json:"exit_lat,omitempty"`
	ExitLon  float64 `json:"exit_lon,omitempty"`

	DwellSeconds float64 `json:"dwell_seconds"`
	MinAlt       float64 `json:"min_alt"`
	MaxAlt       float64 `json:"max_alt"`
	SampleCount  int     `json:"sample_count"`
}
