package model

import (
	"fmt"
	"time"
)

// PositionSample is a single fix from the position source.
// Altitude is meters MSL unless the source says otherwise.
type PositionSample struct {
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Altitude  float64   `json:"altitude"`

	// Optional sensor-provided values. Zero means "not reported";
	// the session manager derives VerticalSpeed when absent.
	GroundSpeed   float64 `json:"ground_speed,omitempty"`
	Heading       float64 `json:"heading,omitempty"`
	VerticalSpeed float64 `json:"vertical_speed,omitempty"`
}

// InertialSample is an advisory 3-axis accel/gyro reading.
type InertialSample struct {
	Timestamp time.Time `json:"timestamp"`
	Accel     *Vector3  `json:"accel,omitempty"`
	Gyro      *Vector3  `json:"gyro,omitempty"`
}

// Vector3 is a raw 3-axis sensor vector.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// EventType discriminates flight events.
type EventType string

const (
	EventTakeoff EventType = "takeoff"
	EventLanding EventType = "landing"
)

// FlightEvent is a one-shot transition signal from the detector.
type FlightEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	Lat           float64   `json:"lat"`
	Lon           float64   `json:"lon"`
	Altitude      float64   `json:"altitude"`
	GroundSpeed   float64   `json:"ground_speed"`
	VerticalSpeed float64   `json:"vertical_speed"`
}

// FlightStatus is the lifecycle state of a tracked flight.
type FlightStatus string

const (
	StatusInFlight  FlightStatus = "inFlight"
	StatusCompleted FlightStatus = "completed"
	StatusCancelled FlightStatus = "cancelled"
)

// TrackedFlight is one session from takeoff to landing/auto-close/cancel.
// Mutable only while Status == StatusInFlight.
type TrackedFlight struct {
	ID     string       `json:"id"`
	UserID string       `json:"user_id"`
	Status FlightStatus `json:"status"`

	TakeoffTime     time.Time `json:"takeoff_time"`
	TakeoffSiteID   string    `json:"takeoff_site_id,omitempty"`
	TakeoffSiteName string    `json:"takeoff_site_name"`
	TakeoffLat      float64   `json:"takeoff_lat"`
	TakeoffLon      float64   `json:"takeoff_lon"`
	TakeoffAlt      float64   `json:"takeoff_alt"`

	LandingTime     time.Time `json:"landing_time,omitempty"`
	LandingSiteID   string    `json:"landing_site_id,omitempty"`
	LandingSiteName string    `json:"landing_site_name,omitempty"`
	LandingLat      float64   `json:"landing_lat,omitempty"`
	LandingLon      float64   `json:"landing_lon,omitempty"`
	LandingAlt      float64   `json:"landing_alt,omitempty"`

	Track []PositionSample `json:"track"`

	Synced   bool      `json:"synced"`
	SyncedAt time.Time `json:"synced_at,omitempty"`
}

// Duration returns the flight duration, using now for open flights.
func (f *TrackedFlight) Duration(now time.Time) time.Duration {
	if f.Status == StatusInFlight {
		return now.Sub(f.TakeoffTime)
	}
	if f.LandingTime.IsZero() {
		return 0
	}
	return f.LandingTime.Sub(f.TakeoffTime)
}

// UnknownLocationLabel builds the fallback site label for a coordinate.
func UnknownLocationLabel(lat, lon float64) string {
	return fmt.Sprintf("unknown location (%.5f, %.5f)", lat, lon)
}

// SiteType tags entries in the site directory.
type SiteType string

const (
	SiteTakeoff SiteType = "takeoff"
	SiteLanding SiteType = "landing"
	SiteOther   SiteType = "other"
)

// Site is a named location from the external site directory.
type Site struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Type     SiteType `json:"type" yaml:"type"`
	Lat      float64  `json:"lat" yaml:"lat"`
	Lon      float64  `json:"lon" yaml:"lon"`
	Altitude float64  `json:"altitude" yaml:"altitude"`
}
