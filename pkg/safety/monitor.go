// Package safety watches the sample stream for airspace violations and
// altitude-ceiling breaches, and owns the offline-first alert pipeline.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"soartrack/pkg/airspace"
	"soartrack/pkg/config"
	"soartrack/pkg/model"
	"soartrack/pkg/queue"
	"soartrack/pkg/store"
)

// Monitor is the violation tracker plus alert pipeline. It subscribes to
// the session manager as a listener; all mutation happens on the sample
// ingestion path plus the manager's lifecycle notifications, serialized by
// its own mutex.
type Monitor struct {
	mu sync.Mutex

	cfg   config.AlertsConfig
	eval  *airspace.Evaluator
	store store.AlertStore
	queue *queue.Queue

	userID   string
	userName string
	license  string

	alerts []model.AlertRecord
	recent map[string]time.Time

	// Per-flight violation context
	flightID      string
	entries       map[string]*model.ZoneEntry
	violations    []model.ViolationRecord
	flightAlertID string

	onAlert  []AlertCallback
	onZone   []ZoneEntryCallback
	alertSeq int

	now func() time.Time
}

// ZoneEntryCallback is invoked when the open flight enters a zone it was
// not already inside. Runs with the monitor lock held; keep it cheap.
type ZoneEntryCallback func(userID string, e model.ZoneEntry)

// OnZoneEntry registers a callback. Startup wiring only.
func (m *Monitor) OnZoneEntry(fn ZoneEntryCallback) {
	m.onZone = append(m.onZone, fn)
}

// NewMonitor wires the safety monitor. The evaluator may hold an empty
// zone set; geofencing is then effectively disabled.
func NewMonitor(cfg config.AlertsConfig, eval *airspace.Evaluator, st store.AlertStore, q *queue.Queue) *Monitor {
	return &Monitor{
		cfg:     cfg,
		eval:    eval,
		store:   st,
		queue:   q,
		recent:  make(map[string]time.Time),
		entries: make(map[string]*model.ZoneEntry),
		now:     time.Now,
	}
}

// SetUser switches the active user and loads their persisted alerts.
func (m *Monitor) SetUser(ctx context.Context, userID, userName, license string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.userID = userID
	m.userName = userName
	m.license = license
	m.alerts = nil
	m.recent = make(map[string]time.Time)
	m.resetFlightLocked()

	if m.store == nil || userID == "" {
		return
	}
	alerts, err := m.store.LoadAlerts(ctx, userID)
	if err != nil {
		slog.Error("Safety: failed to load alerts", "user", userID, "error", err)
		return
	}
	m.alerts = alerts
}

// OnFlightStarted opens a fresh violation context for the flight.
func (m *Monitor) OnFlightStarted(f *model.TrackedFlight) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetFlightLocked()
	m.flightID = f.ID
}

// OnFlightEnded finalizes any zone the pilot was still inside when the
// flight closed: those dwells end as landed_in_airspace, not completed.
func (m *Monitor) OnFlightEnded(f *model.TrackedFlight) {
	ctx := context.Background()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.flightID != f.ID {
		return
	}

	changed := false
	for id, e := range m.entries {
		m.finalizeEntryLocked(id, e, model.ViolationLandedInside, e.UpdatedAt, 0, 0)
		changed = true
	}
	if changed {
		m.updateFlightAlertLocked(ctx)
	}
	m.resetFlightLocked()
}

// OnEvent is part of the session listener; the monitor keys off lifecycle
// callbacks instead.
func (m *Monitor) OnEvent(_ model.FlightEvent) {}

// OnSample evaluates one accepted position fix: zone containment for the
// open flight, and the optional altitude ceiling.
func (m *Monitor) OnSample(_ string, s model.PositionSample) {
	ctx := context.Background()

	m.mu.Lock()
	defer m.mu.Unlock()

	if ceiling := float64(m.cfg.CeilingAlt); ceiling > 0 && s.Altitude > ceiling {
		m.createIfNotDuplicateLocked(ctx, "altitude_violation",
			model.AlertAltitudeCeiling, model.SeverityWarning,
			fmt.Sprintf("altitude %.0fm exceeds ceiling %.0fm", s.Altitude, ceiling),
			map[string]any{"altitude": s.Altitude, "ceiling": ceiling, "lat": s.Lat, "lon": s.Lon})
	}

	if m.flightID == "" || m.eval == nil {
		return
	}
	m.trackZonesLocked(ctx, s)
}

// trackZonesLocked reconciles the active zone entries against the zones
// containing the sample. Overlapping zones track independently.
func (m *Monitor) trackZonesLocked(ctx context.Context, s model.PositionSample) {
	zones := m.eval.ZonesContaining(s.Lat, s.Lon, s.Altitude)

	seen := make(map[string]bool, len(zones))
	changed := false

	for _, z := range zones {
		seen[z.ID] = true

		if e, ok := m.entries[z.ID]; ok {
			e.UpdatedAt = s.Timestamp
			e.SampleCount++
			if s.Altitude < e.MinAlt {
				e.MinAlt = s.Altitude
			}
			if s.Altitude > e.MaxAlt {
				e.MaxAlt = s.Altitude
			}
			continue
		}

		// New zone entry
		m.entries[z.ID] = &model.ZoneEntry{
			ZoneID:      z.ID,
			ZoneName:    z.Name,
			Category:    z.Category,
			EnteredAt:   s.Timestamp,
			UpdatedAt:   s.Timestamp,
			EntryLat:    s.Lat,
			EntryLon:    s.Lon,
			EntryAlt:    s.Altitude,
			MinAlt:      s.Altitude,
			MaxAlt:      s.Altitude,
			SampleCount: 1,
		}
		m.violations = append(m.violations, model.ViolationRecord{
			ZoneID:      z.ID,
			ZoneName:    z.Name,
			Category:    z.Category,
			Status:      model.ViolationInProgress,
			EnteredAt:   s.Timestamp,
			EntryLat:    s.Lat,
			EntryLon:    s.Lon,
			MinAlt:      s.Altitude,
			MaxAlt:      s.Altitude,
			SampleCount: 1,
		})
		slog.Warn("Safety: entered restricted zone",
			"zone", z.ID, "name", z.Name, "category", z.Category, "alt", s.Altitude)
		for _, fn := range m.onZone {
			fn(m.userID, *m.entries[z.ID])
		}

		m.airspaceAlertLocked(ctx, z, s)
		changed = true
	}

	for id, e := range m.entries {
		if seen[id] {
			continue
		}
		m.finalizeEntryLocked(id, e, model.ViolationCompleted, s.Timestamp, s.Lat, s.Lon)
		changed = true
	}

	if changed {
		m.updateFlightAlertLocked(ctx)
	}
}

// airspaceAlertLocked creates the flight's consolidated airspace alert on
// the first zone entry; later entries fold into it via merge-updates
// issued by updateFlightAlertLocked.
func (m *Monitor) airspaceAlertLocked(ctx context.Context, z *model.RestrictedZone, s model.PositionSample) {
	if m.flightAlertID != "" {
		return
	}

	id, created := m.createIfNotDuplicateLocked(ctx, "airspace_"+z.ID,
		model.AlertAirspaceViolation, model.SeverityCritical,
		fmt.Sprintf("entered %s (%s) at %.0fm", z.Name, z.Category, s.Altitude),
		map[string]any{"flight_id": m.flightID, "zone_id": z.ID})
	if created {
		m.flightAlertID = id
	}
}

// finalizeEntryLocked closes one zone dwell and syncs its violation
// record. Exit position is zero for landed-inside finalization.
func (m *Monitor) finalizeEntryLocked(id string, e *model.ZoneEntry, status model.ViolationStatus, exitedAt time.Time, exitLat, exitLon float64) {
	for i := range m.violations {
		v := &m.violations[i]
		if v.ZoneID != id || v.Status != model.ViolationInProgress {
			continue
		}
		v.Status = status
		v.ExitedAt = exitedAt
		v.ExitLat = exitLat
		v.ExitLon = exitLon
		v.DwellSeconds = exitedAt.Sub(e.EnteredAt).Seconds()
		v.MinAlt = e.MinAlt
		v.MaxAlt = e.MaxAlt
		v.SampleCount = e.SampleCount
		break
	}
	delete(m.entries, id)

	slog.Info("Safety: zone dwell finalized", "zone", id, "status", status)
}

// ActiveEntries returns the zones the open flight is currently inside.
func (m *Monitor) ActiveEntries() []model.ZoneEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.ZoneEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	return out
}

// Violations returns the open flight's violation history so far.
func (m *Monitor) Violations() []model.ViolationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ViolationRecord(nil), m.violations...)
}

func (m *Monitor) resetFlightLocked() {
	m.flightID = ""
	m.entries = make(map[string]*model.ZoneEntry)
	m.violations = nil
	m.flightAlertID = ""
}
