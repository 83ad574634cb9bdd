// Package session owns the flight lifecycle: it feeds position samples to
// the detector, opens and closes tracked flights, labels them against the
// site directory, and keeps the per-user flight log.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"soartrack/pkg/config"
	"soartrack/pkg/flight"
	"soartrack/pkg/model"
	"soartrack/pkg/sites"
	"soartrack/pkg/store"
)

// Listener receives session lifecycle notifications. Implementations must
// not call back into the Manager.
type Listener interface {
	OnFlightStarted(f *model.TrackedFlight)
	OnFlightEnded(f *model.TrackedFlight)
	OnSample(userID string, s model.PositionSample)
	OnEvent(ev model.FlightEvent)
}

// Manager is the single ingestion point for one active user. All sample
// processing is serialized through its mutex; background timers (inactivity
// auto-close, replay feed) go through the same lock, so whichever transition
// fires first wins and the loser sees an empty open-session slot.
type Manager struct {
	mu sync.Mutex

	cfg      config.SessionConfig
	detector *flight.Detector
	sites    *sites.Directory
	store    store.FlightStore

	userID   string
	tracking bool

	current    *model.TrackedFlight
	flights    []model.TrackedFlight // most-recent-first
	lastSample *model.PositionSample

	inactivity *time.Timer

	listeners []Listener
}

// NewManager wires the session manager. The site directory and store may
// be empty/degraded; processing never blocks on them.
func NewManager(cfg config.SessionConfig, det *flight.Detector, dir *sites.Directory, st store.FlightStore) *Manager {
	return &Manager{
		cfg:      cfg,
		detector: det,
		sites:    dir,
		store:    st,
	}
}

// AddListener registers a lifecycle observer. Not safe to call concurrently
// with sample processing; register everything during startup.
func (m *Manager) AddListener(l Listener) {
	m.listeners = append(m.listeners, l)
}

// SetUser switches the active user. All in-memory state is dropped and the
// new user's persisted flight log is loaded before any new sample is
// accepted, so one account's track data never leaks into another's.
func (m *Manager) SetUser(ctx context.Context, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if userID == m.userID {
		return
	}

	m.stopInactivityLocked()
	m.current = nil
	m.lastSample = nil
	m.flights = nil
	m.detector.Reset()
	m.userID = userID

	if m.store == nil || userID == "" {
		return
	}
	flights, err := m.store.LoadFlights(ctx, userID)
	if err != nil {
		slog.Error("Session: failed to load flight log", "user", userID, "error", err)
		return
	}
	m.flights = flights
	slog.Info("Session: user switched", "user", userID, "flights", len(flights))
}

// UserID returns the active user.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// EnableTracking arms the detector. Idempotent; calling it while already
// tracking is a no-op.
func (m *Manager) EnableTracking() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tracking {
		return
	}
	m.detector.Reset()
	m.tracking = true
	slog.Info("Session: tracking enabled", "user", m.userID)
}

// DisableTracking stops accepting samples. Any open flight is cancelled so
// no session survives with nothing feeding it.
func (m *Manager) DisableTracking() {
	m.mu.Lock()
	ended := m.cancelLocked(time.Now())
	m.tracking = false
	m.stopInactivityLocked()
	m.detector.Reset()
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	if ended != nil {
		for _, l := range listeners {
			l.OnFlightEnded(ended)
		}
	}
	slog.Info("Session: tracking disabled")
}

// Tracking reports whether samples are being accepted.
func (m *Manager) Tracking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracking
}

// ProcessPosition ingests one position fix. Ignored unless tracking is
// enabled. Never blocks on network or returns an error; persistence
// failures are logged and skipped.
func (m *Manager) ProcessPosition(s model.PositionSample) {
	m.mu.Lock()
	if !m.tracking {
		m.mu.Unlock()
		return
	}

	// Derive vertical speed from the previous fix when the source
	// doesn't report one.
	if s.VerticalSpeed == 0 && m.lastSample != nil {
		dt := s.Timestamp.Sub(m.lastSample.Timestamp).Seconds()
		if dt > 0 {
			s.VerticalSpeed = (s.Altitude - m.lastSample.Altitude) / dt
		}
	}

	m.resetInactivityLocked()

	ev := m.detector.ProcessSample(s)

	var started, ended *model.TrackedFlight
	if ev != nil {
		switch ev.Type {
		case model.EventTakeoff:
			started = m.openLocked(ev)
		case model.EventLanding:
			ended = m.closeLocked(ev, model.StatusCompleted)
		}
	}

	if m.current != nil {
		m.current.Track = append(m.current.Track, s)
	}
	m.lastSample = &s

	userID := m.userID
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	for _, l := range listeners {
		if started != nil {
			l.OnFlightStarted(started)
		}
		if ev != nil {
			l.OnEvent(*ev)
		}
		l.OnSample(userID, s)
		if ended != nil {
			l.OnFlightEnded(ended)
		}
	}
}

// ProcessInertial forwards an advisory sensor reading to the detector.
func (m *Manager) ProcessInertial(s model.InertialSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.tracking {
		return
	}
	m.detector.ProcessInertial(s)
}

// CancelCurrentFlight explicitly abandons the open flight. No-op when no
// flight is open, which also resolves the race against auto-close.
func (m *Manager) CancelCurrentFlight() {
	m.mu.Lock()
	ended := m.cancelLocked(time.Now())
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	if ended == nil {
		return
	}
	for _, l := range listeners {
		l.OnFlightEnded(ended)
	}
}

// CurrentFlight returns a copy of the open flight, or nil.
func (m *Manager) CurrentFlight() *model.TrackedFlight {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	f := *m.current
	f.Track = append([]model.PositionSample(nil), m.current.Track...)
	return &f
}

// Flights returns the user's flight log, most recent first.
func (m *Manager) Flights() []model.TrackedFlight {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TrackedFlight(nil), m.flights...)
}

// Status returns a short state description for UI display.
func (m *Manager) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case !m.tracking:
		return "tracking disabled"
	case m.current != nil:
		return fmt.Sprintf("in flight from %s (%s)",
			m.current.TakeoffSiteName,
			m.current.Duration(time.Now()).Round(time.Second))
	default:
		return "waiting for takeoff"
	}
}

// openLocked creates a tracked flight from a takeoff event. The single
// open-session slot is the invariant: an already-open flight makes this a
// no-op rather than a second session.
func (m *Manager) openLocked(ev *model.FlightEvent) *model.TrackedFlight {
	if m.current != nil {
		slog.Warn("Session: takeoff with session already open, ignored", "flight", m.current.ID)
		return nil
	}

	f := &model.TrackedFlight{
		ID:          uuid.NewString(),
		UserID:      m.userID,
		Status:      model.StatusInFlight,
		TakeoffTime: ev.Timestamp,
		TakeoffLat:  ev.Lat,
		TakeoffLon:  ev.Lon,
		TakeoffAlt:  ev.Altitude,
	}

	if site := m.sites.Nearest(ev.Lat, ev.Lon, model.SiteTakeoff, float64(m.cfg.TakeoffSiteRadius)); site != nil {
		f.TakeoffSiteID = site.ID
		f.TakeoffSiteName = site.Name
	} else {
		f.TakeoffSiteName = model.UnknownLocationLabel(ev.Lat, ev.Lon)
	}

	m.current = f
	slog.Info("Session: flight started",
		"flight", f.ID, "site", f.TakeoffSiteName, "takeoff", f.TakeoffTime)
	return f
}

// closeLocked finalizes the open flight with the given landing event.
// Returns nil when no flight is open.
func (m *Manager) closeLocked(ev *model.FlightEvent, status model.FlightStatus) *model.TrackedFlight {
	f := m.current
	if f == nil {
		return nil
	}

	f.Status = status
	f.LandingTime = ev.Timestamp
	f.LandingLat = ev.Lat
	f.LandingLon = ev.Lon
	f.LandingAlt = ev.Altitude

	if site := m.landingSiteLocked(ev); site != nil {
		f.LandingSiteID = site.ID
		f.LandingSiteName = site.Name
	} else {
		f.LandingSiteName = model.UnknownLocationLabel(ev.Lat, ev.Lon)
	}

	m.finishLocked(f)
	slog.Info("Session: flight ended",
		"flight", f.ID, "status", f.Status, "site", f.LandingSiteName,
		"duration", f.LandingTime.Sub(f.TakeoffTime).Round(time.Second))
	return f
}

// landingSiteLocked resolves the landing label: a tagged landing site
// first, then any site within the close-proximity envelope.
func (m *Manager) landingSiteLocked(ev *model.FlightEvent) *model.Site {
	if site := m.sites.Nearest(ev.Lat, ev.Lon, model.SiteLanding, float64(m.cfg.LandingSiteRadius)); site != nil {
		return site
	}
	return m.sites.NearestAny(ev.Lat, ev.Lon, ev.Altitude,
		float64(m.cfg.FallbackSiteRadius), float64(m.cfg.FallbackSiteVert))
}

// cancelLocked closes the open flight as cancelled, skipping site lookup.
func (m *Manager) cancelLocked(now time.Time) *model.TrackedFlight {
	f := m.current
	if f == nil {
		return nil
	}

	f.Status = model.StatusCancelled
	f.LandingTime = now
	if m.lastSample != nil {
		f.LandingLat = m.lastSample.Lat
		f.LandingLon = m.lastSample.Lon
		f.LandingAlt = m.lastSample.Altitude
	}
	f.LandingSiteName = model.UnknownLocationLabel(f.LandingLat, f.LandingLon)

	m.finishLocked(f)
	slog.Info("Session: flight cancelled", "flight", f.ID)
	return f
}

// finishLocked appends the flight to the log, persists it, and clears the
// open slot, the inactivity timer and the detector.
func (m *Manager) finishLocked(f *model.TrackedFlight) {
	m.flights = append([]model.TrackedFlight{*f}, m.flights...)
	m.current = nil
	m.stopInactivityLocked()
	m.detector.Reset()

	if m.store == nil {
		return
	}
	if err := m.store.SaveFlights(context.Background(), m.userID, m.flights); err != nil {
		slog.Error("Session: failed to persist flight log", "user", m.userID, "error", err)
	}
}

// resetInactivityLocked re-arms the auto-close timer.
func (m *Manager) resetInactivityLocked() {
	m.stopInactivityLocked()
	timeout := time.Duration(m.cfg.InactivityTimeout)
	if timeout <= 0 {
		return
	}
	m.inactivity = time.AfterFunc(timeout, m.autoClose)
}

func (m *Manager) stopInactivityLocked() {
	if m.inactivity != nil {
		m.inactivity.Stop()
		m.inactivity = nil
	}
}

// autoClose fires when no sample arrived for the inactivity timeout; the
// last known sample becomes the landing point. This covers GPS dropout
// and a replay feed that just stops.
func (m *Manager) autoClose() {
	m.mu.Lock()
	if m.current == nil || m.lastSample == nil {
		m.mu.Unlock()
		return
	}

	s := m.lastSample
	ev := &model.FlightEvent{
		Type:      model.EventLanding,
		Timestamp: s.Timestamp,
		Lat:       s.Lat,
		Lon:       s.Lon,
		Altitude:  s.Altitude,
	}
	slog.Info("Session: inactivity timeout, auto-closing flight", "flight", m.current.ID)
	ended := m.closeLocked(ev, model.StatusCompleted)
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	if ended == nil {
		return
	}
	for _, l := range listeners {
		l.OnFlightEnded(ended)
	}
}

func (m *Manager) snapshotListeners() []Listener {
	return append([]Listener(nil), m.listeners...)
}
