package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks engine activity counters per user.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*UserStats
}

// UserStats holds counters for a single user.
// Fields are accessed atomically.
type UserStats struct {
	SamplesProcessed int64
	FlightsOpened    int64
	FlightsClosed    int64
	ZoneEntries      int64
	AlertsCreated    int64
	SyncSuccess      int64
	SyncFailures     int64
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*UserStats),
	}
}

// getStats returns the stats object for a user, creating it if needed.
func (t *Tracker) getStats(userID string) *UserStats {
	t.mu.RLock()
	s, ok := t.stats[userID]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[userID]; ok {
		return s
	}
	s = &UserStats{}
	t.stats[userID] = s
	return s
}

// TrackSample increments the processed-sample counter.
func (t *Tracker) TrackSample(userID string) {
	atomic.AddInt64(&t.getStats(userID).SamplesProcessed, 1)
}

func (t *Tracker) TrackFlightOpened(userID string) {
	atomic.AddInt64(&t.getStats(userID).FlightsOpened, 1)
}

func (t *Tracker) TrackFlightClosed(userID string) {
	atomic.AddInt64(&t.getStats(userID).FlightsClosed, 1)
}

func (t *Tracker) TrackZoneEntry(userID string) {
	atomic.AddInt64(&t.getStats(userID).ZoneEntries, 1)
}

func (t *Tracker) TrackAlert(userID string) {
	atomic.AddInt64(&t.getStats(userID).AlertsCreated, 1)
}

func (t *Tracker) TrackSyncSuccess(userID string) {
	atomic.AddInt64(&t.getStats(userID).SyncSuccess, 1)
}

func (t *Tracker) TrackSyncFailure(userID string) {
	atomic.AddInt64(&t.getStats(userID).SyncFailures, 1)
}

// Reset zeroes all counters while keeping known users in the map.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.stats {
		t.stats[k] = &UserStats{}
	}
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]UserStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]UserStats)
	for k, v := range t.stats {
		result[k] = UserStats{
			SamplesProcessed: atomic.LoadInt64(&v.SamplesProcessed),
			FlightsOpened:    atomic.LoadInt64(&v.FlightsOpened),
			FlightsClosed:    atomic.LoadInt64(&v.FlightsClosed),
			ZoneEntries:      atomic.LoadInt64(&v.ZoneEntries),
			AlertsCreated:    atomic.LoadInt64(&v.AlertsCreated),
			SyncSuccess:      atomic.LoadInt64(&v.SyncSuccess),
			SyncFailures:     atomic.LoadInt64(&v.SyncFailures),
		}
	}
	return result
}
