package store

import (
	"context"

	"soartrack/pkg/model"
)

// KVStore handles opaque key-value persistence. Writes are full-value
// rewrites; callers serialize writes per key.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte) error
	Delete(ctx context.Context, key string) error
}

// QueueStore persists the pending-operation queue as one collection.
type QueueStore interface {
	LoadOps(ctx context.Context) ([]model.PendingOperation, error)
	SaveOps(ctx context.Context, ops []model.PendingOperation) error
}

// AlertStore persists the local alert collection per user.
type AlertStore interface {
	LoadAlerts(ctx context.Context, userID string) ([]model.AlertRecord, error)
	SaveAlerts(ctx context.Context, userID string, alerts []model.AlertRecord) error
}

// FlightStore persists the flight-log collection per user, with track logs
// cached separately as compressed blobs.
type FlightStore interface {
	LoadFlights(ctx context.Context, userID string) ([]model.TrackedFlight, error)
	SaveFlights(ctx context.Context, userID string, flights []model.TrackedFlight) error

	GetTrack(ctx context.Context, flightID string) ([]model.PositionSample, bool)
	SaveTrack(ctx context.Context, flightID, userID string, track []model.PositionSample) error
	PruneTracks(ctx context.Context, keepFlightIDs []string) error
}

// Store composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	KVStore
	QueueStore
	AlertStore
	FlightStore

	// Close closes the store connection.
	Close() error
}
