package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"soartrack/pkg/db"
	"soartrack/pkg/model"
)

// KV keys for the persisted collections. Alert and flight collections are
// namespaced by user so a user switch never reads another account's data.
const (
	keyPendingOps = "pending_ops"
	keyAlerts     = "alerts"  // alerts:<userID>
	keyFlights    = "flights" // flights:<userID>
)

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- KV ---

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool) {
	var val []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	return val, true
}

func (s *SQLiteStore) Set(ctx context.Context, key string, val []byte) error {
	query := `INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now())
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key)
	return err
}

// --- Pending operations ---

func (s *SQLiteStore) LoadOps(ctx context.Context) ([]model.PendingOperation, error) {
	data, ok := s.Get(ctx, keyPendingOps)
	if !ok {
		return nil, nil
	}
	var ops []model.PendingOperation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("failed to decode pending ops: %w", err)
	}
	return ops, nil
}

func (s *SQLiteStore) SaveOps(ctx context.Context, ops []model.PendingOperation) error {
	data, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to encode pending ops: %w", err)
	}
	return s.Set(ctx, keyPendingOps, data)
}

// --- Alerts ---

func (s *SQLiteStore) LoadAlerts(ctx context.Context, userID string) ([]model.AlertRecord, error) {
	data, ok := s.Get(ctx, userKey(keyAlerts, userID))
	if !ok {
		return nil, nil
	}
	var alerts []model.AlertRecord
	if err := json.Unmarshal(data, &alerts); err != nil {
		return nil, fmt.Errorf("failed to decode alerts for %s: %w", userID, err)
	}
	return alerts, nil
}

func (s *SQLiteStore) SaveAlerts(ctx context.Context, userID string, alerts []model.AlertRecord) error {
	data, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to encode alerts: %w", err)
	}
	return s.Set(ctx, userKey(keyAlerts, userID), data)
}

// --- Flights ---

// LoadFlights returns the flight log most-recent-first, rehydrating track
// logs from the compressed cache.
func (s *SQLiteStore) LoadFlights(ctx context.Context, userID string) ([]model.TrackedFlight, error) {
	data, ok := s.Get(ctx, userKey(keyFlights, userID))
	if !ok {
		return nil, nil
	}
	var flights []model.TrackedFlight
	if err := json.Unmarshal(data, &flights); err != nil {
		return nil, fmt.Errorf("failed to decode flights for %s: %w", userID, err)
	}

	for i := range flights {
		if track, ok := s.GetTrack(ctx, flights[i].ID); ok {
			flights[i].Track = track
		}
	}
	return flights, nil
}

// SaveFlights persists the flight log. Track logs are written to the
// compressed cache and stripped from the collection blob to keep the
// full-collection rewrite small.
func (s *SQLiteStore) SaveFlights(ctx context.Context, userID string, flights []model.TrackedFlight) error {
	slim := make([]model.TrackedFlight, len(flights))
	for i := range flights {
		if len(flights[i].Track) > 0 {
			if err := s.SaveTrack(ctx, flights[i].ID, userID, flights[i].Track); err != nil {
				return err
			}
		}
		slim[i] = flights[i]
		slim[i].Track = nil
	}

	data, err := json.Marshal(slim)
	if err != nil {
		return fmt.Errorf("failed to encode flights: %w", err)
	}
	return s.Set(ctx, userKey(keyFlights, userID), data)
}

func (s *SQLiteStore) GetTrack(ctx context.Context, flightID string) ([]model.PositionSample, bool) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM track_cache WHERE flight_id = ?", flightID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		return nil, false
	}

	// Transparent decompression
	if len(blob) > 2 && blob[0] == 0x1f && blob[1] == 0x8b {
		if decompressed, err := decompress(blob); err == nil {
			blob = decompressed
		}
	}

	var track []model.PositionSample
	if err := json.Unmarshal(blob, &track); err != nil {
		return nil, false
	}
	return track, true
}

func (s *SQLiteStore) SaveTrack(ctx context.Context, flightID, userID string, track []model.PositionSample) error {
	data, err := json.Marshal(track)
	if err != nil {
		return fmt.Errorf("failed to encode track: %w", err)
	}

	// Transparent compression
	if compressed, err := compress(data); err == nil {
		data = compressed
	}

	query := `INSERT OR REPLACE INTO track_cache (flight_id, user_id, data, created_at) VALUES (?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, flightID, userID, data, time.Now())
	return err
}

// PruneTracks removes cached tracks for flights no longer in any log.
func (s *SQLiteStore) PruneTracks(ctx context.Context, keepFlightIDs []string) error {
	if len(keepFlightIDs) == 0 {
		_, err := s.db.ExecContext(ctx, "DELETE FROM track_cache")
		return err
	}

	placeholders := strings.Repeat("?,", len(keepFlightIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(keepFlightIDs))
	for i, id := range keepFlightIDs {
		args[i] = id
	}

	query := "DELETE FROM track_cache WHERE flight_id NOT IN (" + placeholders + ")"
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func userKey(prefix, userID string) string {
	return prefix + ":" + userID
}

// --- Compression pooling ---

var (
	// Pool for gzip writers to reuse flate state
	gzipWriterPool = sync.Pool{
		New: func() interface{} {
			return gzip.NewWriter(io.Discard)
		},
	}
	// Pool for generic byte buffers
	bufferPool = sync.Pool{
		New: func() interface{} {
			return new(bytes.Buffer)
		},
	}
)

func compress(data []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	w := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)

	w.Reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	// Must copy because buf is returned to pool
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
