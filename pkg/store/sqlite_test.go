package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"soartrack/pkg/db"
	"soartrack/pkg/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "store_test.db"))
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return NewSQLiteStore(d)
}

func TestKVRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok := s.Get(ctx, "missing"); ok {
		t.Error("Expected miss for unknown key")
	}

	if err := s.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	val, ok := s.Get(ctx, "k")
	if !ok || string(val) != "v2" {
		t.Errorf("Expected v2, got %q (ok=%v)", val, ok)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := s.Get(ctx, "k"); ok {
		t.Error("Expected miss after delete")
	}
}

func TestPendingOpsPersistence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ops, err := s.LoadOps(ctx)
	if err != nil {
		t.Fatalf("LoadOps on empty store failed: %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("Expected empty queue, got %d ops", len(ops))
	}

	now := time.Now().Truncate(time.Millisecond)
	want := []model.PendingOperation{
		{ID: "op1", Kind: model.OpCreate, Collection: "alerts", DocID: "a1", Payload: []byte(`{"x":1}`), EnqueuedAt: now},
		{ID: "op2", Kind: model.OpMerge, Collection: "alerts", DocID: "a1", Payload: []byte(`{"y":2}`), EnqueuedAt: now.Add(time.Second), Retries: 3},
	}
	if err := s.SaveOps(ctx, want); err != nil {
		t.Fatalf("SaveOps failed: %v", err)
	}

	got, err := s.LoadOps(ctx)
	if err != nil {
		t.Fatalf("LoadOps failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 ops, got %d", len(got))
	}
	if got[0].ID != "op1" || got[1].Retries != 3 {
		t.Errorf("Queue did not round-trip: %+v", got)
	}
	if !got[0].EnqueuedAt.Equal(want[0].EnqueuedAt) {
		t.Errorf("EnqueuedAt did not round-trip: %v vs %v", got[0].EnqueuedAt, want[0].EnqueuedAt)
	}
}

func TestFlightsWithTrackCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	track := make([]model.PositionSample, 120)
	for i := range track {
		track[i] = model.PositionSample{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Lat:       45.8 + float64(i)*0.0001,
			Lon:       6.2,
			Altitude:  1200 + float64(i),
		}
	}

	flights := []model.TrackedFlight{
		{
			ID:          "f1",
			UserID:      "u1",
			Status:      model.StatusCompleted,
			TakeoffTime: base,
			LandingTime: base.Add(2 * time.Minute),
			Track:       track,
		},
	}

	if err := s.SaveFlights(ctx, "u1", flights); err != nil {
		t.Fatalf("SaveFlights failed: %v", err)
	}

	got, err := s.LoadFlights(ctx, "u1")
	if err != nil {
		t.Fatalf("LoadFlights failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 flight, got %d", len(got))
	}
	if len(got[0].Track) != 120 {
		t.Errorf("Expected 120 track samples rehydrated, got %d", len(got[0].Track))
	}

	// Another user sees nothing
	other, err := s.LoadFlights(ctx, "u2")
	if err != nil {
		t.Fatalf("LoadFlights(u2) failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Expected no flights for u2, got %d", len(other))
	}
}

func TestPruneTracks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sample := []model.PositionSample{{Timestamp: time.Now(), Lat: 1, Lon: 2, Altitude: 3}}
	for _, id := range []string{"keep", "drop"} {
		if err := s.SaveTrack(ctx, id, "u1", sample); err != nil {
			t.Fatalf("SaveTrack(%s) failed: %v", id, err)
		}
	}

	if err := s.PruneTracks(ctx, []string{"keep"}); err != nil {
		t.Fatalf("PruneTracks failed: %v", err)
	}

	if _, ok := s.GetTrack(ctx, "keep"); !ok {
		t.Error("Expected 'keep' track to survive pruning")
	}
	if _, ok := s.GetTrack(ctx, "drop"); ok {
		t.Error("Expected 'drop' track to be pruned")
	}
}
