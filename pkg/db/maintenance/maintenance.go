package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"soartrack/pkg/db"
	"soartrack/pkg/model"
	"soartrack/pkg/store"
)

// Run executes all maintenance tasks: track pruning and compaction.
// It blocks until completion.
func Run(ctx context.Context, s store.Store, d *db.DB) error {
	slog.Info("Starting database maintenance...")

	if err := pruneOrphanTracks(ctx, s, d); err != nil {
		slog.Error("Track pruning failed", "error", err)
		// Startup continues; orphans only cost disk space.
	} else {
		slog.Info("Track pruning completed")
	}

	if err := compact(d); err != nil {
		slog.Error("Compaction failed", "error", err)
	} else {
		slog.Info("Compaction completed")
	}

	return nil
}

// pruneOrphanTracks removes cached track blobs whose flight no longer
// appears in any user's flight log. Flight logs live in the kv table under
// "flights:<userID>", so the set of users is discovered from the keys.
func pruneOrphanTracks(ctx context.Context, s store.Store, d *db.DB) error {
	rows, err := d.QueryContext(ctx, "SELECT value FROM kv WHERE key LIKE 'flights:%'")
	if err != nil {
		return fmt.Errorf("failed to list flight logs: %w", err)
	}
	defer rows.Close()

	var keep []string
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return fmt.Errorf("failed to scan flight log: %w", err)
		}
		var flights []model.TrackedFlight
		if err := json.Unmarshal(blob, &flights); err != nil {
			// A corrupt log is a bug elsewhere; skip rather than wipe tracks
			slog.Warn("Maintenance: skipping undecodable flight log", "error", err)
			continue
		}
		for _, f := range flights {
			keep = append(keep, f.ID)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(keep) == 0 {
		// No flight logs at all; leave the cache alone in case the logs
		// simply have not been written yet this run.
		return nil
	}

	return s.PruneTracks(ctx, keep)
}

// compact truncates the WAL so the db file stays small on long-lived
// installs that mostly append.
func compact(d *db.DB) error {
	if _, err := d.Exec("PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
		return fmt.Errorf("wal checkpoint failed: %w", err)
	}
	_, err := d.Exec("PRAGMA optimize;")
	return err
}
