package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"soartrack/pkg/model"
)

// Replayer feeds a pre-recorded track through the session manager at a
// fixed wall-clock interval. Detection timing runs on the samples' own
// timestamps, so a replayed flight produces the same events as the live
// feed did.
type Replayer struct {
	mu      sync.Mutex
	mgr     *Manager
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewReplayer creates a replayer bound to the manager.
func NewReplayer(mgr *Manager) *Replayer {
	return &Replayer{mgr: mgr}
}

// Start begins feeding the track. Only one replay may run at a time.
func (r *Replayer) Start(track []model.PositionSample, interval time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("replay already running")
	}
	if len(track) == 0 {
		return fmt.Errorf("replay track is empty")
	}
	if interval <= 0 {
		interval = time.Duration(r.mgr.cfg.ReplayInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	slog.Info("Replay: starting", "samples", len(track), "interval", interval)
	go r.feed(ctx, track, interval)
	return nil
}

// Stop halts the feed and cancels any flight the replay opened, so
// leftover state cannot cause a spurious detection on the next real
// session. No-op when no replay is running.
func (r *Replayer) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.cancel()
	done := r.done
	r.mu.Unlock()

	<-done

	r.mgr.CancelCurrentFlight()
	r.mgr.mu.Lock()
	r.mgr.detector.Reset()
	r.mgr.mu.Unlock()
	slog.Info("Replay: stopped")
}

// Running reports whether a replay feed is active.
func (r *Replayer) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Replayer) feed(ctx context.Context, track []model.PositionSample, interval time.Duration) {
	defer func() {
		r.mu.Lock()
		r.running = false
		close(r.done)
		r.mu.Unlock()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for _, s := range track {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mgr.ProcessPosition(s)
		}
	}
	// The feed just ends here; the manager's inactivity timer closes any
	// flight still open.
	slog.Info("Replay: track exhausted")
}
