// Package queue holds the durable pending-operation queue that makes
// remote writes survive being offline. Operations are persisted locally on
// enqueue and removed only after the remote store confirms them.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"soartrack/pkg/config"
	"soartrack/pkg/model"
	"soartrack/pkg/remote"
	"soartrack/pkg/store"
)

// Remote executes confirmed writes against the document store.
type Remote interface {
	Create(ctx context.Context, collection, docID string, doc []byte) error
	Merge(ctx context.Context, collection, docID string, doc []byte) error
}

// Connectivity reports whether the remote store is reachable.
type Connectivity interface {
	Online() bool
}

// Queue is the offline-first operation queue. Enqueue always succeeds
// locally; a periodic timer and the connectivity-restored callback both
// drive Sync, which drains the queue in enqueue order.
type Queue struct {
	mu  sync.Mutex
	ops []model.PendingOperation

	store  store.QueueStore
	remote Remote
	conn   Connectivity

	maxRetries int
	interval   time.Duration

	onResult func(op model.PendingOperation, err error)

	syncing atomic.Bool
}

// New creates the queue. Call Restore before first use to reload
// operations that survived a restart.
func New(st store.QueueStore, rem Remote, conn Connectivity, cfg config.SyncConfig) *Queue {
	return &Queue{
		store:      st,
		remote:     rem,
		conn:       conn,
		maxRetries: cfg.MaxRetries,
		interval:   time.Duration(cfg.Interval),
	}
}

// OnResult registers a callback invoked once per executed operation during
// Sync, with the outcome. Set before the first sync; not synchronized.
func (q *Queue) OnResult(fn func(op model.PendingOperation, err error)) {
	q.onResult = fn
}

// Restore reloads the persisted queue.
func (q *Queue) Restore(ctx context.Context) error {
	ops, err := q.store.LoadOps(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore pending operations: %w", err)
	}

	q.mu.Lock()
	q.ops = ops
	q.mu.Unlock()

	if len(ops) > 0 {
		slog.Info("Queue: restored pending operations", "count", len(ops))
	}
	return nil
}

// Enqueue appends an operation and persists the queue. Missing identity
// fields are filled in. The write to the remote store happens later; an
// immediate asynchronous sync is attempted when online.
func (q *Queue) Enqueue(ctx context.Context, op model.PendingOperation) model.PendingOperation {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	q.ops = append(q.ops, op)
	q.persistLocked(ctx)
	q.mu.Unlock()

	slog.Debug("Queue: operation enqueued",
		"op", op.ID, "kind", op.Kind, "collection", op.Collection, "doc", op.DocID)

	if q.conn == nil || q.conn.Online() {
		go q.Sync(context.Background())
	}
	return op
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Ops returns a snapshot of the queue in enqueue order.
func (q *Queue) Ops() []model.PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.PendingOperation(nil), q.ops...)
}

// Sync drains the queue against the remote store. Reentrancy-guarded:
// overlapping calls from the timer, the restore callback and Enqueue
// collapse into one pass. Operations over the retry cap stay queued until
// Resync grants them a fresh budget; nothing is ever dropped.
func (q *Queue) Sync(ctx context.Context) {
	if !q.syncing.CompareAndSwap(false, true) {
		return
	}
	defer q.syncing.Store(false)

	q.mu.Lock()
	batch := append([]model.PendingOperation(nil), q.ops...)
	q.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	var confirmed []model.PendingOperation
	changed := false
	for i := range batch {
		op := batch[i]
		if q.maxRetries > 0 && op.Retries >= q.maxRetries {
			continue
		}

		err := q.execute(ctx, &op)
		if q.onResult != nil {
			q.onResult(op, err)
		}
		if err == nil {
			confirmed = append(confirmed, op)
			changed = true
			continue
		}

		q.bumpRetry(&op)
		changed = true

		if q.looksOffline(err) {
			// The network is down; hammering it with the rest of the
			// batch gains nothing.
			slog.Warn("Queue: sync pass abandoned, remote unreachable",
				"pending", len(batch)-i, "error", err)
			break
		}
		slog.Warn("Queue: operation failed, will retry",
			"op", op.ID, "retries", op.Retries+1, "error", err)
	}

	q.mu.Lock()
	if len(confirmed) > 0 {
		q.removeLocked(confirmed)
	}
	if changed {
		q.persistLocked(ctx)
	}
	remaining := len(q.ops)
	q.mu.Unlock()

	if len(confirmed) > 0 {
		slog.Info("Queue: sync pass complete", "confirmed", len(confirmed), "remaining", remaining)
	}
}

// Resync grants exhausted operations a fresh retry budget, then runs a
// sync pass. Called on the offline-to-online edge: an operation that burned
// its retries against a dead network deserves another shot once the remote
// store is genuinely reachable again.
func (q *Queue) Resync(ctx context.Context) {
	q.mu.Lock()
	reset := 0
	for i := range q.ops {
		if q.maxRetries > 0 && q.ops[i].Retries >= q.maxRetries {
			q.ops[i].Retries = 0
			reset++
		}
	}
	if reset > 0 {
		q.persistLocked(ctx)
	}
	q.mu.Unlock()

	if reset > 0 {
		slog.Info("Queue: retry budget reset for exhausted operations", "count", reset)
	}
	q.Sync(ctx)
}

// Run drives periodic syncs until the context ends.
func (q *Queue) Run(ctx context.Context) {
	interval := q.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Sync(ctx)
		}
	}
}

func (q *Queue) execute(ctx context.Context, op *model.PendingOperation) error {
	switch op.Kind {
	case model.OpCreate:
		return q.remote.Create(ctx, op.Collection, op.DocID, op.Payload)
	case model.OpMerge:
		return q.remote.Merge(ctx, op.Collection, op.DocID, op.Payload)
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// bumpRetry increments the retry counter of the live queue entry.
func (q *Queue) bumpRetry(op *model.PendingOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.ops {
		if q.ops[i].Matches(op) {
			q.ops[i].Retries++
			return
		}
	}
}

// removeLocked drops confirmed operations by exact identity+timestamp
// match. A blind DocID match would let a pending create be clobbered by an
// unrelated later merge-update for the same document.
func (q *Queue) removeLocked(confirmed []model.PendingOperation) {
	kept := q.ops[:0]
	for i := range q.ops {
		match := false
		for j := range confirmed {
			if q.ops[i].Matches(&confirmed[j]) {
				match = true
				break
			}
		}
		if !match {
			kept = append(kept, q.ops[i])
		}
	}
	q.ops = kept
}

func (q *Queue) persistLocked(ctx context.Context) {
	if err := q.store.SaveOps(ctx, q.ops); err != nil {
		slog.Error("Queue: failed to persist pending operations", "error", err)
	}
}

func (q *Queue) looksOffline(err error) bool {
	if errors.Is(err, remote.ErrUnreachable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return q.conn != nil && !q.conn.Online()
}
