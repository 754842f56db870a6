package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitton/internal/models"
)

// DefaultSyncInterval is how often RunSync flushes the pending queue.
const DefaultSyncInterval = 30 * time.Second

// PendingOp is a durable-store write that has not succeeded yet.
type PendingOp struct {
	ID       string
	EventID  string
	Kind     string
	Attempts int
	QueuedAt int64

	// Payload is the event to save; nil for deletions.
	Payload *models.Event
	// Base is the version Payload was derived from, used to merge with
	// edits that reached the durable store in the meantime.
	Base *models.Event
}

// SyncStatus reports the health of the durable-store write path.
type SyncStatus struct {
	Pending   int    `json:"pending"`
	Dropped   int    `json:"dropped"`
	LastSync  int64  `json:"last_sync"`
	LastError string `json:"last_error,omitempty"`
}

type queue struct {
	mu        sync.Mutex
	ops       []PendingOp
	dropped   int
	lastSync  int64
	lastError string
}

func (l *Ledger) enqueue(kind, eventID string, base, payload *models.Event) {
	q := l.queue
	q.mu.Lock()
	defer q.mu.Unlock()

	// A newer snapshot of the same event supersedes the queued one.
	if payload != nil {
		for i := range q.ops {
			if q.ops[i].EventID == eventID && q.ops[i].Payload != nil {
				q.ops[i].Payload = payload.Clone()
				q.ops[i].Kind = kind
				return
			}
		}
	}
	q.ops = append(q.ops, PendingOp{
		ID:       uuid.New().String(),
		EventID:  eventID,
		Kind:     kind,
		QueuedAt: l.now().UnixMilli(),
		Payload:  payload.Clone(),
		Base:     base.Clone(),
	})
	l.metrics.SetPendingOps(len(q.ops))
}

// Pending returns a snapshot of the queue.
func (l *Ledger) Pending() []PendingOp {
	l.queue.mu.Lock()
	defer l.queue.mu.Unlock()
	return slices.Clone(l.queue.ops)
}

// SyncStatus reports pending and dropped writes and the last flush time.
func (l *Ledger) SyncStatus() SyncStatus {
	q := l.queue
	q.mu.Lock()
	defer q.mu.Unlock()
	return SyncStatus{
		Pending:   len(q.ops),
		Dropped:   q.dropped,
		LastSync:  q.lastSync,
		LastError: q.lastError,
	}
}

// Flush retries every pending op once. Ops that reach the attempt limit are
// dropped and logged. It returns the number of ops that succeeded.
func (l *Ledger) Flush(ctx context.Context) (int, error) {
	if l.remote == nil {
		return 0, nil
	}
	q := l.queue
	q.mu.Lock()
	ops := q.ops
	q.ops = nil
	q.mu.Unlock()

	var retry []PendingOp
	var lastErr error
	flushed := 0
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			retry = append(retry, ops[i:]...)
			lastErr = err
			break
		}
		err := l.replay(ctx, op)
		if err == nil {
			flushed++
			continue
		}
		lastErr = err
		op.Attempts++
		if op.Attempts >= l.maxAttempts {
			slog.Error("Dropping pending op after repeated failures",
				"op_id", op.ID, "event_id", op.EventID, "kind", op.Kind, "attempts", op.Attempts, "error", err)
			q.mu.Lock()
			q.dropped++
			q.mu.Unlock()
			continue
		}
		retry = append(retry, op)
	}

	q.mu.Lock()
	// Ops queued while flushing go after the ones being retried.
	q.ops = append(retry, q.ops...)
	q.lastSync = l.now().UnixMilli()
	q.lastError = ""
	if lastErr != nil {
		q.lastError = lastErr.Error()
	}
	pending := len(q.ops)
	q.mu.Unlock()
	l.metrics.SetPendingOps(pending)

	if flushed > 0 {
		slog.Info("Flushed pending ops", "flushed", flushed, "pending", pending)
	}
	return flushed, lastErr
}

func (l *Ledger) replay(ctx context.Context, op PendingOp) error {
	unlock := l.lock(op.EventID)
	defer unlock()

	if op.Payload == nil {
		if err := l.remote.DeleteEvent(ctx, op.EventID); err != nil {
			return err
		}
		// Drop any copy that was read back while the delete was pending.
		if err := l.local.DeleteEvent(ctx, op.EventID); err != nil {
			slog.Warn("Failed to clear local copy after delete", "event_id", op.EventID, "error", err)
		}
		return nil
	}

	if l.isDeleted(op.EventID) {
		slog.Debug("Skipping save for deleted event", "event_id", op.EventID, "op_id", op.ID)
		return nil
	}
	ev := op.Payload
	current, err := l.remote.GetEvent(ctx, op.EventID)
	if err != nil {
		return fmt.Errorf("failed to read event %s: %w", op.EventID, err)
	}
	if current != nil && op.Base != nil && current.LastModified > op.Base.LastModified {
		merged, conflicts := Merge(op.Base, ev, current)
		for _, c := range conflicts {
			slog.Warn("Resolved concurrent edit during sync", "event_id", op.EventID, "kind", c.Kind, "id", c.ID, "winner", c.Winner)
		}
		if err := l.check(merged); err != nil {
			return err
		}
		ev = merged
	}
	if err := l.remote.SaveEvent(ctx, ev); err != nil {
		return err
	}
	if ev != op.Payload {
		if err := l.local.SaveEvent(ctx, ev); err != nil {
			slog.Warn("Failed to refresh local copy after merge", "event_id", op.EventID, "error", err)
		}
	}
	return nil
}

// RunSync flushes the queue every interval until ctx is done.
func (l *Ledger) RunSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.Flush(ctx); err != nil {
				slog.Debug("Sync pass incomplete", "error", err)
			}
		}
	}
}
