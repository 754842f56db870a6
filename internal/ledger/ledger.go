// Package ledger owns every mutation of events. Each change is applied to a
// fresh copy, validated, checked against the zero-sum identity and then
// committed in two phases: synchronously to the local store, then to the
// durable store, queueing a retry when the durable write fails.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitton/internal/apperrors"
	"github.com/mmynk/splitton/internal/calculator"
	"github.com/mmynk/splitton/internal/metrics"
	"github.com/mmynk/splitton/internal/models"
	"github.com/mmynk/splitton/internal/storage"
	"github.com/mmynk/splitton/internal/ton"
)

// Mutation kinds, used for pending ops, logs and metrics.
const (
	KindCreateEvent      = "create_event"
	KindJoin             = "join_event"
	KindLeave            = "leave_event"
	KindSetWallet        = "set_wallet"
	KindAddExpense       = "add_expense"
	KindEditExpense      = "edit_expense"
	KindDeleteExpense    = "delete_expense"
	KindRecordSettlement = "record_settlement"
	KindArchive          = "archive_event"
	KindDeleteEvent      = "delete_event"
)

// Ledger is the single writer for events.
type Ledger struct {
	local  storage.Store
	remote storage.Store
	reader storage.Store

	now         func() time.Time
	maxAttempts int
	metrics     *metrics.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	// deleted holds tombstones so a copy still in the durable store is
	// never read back or re-saved.
	deleted map[string]struct{}

	queue *queue
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithMaxAttempts bounds durable-store retries per pending op.
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) { l.maxAttempts = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// New creates a ledger writing to local first and remote second. remote may
// be nil, in which case local is the only store.
func New(local, remote storage.Store, opts ...Option) *Ledger {
	l := &Ledger{
		local:       local,
		remote:      remote,
		reader:      local,
		now:         time.Now,
		maxAttempts: 3,
		locks:       make(map[string]*sync.Mutex),
		deleted:     make(map[string]struct{}),
		queue:       &queue{},
	}
	if remote != nil {
		l.reader = storage.NewFallback(local, remote, storage.SkipWarm(l.isDeleted))
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) lock(eventID string) func() {
	l.mu.Lock()
	m, ok := l.locks[eventID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[eventID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (l *Ledger) markDeleted(eventID string) {
	l.mu.Lock()
	l.deleted[eventID] = struct{}{}
	l.mu.Unlock()
}

func (l *Ledger) isDeleted(eventID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.deleted[eventID]
	return ok
}

func (l *Ledger) stamp(prev int64) int64 {
	return max(l.now().UnixMilli(), prev+1)
}

// GetEvent loads an event or returns ErrNotFound.
func (l *Ledger) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	if l.isDeleted(eventID) {
		return nil, fmt.Errorf("%w: event %s", apperrors.ErrNotFound, eventID)
	}
	ev, err := l.reader.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", eventID, err)
	}
	if ev == nil {
		return nil, fmt.Errorf("%w: event %s", apperrors.ErrNotFound, eventID)
	}
	return ev, nil
}

// Balances computes the current balances of an event.
func (l *Ledger) Balances(ctx context.Context, eventID string) (*models.Event, calculator.Balances, error) {
	ev, err := l.GetEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	b, err := calculator.EventBalances(ev)
	if err != nil {
		slog.Error("Stored event violates ledger invariants", "event_id", eventID, "error", err)
		return nil, nil, err
	}
	return ev, b, nil
}

// apply runs mutate against a copy of the event and commits the result.
func (l *Ledger) apply(ctx context.Context, eventID, kind string, mutate func(ev *models.Event) error) (*models.Event, error) {
	unlock := l.lock(eventID)
	defer unlock()

	base, err := l.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	next := base.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.LastModified = l.stamp(base.LastModified)

	return l.commit(ctx, kind, base, next)
}

func (l *Ledger) check(ev *models.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	b, err := calculator.EventBalances(ev)
	if err == nil {
		err = calculator.CheckZeroSum(b)
	}
	if err != nil {
		slog.Error("Ledger invariant violated", "event_id", ev.ID, "error", err)
		return err
	}
	return nil
}

// commit validates next, reconciles it with concurrent remote edits and
// writes it to both stores.
func (l *Ledger) commit(ctx context.Context, kind string, base, next *models.Event) (*models.Event, error) {
	if err := l.check(next); err != nil {
		return nil, err
	}

	if l.remote != nil && base != nil {
		current, err := l.remote.GetEvent(ctx, next.ID)
		if err == nil && current != nil && current.LastModified > base.LastModified {
			merged, conflicts := Merge(base, next, current)
			for _, c := range conflicts {
				slog.Warn("Resolved concurrent edit", "event_id", next.ID, "kind", c.Kind, "id", c.ID, "winner", c.Winner)
			}
			if err := l.check(merged); err != nil {
				return nil, err
			}
			next = merged
		}
	}

	if err := l.local.SaveEvent(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save event locally: %w", err)
	}
	l.metrics.LedgerMutation(kind)

	if l.remote != nil {
		if err := l.remote.SaveEvent(ctx, next); err != nil {
			slog.Warn("Durable save failed, queueing retry", "event_id", next.ID, "kind", kind, "error", err)
			l.enqueue(kind, next.ID, base, next)
		}
	}
	slog.Debug("Event mutated", "event_id", next.ID, "kind", kind)
	return next, nil
}

// CreateEventInput describes a new event.
type CreateEventInput struct {
	Name        string
	Description string
	Currency    string
	Creator     models.Participant
}

// CreateEvent creates an event with the creator as its first participant.
func (l *Ledger) CreateEvent(ctx context.Context, in CreateEventInput) (*models.Event, error) {
	now := l.now().UnixMilli()
	creator := in.Creator
	creator.JoinedAt = now
	creator.IsActive = true
	if creator.WalletAddress != "" && !ton.IsValidAddress(creator.WalletAddress) {
		creator.WalletAddress = ""
	}

	ev := &models.Event{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		Currency:     strings.ToUpper(in.Currency),
		CreatedBy:    creator.ID,
		Participants: []models.Participant{creator},
		Expenses:     []models.Expense{},
		CreatedAt:    now,
		LastModified: now,
		IsActive:     true,
	}

	unlock := l.lock(ev.ID)
	defer unlock()
	return l.commit(ctx, KindCreateEvent, nil, ev)
}

// JoinEvent adds p to the roster, or reactivates them if they left.
func (l *Ledger) JoinEvent(ctx context.Context, eventID string, p models.Participant) (*models.Event, error) {
	return l.apply(ctx, eventID, KindJoin, func(ev *models.Event) error {
		if p.WalletAddress != "" && !ton.IsValidAddress(p.WalletAddress) {
			p.WalletAddress = ""
		}
		if existing := ev.Participant(p.ID); existing != nil {
			existing.IsActive = true
			if p.DisplayName != "" {
				existing.DisplayName = p.DisplayName
			}
			if existing.WalletAddress == "" {
				existing.WalletAddress = p.WalletAddress
			}
			return nil
		}
		p.JoinedAt = l.now().UnixMilli()
		p.IsActive = true
		ev.Participants = append(ev.Participants, p)
		ev.IsActive = true
		return nil
	})
}

// LeaveEvent deactivates a participant. Their balance stays in the event.
func (l *Ledger) LeaveEvent(ctx context.Context, eventID, participantID string) (*models.Event, error) {
	return l.apply(ctx, eventID, KindLeave, func(ev *models.Event) error {
		p := ev.Participant(participantID)
		if p == nil {
			return fmt.Errorf("%w: participant %s", apperrors.ErrNotFound, participantID)
		}
		p.IsActive = false
		return nil
	})
}

// SetWalletAddress registers or clears a participant's payment address.
func (l *Ledger) SetWalletAddress(ctx context.Context, eventID, participantID, address string) (*models.Event, error) {
	address = strings.TrimSpace(address)
	if address != "" && !ton.IsValidAddress(address) {
		return nil, fmt.Errorf("%w: invalid wallet address %q", apperrors.ErrValidation, address)
	}
	return l.apply(ctx, eventID, KindSetWallet, func(ev *models.Event) error {
		p := ev.Participant(participantID)
		if p == nil {
			return fmt.Errorf("%w: participant %s", apperrors.ErrNotFound, participantID)
		}
		p.WalletAddress = address
		return nil
	})
}

// AddExpense records a new expense. ID, currency and timestamps are filled
// in when empty.
func (l *Ledger) AddExpense(ctx context.Context, eventID string, e models.Expense) (*models.Expense, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	ev, err := l.apply(ctx, eventID, KindAddExpense, func(ev *models.Event) error {
		if ev.Expense(e.ID) != nil {
			return fmt.Errorf("%w: expense %s already exists", apperrors.ErrValidation, e.ID)
		}
		if e.Currency == "" {
			e.Currency = ev.Currency
		}
		now := l.now().UnixMilli()
		e.CreatedAt = now
		e.LastModified = now
		e.Deleted = false
		if err := ev.ValidateExpense(&e); err != nil {
			return err
		}
		ev.Expenses = append(ev.Expenses, e.Clone())
		ev.IsActive = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ev.Expense(e.ID), nil
}

// EditExpense replaces an expense's content. ID and CreatedAt are kept.
func (l *Ledger) EditExpense(ctx context.Context, eventID string, e models.Expense) (*models.Expense, error) {
	ev, err := l.apply(ctx, eventID, KindEditExpense, func(ev *models.Event) error {
		existing := ev.Expense(e.ID)
		if existing == nil || existing.Deleted {
			return fmt.Errorf("%w: expense %s", apperrors.ErrNotFound, e.ID)
		}
		if e.Currency == "" {
			e.Currency = ev.Currency
		}
		e.CreatedAt = existing.CreatedAt
		e.LastModified = l.stamp(existing.LastModified)
		e.Deleted = false
		if err := ev.ValidateExpense(&e); err != nil {
			return err
		}
		*existing = e.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ev.Expense(e.ID), nil
}

// DeleteExpense logically removes an expense.
func (l *Ledger) DeleteExpense(ctx context.Context, eventID, expenseID string) error {
	_, err := l.apply(ctx, eventID, KindDeleteExpense, func(ev *models.Event) error {
		existing := ev.Expense(expenseID)
		if existing == nil || existing.Deleted {
			return fmt.Errorf("%w: expense %s", apperrors.ErrNotFound, expenseID)
		}
		existing.Deleted = true
		existing.LastModified = l.stamp(existing.LastModified)
		return nil
	})
	return err
}

// RecordSettlement books a completed transfer as an expense paid by the
// debtor and shared by the creditor, which moves both balances toward zero.
// Participants who left may still settle.
func (l *Ledger) RecordSettlement(ctx context.Context, eventID, from, to string, amount decimal.Decimal, memo string) (*models.Expense, error) {
	e := models.Expense{
		ID:          uuid.New().String(),
		Description: memo,
		Amount:      amount,
		PaidBy:      from,
		SharedBy:    []string{to},
		Category:    models.CategorySettlement,
	}
	ev, err := l.apply(ctx, eventID, KindRecordSettlement, func(ev *models.Event) error {
		if ev.Participant(from) == nil || ev.Participant(to) == nil {
			return fmt.Errorf("%w: settlement parties must belong to the event", apperrors.ErrValidation)
		}
		if e.Description == "" {
			e.Description = fmt.Sprintf("Settlement: %s pays %s", ev.Participant(from).Name(), ev.Participant(to).Name())
		}
		e.Currency = ev.Currency
		now := l.now().UnixMilli()
		e.CreatedAt = now
		e.LastModified = now
		if err := e.Validate(); err != nil {
			return err
		}
		ev.Expenses = append(ev.Expenses, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ev.Expense(e.ID), nil
}

// DeleteEvent removes an event. Only its creator may delete it, and only
// once every balance is settled.
func (l *Ledger) DeleteEvent(ctx context.Context, eventID, callerID string) error {
	unlock := l.lock(eventID)
	defer unlock()

	ev, err := l.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if ev.CreatedBy != callerID {
		return fmt.Errorf("%w: only the event creator can delete it", apperrors.ErrPermission)
	}
	b, err := calculator.EventBalances(ev)
	if err != nil {
		return err
	}
	if !b.Settled() {
		return apperrors.Refuse("event still has outstanding balances; settle up before deleting")
	}
	return l.remove(ctx, ev)
}

func (l *Ledger) remove(ctx context.Context, ev *models.Event) error {
	if err := l.local.DeleteEvent(ctx, ev.ID); err != nil {
		return fmt.Errorf("failed to delete event locally: %w", err)
	}
	l.markDeleted(ev.ID)
	l.metrics.LedgerMutation(KindDeleteEvent)
	if l.remote != nil {
		if err := l.remote.DeleteEvent(ctx, ev.ID); err != nil {
			slog.Warn("Durable delete failed, queueing retry", "event_id", ev.ID, "error", err)
			l.enqueue(KindDeleteEvent, ev.ID, ev, nil)
		}
	}
	slog.Info("Event deleted", "event_id", ev.ID)
	return nil
}

// ArchiveReport lists what ArchiveInactive did.
type ArchiveReport struct {
	Deleted     []string
	Deactivated []string
}

// ArchiveInactive deletes settled events idle for longer than maxIdle and
// marks unsettled ones inactive.
func (l *Ledger) ArchiveInactive(ctx context.Context, maxIdle time.Duration) (ArchiveReport, error) {
	var report ArchiveReport
	ids, err := l.reader.ListEventIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list events: %w", err)
	}
	cutoff := l.now().Add(-maxIdle).UnixMilli()

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		ev, b, err := l.Balances(ctx, id)
		if err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		if max(ev.LastModified, ev.LatestActivity()) >= cutoff {
			continue
		}
		if b.Settled() {
			unlock := l.lock(id)
			err := l.remove(ctx, ev)
			unlock()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			report.Deleted = append(report.Deleted, id)
			continue
		}
		if !ev.IsActive {
			continue
		}
		if _, err := l.apply(ctx, id, KindArchive, func(ev *models.Event) error {
			ev.IsActive = false
			return nil
		}); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Deactivated = append(report.Deactivated, id)
	}
	if len(report.Deleted)+len(report.Deactivated) > 0 {
		slog.Info("Archived inactive events", "deleted", len(report.Deleted), "deactivated", len(report.Deactivated))
	}
	return report, errors.Join(errs...)
}
