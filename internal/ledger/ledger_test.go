package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitton/internal/apperrors"
	"github.com/mmynk/splitton/internal/models"
	"github.com/mmynk/splitton/internal/storage/memory"
)

const aliceWallet = "0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *testClock {
	return &testClock{t: time.UnixMilli(1_700_000_000_000)}
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// flakyStore is a memory store whose writes can be switched off.
type flakyStore struct {
	*memory.Store
	down atomic.Bool
}

var errOffline = errors.New("remote offline")

func (f *flakyStore) SaveEvent(ctx context.Context, ev *models.Event) error {
	if f.down.Load() {
		return errOffline
	}
	return f.Store.SaveEvent(ctx, ev)
}

func (f *flakyStore) DeleteEvent(ctx context.Context, id string) error {
	if f.down.Load() {
		return errOffline
	}
	return f.Store.DeleteEvent(ctx, id)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	ledger *Ledger
	local  *memory.Store
	remote *flakyStore
	clock  *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{local: memory.New(), remote: &flakyStore{Store: memory.New()}, clock: newClock()}
	f.ledger = New(f.local, f.remote, WithClock(f.clock.now))
	return f
}

func (f *fixture) tripWithFriends(t *testing.T) *models.Event {
	t.Helper()
	ctx := context.Background()
	ev, err := f.ledger.CreateEvent(ctx, CreateEventInput{
		Name:     "Lisbon",
		Currency: "usd",
		Creator:  models.Participant{ID: "alice", DisplayName: "Alice", WalletAddress: aliceWallet},
	})
	require.NoError(t, err)
	for _, id := range []string{"bob", "carol"} {
		ev, err = f.ledger.JoinEvent(ctx, ev.ID, models.Participant{ID: id, DisplayName: id})
		require.NoError(t, err)
	}
	return ev
}

func TestCreateEvent(t *testing.T) {
	f := newFixture(t)
	ev := f.tripWithFriends(t)

	assert.Equal(t, "USD", ev.Currency)
	assert.Equal(t, "alice", ev.CreatedBy)
	assert.Equal(t, []string{"alice", "bob", "carol"}, ev.ParticipantIDs())
	assert.True(t, ev.IsActive)

	remote, err := f.remote.GetEvent(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Len(t, remote.Participants, 3)

	_, err = f.ledger.CreateEvent(context.Background(), CreateEventInput{Name: "", Currency: "USD",
		Creator: models.Participant{ID: "alice", DisplayName: "Alice"}})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestExpenseLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.tripWithFriends(t)

	e, err := f.ledger.AddExpense(ctx, ev.ID, models.Expense{
		Description: "Dinner", Amount: d("42.50"), PaidBy: "alice", SharedBy: []string{"alice", "bob", "carol"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "USD", e.Currency)

	_, b, err := f.ledger.Balances(ctx, ev.ID)
	require.NoError(t, err)
	rounded := b.Rounded()
	assert.Equal(t, "28.33", rounded[0].Net.StringFixed(2))
	assert.Equal(t, "-14.17", rounded[1].Net.StringFixed(2))

	f.clock.advance(time.Minute)
	edit := *e
	edit.Amount = d("30")
	edit.SharedBy = []string{"alice", "bob"}
	edit.CreatedAt = 0
	edited, err := f.ledger.EditExpense(ctx, ev.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, e.CreatedAt, edited.CreatedAt, "CreatedAt is immutable")
	assert.Greater(t, edited.LastModified, e.LastModified)

	_, b, err = f.ledger.Balances(ctx, ev.ID)
	require.NoError(t, err)
	net, _ := b.Get("bob")
	assert.True(t, net.Equal(d("-15")))

	require.NoError(t, f.ledger.DeleteExpense(ctx, ev.ID, e.ID))
	_, b, err = f.ledger.Balances(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, b.Settled())

	assert.ErrorIs(t, f.ledger.DeleteExpense(ctx, ev.ID, e.ID), apperrors.ErrNotFound)
	_, err = f.ledger.EditExpense(ctx, ev.ID, edit)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAddExpenseValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.tripWithFriends(t)
	_, err := f.ledger.LeaveEvent(ctx, ev.ID, "carol")
	require.NoError(t, err)

	tests := []struct {
		name string
		e    models.Expense
		want error
	}{
		{"zero amount", models.Expense{Description: "x", Amount: d("0"), PaidBy: "alice", SharedBy: []string{"bob"}}, apperrors.ErrValidation},
		{"no beneficiaries", models.Expense{Description: "x", Amount: d("1"), PaidBy: "alice"}, apperrors.ErrValidation},
		{"duplicate beneficiary", models.Expense{Description: "x", Amount: d("1"), PaidBy: "alice", SharedBy: []string{"bob", "bob"}}, apperrors.ErrValidation},
		{"inactive beneficiary", models.Expense{Description: "x", Amount: d("1"), PaidBy: "alice", SharedBy: []string{"carol"}}, apperrors.ErrValidation},
		{"unknown payer", models.Expense{Description: "x", Amount: d("1"), PaidBy: "zed", SharedBy: []string{"bob"}}, apperrors.ErrValidation},
		{"currency mismatch", models.Expense{Description: "x", Amount: d("1"), Currency: "EUR", PaidBy: "alice", SharedBy: []string{"bob"}}, apperrors.ErrValidation},
		{"empty description", models.Expense{Amount: d("1"), PaidBy: "alice", SharedBy: []string{"bob"}}, apperrors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.AddExpense(ctx, ev.ID, tt.e)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = f.ledger.AddExpense(ctx, "no-such-event", models.Expense{Description: "x", Amount: d("1"), PaidBy: "alice", SharedBy: []string{"bob"}})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	stored, err := f.ledger.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Expenses, "rejected mutations leave the event untouched")
}

func TestLeaveKeepsHistoricalBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.tripWithFriends(t)

	_, err := f.ledger.AddExpense(ctx, ev.ID, models.Expense{Description: "Taxi", Amount: d("30"), PaidBy: "alice", SharedBy: []string{"bob", "carol"}})
	require.NoError(t, err)
	_, err = f.ledger.LeaveEvent(ctx, ev.ID, "carol")
	require.NoError(t, err)

	_, b, err := f.ledger.Balances(ctx, ev.ID)
	require.NoError(t, err)
	net, ok := b.Get("carol")
	require.True(t, ok)
	assert.True(t, net.Equal(d("-15")))

	_, err = f.ledger.LeaveEvent(ctx, ev.ID, "nobody")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	rejoined, err := f.ledger.JoinEvent(ctx, ev.ID, models.Participant{ID: "carol", DisplayName: "Carol"})
	require.NoError(t, err)
	assert.True(t, rejoined.Participant("carol").IsActive)
	assert.Len(t, rejoined.Participants, 3)
}

func TestSetWalletAddress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.tripWithFriends(t)

	_, err := f.ledger.SetWalletAddress(ctx, ev.ID, "bob", "not-a-wallet")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	updated, err := f.ledger.SetWalletAddress(ctx, ev.ID, "bob", aliceWallet)
	require.NoError(t, err)
	assert.Equal(t, aliceWallet, updated.Participant("bob").WalletAddress)

	updated, err = f.ledger.SetWalletAddress(ctx, ev.ID, "bob", "")
	require.NoError(t, err)
	assert.Empty(t, updated.Participant("bob").WalletAddress)
}

func TestDeleteEventRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.tripWithFriends(t)

	_, err := f.ledger.AddExpense(ctx, ev.ID, models.Expense{Description: "Dinner", Amount: d("20"), PaidBy: "alice", SharedBy: []string{"bob"}})
	require.NoError(t, err)

	err = f.ledger.DeleteEvent(ctx, ev.ID, "bob")
	assert.ErrorIs(t, err, apperrors.ErrPermission)

	err = f.ledger.DeleteEvent(ctx, ev.ID, "alice")
	require.ErrorIs(t, err, apperrors.ErrPrecondition)
	assert.Contains(t, apperrors.Reason(err), "outstanding balances")

	rec, err := f.ledger.RecordSettlement(ctx, ev.ID, "bob", "alice", d("20"), "")
	require.NoError(t, err)
	assert.Equal(t, models.CategorySettlement, rec.Category)
	assert.Equal(t, "Settlement: bob pays Alice", rec.Description)

	require.NoError(t, f.ledger.DeleteEvent(ctx, ev.ID, "alice"))
	_, err = f.ledger.GetEvent(ctx, ev.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRemoteFailureQueuesAndFlushes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.tripWithFriends(t)

	f.remote.down.Store(true)
	_, err := f.ledger.AddExpense(ctx, ev.ID, models.Expense{Description: "Dinner", Amount: d("20"), PaidBy: "alice", SharedBy: []string{"bob"}})
	require.NoError(t, err, "local commit succeeds while remote is down")
	_, err = f.ledger.AddExpense(ctx, ev.ID, models.Expense{Description: "Taxi", Amount: d("10"), PaidBy: "bob", SharedBy: []string{"alice"}})
	require.NoError(t, err)

	pending := f.ledger.Pending()
	require.Len(t, pending, 1, "snapshots of one event coalesce")
	assert.Equal(t, KindAddExpense, pending[0].Kind)
	assert.Len(t, pending[0].Payload.Expenses, 2)

	n, err := f.ledger.Flush(ctx)
	assert.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, f.ledger.SyncStatus().Pending)
	assert.NotEmpty(t, f.ledger.SyncStatus().LastError)

	f.remote.down.Store(false)
	n, err = f.ledger.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	status := f.ledger.SyncStatus()
	assert.Zero(t, status.Pending)
	assert.NotZero(t, status.LastSync)

	remote, err := f.remote.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, remote.Expenses, 2)
}

func TestFlushDropsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.tripWithFriends(t)

	f.remote.down.Store(true)
	_, err := f.ledger.LeaveEvent(ctx, ev.ID, "carol")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		f.ledger.Flush(ctx)
	}
	status := f.ledger.SyncStatus()
	assert.Zero(t, status.Pending)
	assert.Equal(t, 1, status.Dropped)
}

func TestQueuedDeleteIsReplayed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.tripWithFriends(t)

	f.remote.down.Store(true)
	require.NoError(t, f.ledger.DeleteEvent(ctx, ev.ID, "alice"))
	require.Len(t, f.ledger.Pending(), 1)

	// The durable store still has the event; the ledger must not read it back.
	_, err := f.ledger.GetEvent(ctx, ev.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	cached, err := f.local.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Nil(t, cached, "deleted event copied back into the local store")

	f.remote.down.Store(false)
	_, err = f.ledger.Flush(ctx)
	require.NoError(t, err)
	gone, err := f.remote.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	_, err = f.ledger.GetEvent(ctx, ev.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.ledger.JoinEvent(ctx, ev.ID, models.Participant{ID: "dave", DisplayName: "Dave"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	gone, err = f.remote.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Nil(t, gone, "deleted event saved to the durable store again")
}

func TestQueuedSaveIsDroppedOnceEventIsDeleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.tripWithFriends(t)

	f.remote.down.Store(true)
	_, err := f.ledger.JoinEvent(ctx, ev.ID, models.Participant{ID: "dave", DisplayName: "Dave"})
	require.NoError(t, err)
	require.NoError(t, f.ledger.DeleteEvent(ctx, ev.ID, "alice"))
	require.Len(t, f.ledger.Pending(), 2)

	f.remote.down.Store(false)
	flushed, err := f.ledger.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, flushed)
	assert.Empty(t, f.ledger.Pending())

	gone, err := f.remote.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestConcurrentRemoteEditIsMerged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.tripWithFriends(t)

	// Another session appends an expense straight to the durable store.
	other, err := f.remote.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	other.Expenses = append(other.Expenses, models.Expense{
		ID: "remote-1", Description: "Museum", Amount: d("12"), Currency: "USD",
		PaidBy: "bob", SharedBy: []string{"bob", "carol"}, CreatedAt: other.LastModified + 5, LastModified: other.LastModified + 5,
	})
	other.LastModified += 5
	require.NoError(t, f.remote.Store.SaveEvent(ctx, other))

	f.clock.advance(time.Second)
	_, err = f.ledger.AddExpense(ctx, ev.ID, models.Expense{ID: "local-1", Description: "Lunch", Amount: d("9"), PaidBy: "alice", SharedBy: []string{"alice", "bob", "carol"}})
	require.NoError(t, err)

	for _, s := range []interface {
		GetEvent(context.Context, string) (*models.Event, error)
	}{f.local, f.remote} {
		merged, err := s.GetEvent(ctx, ev.ID)
		require.NoError(t, err)
		assert.NotNil(t, merged.Expense("remote-1"))
		assert.NotNil(t, merged.Expense("local-1"))
	}
}

func TestConcurrentMutationsAreSerialized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.tripWithFriends(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.ledger.AddExpense(ctx, ev.ID, models.Expense{
				Description: fmt.Sprintf("Round %d", i), Amount: d("3"), PaidBy: "alice", SharedBy: []string{"bob", "carol"},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := f.ledger.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Expenses, 20)
	_, b, err := f.ledger.Balances(ctx, ev.ID)
	require.NoError(t, err)
	net, _ := b.Get("alice")
	assert.True(t, net.Equal(d("60")))
}

func TestArchiveInactive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	settled := f.tripWithFriends(t)
	owing := f.tripWithFriends(t)
	_, err := f.ledger.AddExpense(ctx, owing.ID, models.Expense{Description: "Hotel", Amount: d("90"), PaidBy: "alice", SharedBy: []string{"bob"}})
	require.NoError(t, err)

	f.clock.advance(31 * 24 * time.Hour)
	fresh := f.tripWithFriends(t)

	report, err := f.ledger.ArchiveInactive(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{settled.ID}, report.Deleted)
	assert.Equal(t, []string{owing.ID}, report.Deactivated)

	_, err = f.ledger.GetEvent(ctx, settled.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	archived, err := f.ledger.GetEvent(ctx, owing.ID)
	require.NoError(t, err)
	assert.False(t, archived.IsActive)
	kept, err := f.ledger.GetEvent(ctx, fresh.ID)
	require.NoError(t, err)
	assert.True(t, kept.IsActive)
}
