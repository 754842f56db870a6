package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitton/internal/models"
)

func TestStoreIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	s := New()

	got, err := s.GetEvent(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	ev := &models.Event{
		ID:       "ev1",
		Name:     "Trip",
		Currency: "USD",
		Expenses: []models.Expense{{ID: "e1", Amount: decimal.NewFromInt(10), SharedBy: []string{"a"}}},
	}
	require.NoError(t, s.SaveEvent(ctx, ev))
	require.NoError(t, s.SaveEvent(ctx, ev))

	ev.Expenses[0].SharedBy[0] = "mutated"
	got, err = s.GetEvent(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Expenses[0].SharedBy[0])

	got.Name = "changed"
	again, _ := s.GetEvent(ctx, "ev1")
	assert.Equal(t, "Trip", again.Name)

	ids, err := s.ListEventIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ev1"}, ids)

	require.NoError(t, s.DeleteEvent(ctx, "ev1"))
	require.NoError(t, s.DeleteEvent(ctx, "ev1"))
	got, _ = s.GetEvent(ctx, "ev1")
	assert.Nil(t, got)

	require.NoError(t, s.Close())
	_, err = s.GetEvent(ctx, "ev1")
	assert.ErrorIs(t, err, ErrClosed)
}
