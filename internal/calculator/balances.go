package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitton/internal/apperrors"
	"github.com/mmynk/splitton/internal/models"
)

// Balance is one participant's net position in an event.
type Balance struct {
	ParticipantID string
	Net           decimal.Decimal // Positive = is owed money, Negative = owes money
	Paid          decimal.Decimal // Total amount paid across all expenses
	Owed          decimal.Decimal // Total share of expenses this participant consumed
}

// Balances is an ordered balance vector. Order follows the roster passed to
// CalculateBalances and is the tie-break used by SimplifyDebts.
type Balances []Balance

// Get returns the net balance for id and whether id is present.
func (b Balances) Get(id string) (decimal.Decimal, bool) {
	for _, bal := range b {
		if bal.ParticipantID == id {
			return bal.Net, true
		}
	}
	return decimal.Zero, false
}

// Sum returns the sum of all net balances. It is zero up to rounding.
func (b Balances) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, bal := range b {
		sum = sum.Add(bal.Net)
	}
	return sum
}

// Rounded returns a copy rounded to DisplayPlaces for presentation.
// Keep the unrounded vector for SimplifyDebts so rounding happens once.
func (b Balances) Rounded() Balances {
	out := make(Balances, len(b))
	for i, bal := range b {
		out[i] = Balance{
			ParticipantID: bal.ParticipantID,
			Net:           bal.Net.Round(DisplayPlaces),
			Paid:          bal.Paid.Round(DisplayPlaces),
			Owed:          bal.Owed.Round(DisplayPlaces),
		}
	}
	return out
}

// Settled reports whether every net balance is within Epsilon of zero.
func (b Balances) Settled() bool {
	for _, bal := range b {
		if bal.Net.Abs().GreaterThan(Epsilon) {
			return false
		}
	}
	return true
}

// ZeroSumTolerance is the maximum drift the zero-sum identity may show after
// rounding: Epsilon times the number of participants.
func (b Balances) ZeroSumTolerance() decimal.Decimal {
	return Epsilon.Mul(decimal.NewFromInt(int64(max(len(b), 1))))
}

// CheckZeroSum returns an integrity error when the balances do not sum to zero
// within ZeroSumTolerance.
func CheckZeroSum(b Balances) error {
	sum := b.Sum()
	if sum.Abs().GreaterThan(b.ZeroSumTolerance()) {
		return fmt.Errorf("%w: balances sum to %s across %d participants", apperrors.ErrIntegrity, sum, len(b))
	}
	return nil
}

// CalculateBalances derives each participant's net balance from the expense list.
//
// Algorithm:
//   - every ID in participants starts at zero, in the given order
//   - for each live expense the payer is credited the full amount and each
//     beneficiary is debited amount/len(SharedBy)
//   - sums stay unrounded; call Rounded on the result for display
//
// IDs referenced by expenses but missing from participants are appended in
// first-reference order so the sum still cancels out.
//
// A malformed expense (non-positive amount, no payer, no beneficiaries) aborts
// the computation with an ErrIntegrity error: such expenses must have been
// rejected when they were recorded.
func CalculateBalances(expenses []models.Expense, participants []string) (Balances, error) {
	order := make([]string, 0, len(participants))
	balances := make(map[string]*Balance, len(participants))

	track := func(id string) *Balance {
		if bal, ok := balances[id]; ok {
			return bal
		}
		bal := &Balance{ParticipantID: id}
		balances[id] = bal
		order = append(order, id)
		return bal
	}

	for _, id := range participants {
		track(id)
	}

	for _, expense := range expenses {
		if expense.Deleted {
			continue
		}
		if expense.PaidBy == "" {
			return nil, fmt.Errorf("%w: expense %s has no payer", apperrors.ErrIntegrity, expense.ID)
		}

		splits, err := Split(expense.Amount, expense.SharedBy)
		if err != nil {
			return nil, fmt.Errorf("expense %s: %w", expense.ID, err)
		}

		payer := track(expense.PaidBy)
		payer.Paid = payer.Paid.Add(expense.Amount)

		// Walk SharedBy rather than the map so new IDs keep first-reference order.
		for _, id := range expense.SharedBy {
			share, ok := splits[id]
			if !ok {
				continue
			}
			delete(splits, id)
			beneficiary := track(id)
			beneficiary.Owed = beneficiary.Owed.Add(share)
		}
	}

	result := make(Balances, len(order))
	for i, id := range order {
		bal := balances[id]
		result[i] = Balance{
			ParticipantID: id,
			Net:           bal.Paid.Sub(bal.Owed),
			Paid:          bal.Paid,
			Owed:          bal.Owed,
		}
	}
	return result, nil
}

// EventBalances computes balances over the whole roster of ev, inactive
// participants included, so historical positions stay visible.
func EventBalances(ev *models.Event) (Balances, error) {
	return CalculateBalances(ev.LiveExpenses(), ev.ParticipantIDs())
}
