package calculator

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Debt is a suggested transfer: From pays To the given Amount.
type Debt struct {
	From   string          // Participant who owes
	To     string          // Participant who is owed
	Amount decimal.Decimal // Always positive, rounded to cents
}

type party struct {
	id        string
	remaining decimal.Decimal
}

// SimplifyDebts reduces a balance vector to a short list of transfers that
// brings every balance back to (approximately) zero.
//
// Greedy algorithm: creditors and debtors are sorted by the size of their
// position, largest first, and the largest debtor repeatedly pays the largest
// creditor min(owed, owing). Ties keep the order of the input, so the output
// is deterministic for a given Balances value. Positions within Epsilon of
// zero are treated as settled and transfers below Epsilon are dropped as dust.
//
// The result has at most creditors+debtors-1 entries. It is not guaranteed to
// be the global minimum, which is NP-hard to find.
func SimplifyDebts(balances Balances) []Debt {
	var creditors, debtors []party
	for _, bal := range balances {
		switch {
		case bal.Net.GreaterThan(Epsilon):
			creditors = append(creditors, party{id: bal.ParticipantID, remaining: bal.Net})
		case bal.Net.LessThan(Epsilon.Neg()):
			debtors = append(debtors, party{id: bal.ParticipantID, remaining: bal.Net.Neg()})
		}
	}

	sort.SliceStable(creditors, func(i, j int) bool {
		return creditors[i].remaining.GreaterThan(creditors[j].remaining)
	})
	sort.SliceStable(debtors, func(i, j int) bool {
		return debtors[i].remaining.GreaterThan(debtors[j].remaining)
	})

	var debts []Debt
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		debtor := &debtors[i]
		creditor := &creditors[j]

		amount := decimal.Min(debtor.remaining, creditor.remaining)

		if amount.GreaterThan(Epsilon) {
			debts = append(debts, Debt{
				From:   debtor.id,
				To:     creditor.id,
				Amount: amount.Round(DisplayPlaces),
			})
		}

		debtor.remaining = debtor.remaining.Sub(amount)
		creditor.remaining = creditor.remaining.Sub(amount)

		if debtor.remaining.LessThan(Epsilon) {
			i++
		}
		if creditor.remaining.LessThan(Epsilon) {
			j++
		}
	}

	return debts
}
