package calculator

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitton/internal/apperrors"
	"github.com/mmynk/splitton/internal/models"
)

func expense(id, amount, paidBy string, sharedBy ...string) models.Expense {
	return models.Expense{
		ID:          id,
		Description: id,
		Amount:      d(amount),
		Currency:    "USD",
		PaidBy:      paidBy,
		SharedBy:    sharedBy,
	}
}

func TestCalculateBalances(t *testing.T) {
	tests := []struct {
		name         string
		expenses     []models.Expense
		participants []string
		want         map[string]string // rounded net balances
		wantErr      bool
	}{
		{
			name:         "simple triangle",
			expenses:     []models.Expense{expense("e1", "42.50", "Alice", "Alice", "Bob", "Carol")},
			participants: []string{"Alice", "Bob", "Carol"},
			want:         map[string]string{"Alice": "28.33", "Bob": "-14.17", "Carol": "-14.17"},
		},
		{
			name:         "no expenses yields zero balances",
			participants: []string{"Alice", "Bob"},
			want:         map[string]string{"Alice": "0", "Bob": "0"},
		},
		{
			name:         "payer not a beneficiary",
			expenses:     []models.Expense{expense("e1", "20", "Alice", "Bob", "Carol")},
			participants: []string{"Alice", "Bob", "Carol"},
			want:         map[string]string{"Alice": "20", "Bob": "-10", "Carol": "-10"},
		},
		{
			name:         "single beneficiary gets the full amount",
			expenses:     []models.Expense{expense("e1", "15", "Alice", "Bob")},
			participants: []string{"Alice", "Bob", "Carol"},
			want:         map[string]string{"Alice": "15", "Bob": "-15", "Carol": "0"},
		},
		{
			name: "deleted expenses are ignored",
			expenses: func() []models.Expense {
				e := expense("e2", "99", "Bob", "Alice")
				e.Deleted = true
				return []models.Expense{expense("e1", "10", "Alice", "Alice", "Bob"), e}
			}(),
			participants: []string{"Alice", "Bob"},
			want:         map[string]string{"Alice": "5", "Bob": "-5"},
		},
		{
			name:         "unknown payer is appended to keep the sum at zero",
			expenses:     []models.Expense{expense("e1", "10", "Dave", "Alice")},
			participants: []string{"Alice"},
			want:         map[string]string{"Alice": "-10", "Dave": "10"},
		},
		{
			name:         "empty beneficiaries is an integrity error",
			expenses:     []models.Expense{expense("e1", "10", "Alice")},
			participants: []string{"Alice"},
			wantErr:      true,
		},
		{
			name:         "non-positive amount is an integrity error",
			expenses:     []models.Expense{expense("e1", "0", "Alice", "Alice")},
			participants: []string{"Alice"},
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			balances, err := CalculateBalances(tt.expenses, tt.participants)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CalculateBalances() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, apperrors.ErrIntegrity) {
					t.Errorf("expected ErrIntegrity, got %v", err)
				}
				return
			}
			rounded := balances.Rounded()
			if len(rounded) != len(tt.want) {
				t.Fatalf("got %d balances, want %d", len(rounded), len(tt.want))
			}
			for id, want := range tt.want {
				got, ok := rounded.Get(id)
				if !ok {
					t.Errorf("missing balance for %s", id)
					continue
				}
				if !got.Equal(d(want)) {
					t.Errorf("%s balance = %s, want %s", id, got, want)
				}
			}
		})
	}
}

func TestCalculateBalancesKeepsRosterOrder(t *testing.T) {
	balances, err := CalculateBalances(
		[]models.Expense{expense("e1", "9", "Carol", "Alice", "Bob", "Carol")},
		[]string{"Bob", "Carol", "Alice"},
	)
	if err != nil {
		t.Fatalf("CalculateBalances() error = %v", err)
	}
	want := []string{"Bob", "Carol", "Alice"}
	for i, id := range want {
		if balances[i].ParticipantID != id {
			t.Errorf("position %d = %s, want %s", i, balances[i].ParticipantID, id)
		}
	}
}

func TestCalculateBalancesTracksPaidAndOwed(t *testing.T) {
	balances, err := CalculateBalances(
		[]models.Expense{
			expense("e1", "30", "Alice", "Alice", "Bob", "Carol"),
			expense("e2", "12", "Bob", "Alice", "Bob"),
		},
		[]string{"Alice", "Bob", "Carol"},
	)
	if err != nil {
		t.Fatalf("CalculateBalances() error = %v", err)
	}
	alice := balances.Rounded()[0]
	if !alice.Paid.Equal(d("30")) {
		t.Errorf("Alice paid = %s, want 30", alice.Paid)
	}
	if !alice.Owed.Equal(d("16")) {
		t.Errorf("Alice owed = %s, want 16", alice.Owed)
	}
	if !alice.Net.Equal(d("14")) {
		t.Errorf("Alice net = %s, want 14", alice.Net)
	}
}

func TestSplitCorrectness(t *testing.T) {
	amount := d("100")
	ids := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"}
	for k := 1; k <= len(ids); k++ {
		t.Run(fmt.Sprintf("%d beneficiaries", k), func(t *testing.T) {
			balances, err := CalculateBalances(
				[]models.Expense{expense("e1", "100", "payer", ids[:k]...)},
				append([]string{"payer"}, ids...),
			)
			if err != nil {
				t.Fatalf("CalculateBalances() error = %v", err)
			}
			share := amount.Div(decimal.NewFromInt(int64(k)))
			debits := decimal.Zero
			for _, id := range ids[:k] {
				got, _ := balances.Get(id)
				if !near(got, share.Neg(), decimal.New(1, -10)) {
					t.Errorf("%s balance = %s, want %s", id, got, share.Neg())
				}
				debits = debits.Add(got.Neg())
			}
			if payer, _ := balances.Get("payer"); !payer.Equal(amount) {
				t.Errorf("payer balance = %s, want %s", payer, amount)
			}
			if !near(debits, amount, Epsilon) {
				t.Errorf("sum of debits = %s, want %s", debits, amount)
			}
		})
	}
}

// randomExpenses builds a reproducible batch of valid expenses.
func randomExpenses(r *rand.Rand, participants []string, n int) []models.Expense {
	expenses := make([]models.Expense, n)
	for i := range expenses {
		perm := r.Perm(len(participants))
		k := 1 + r.Intn(len(participants))
		sharedBy := make([]string, k)
		for j := 0; j < k; j++ {
			sharedBy[j] = participants[perm[j]]
		}
		cents := 1 + r.Int63n(100000)
		expenses[i] = models.Expense{
			ID:       fmt.Sprintf("e%d", i),
			Amount:   decimal.New(cents, -2),
			PaidBy:   participants[r.Intn(len(participants))],
			SharedBy: sharedBy,
		}
	}
	return expenses
}

func TestZeroSumInvariant(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	participants := []string{"Alice", "Bob", "Carol", "Dave", "Eve", "Frank"}

	for round := 0; round < 50; round++ {
		expenses := randomExpenses(r, participants, 1+r.Intn(40))
		balances, err := CalculateBalances(expenses, participants)
		if err != nil {
			t.Fatalf("round %d: CalculateBalances() error = %v", round, err)
		}
		if err := CheckZeroSum(balances); err != nil {
			t.Errorf("round %d: %v", round, err)
		}
		rounded := balances.Rounded()
		if rounded.Sum().Abs().GreaterThan(rounded.ZeroSumTolerance()) {
			t.Errorf("round %d: rounded balances sum to %s", round, rounded.Sum())
		}
	}
}

func TestOrderIndependence(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	participants := []string{"Alice", "Bob", "Carol", "Dave"}
	expenses := randomExpenses(r, participants, 25)

	forward, err := CalculateBalances(expenses, participants)
	if err != nil {
		t.Fatalf("CalculateBalances() error = %v", err)
	}
	reversed := make([]models.Expense, len(expenses))
	for i, e := range expenses {
		reversed[len(expenses)-1-i] = e
	}
	backward, err := CalculateBalances(reversed, participants)
	if err != nil {
		t.Fatalf("CalculateBalances() error = %v", err)
	}
	for i := range forward {
		if !near(forward[i].Net, backward[i].Net, decimal.New(1, -12)) {
			t.Errorf("%s: %s vs %s", forward[i].ParticipantID, forward[i].Net, backward[i].Net)
		}
	}
}

func TestCheckZeroSumDetectsDrift(t *testing.T) {
	balances := Balances{
		{ParticipantID: "Alice", Net: d("10")},
		{ParticipantID: "Bob", Net: d("-9")},
	}
	if err := CheckZeroSum(balances); !errors.Is(err, apperrors.ErrIntegrity) {
		t.Errorf("CheckZeroSum() = %v, want ErrIntegrity", err)
	}
}

func TestBalancesSettled(t *testing.T) {
	tests := []struct {
		name string
		nets []string
		want bool
	}{
		{"empty", nil, true},
		{"all zero", []string{"0", "0"}, true},
		{"dust within epsilon", []string{"0.01", "-0.01"}, true},
		{"just above epsilon", []string{"0.011", "-0.011"}, false},
		{"real debt", []string{"10", "-10"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b Balances
			for i, net := range tt.nets {
				b = append(b, Balance{ParticipantID: fmt.Sprintf("p%d", i), Net: d(net)})
			}
			if got := b.Settled(); got != tt.want {
				t.Errorf("Settled() = %v, want %v", got, tt.want)
			}
		})
	}
}
