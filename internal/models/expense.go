package models

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitton/internal/apperrors"
)

// CategorySettlement marks expenses recorded for an executed transfer.
const CategorySettlement = "settlement"

// Expense is an amount paid by one participant and split equally among the
// beneficiaries in SharedBy. The payer may or may not be a beneficiary.
type Expense struct {
	// ID is unique within the event and immutable.
	ID string `json:"id"`

	// Description is a non-empty label (e.g. "Dinner").
	Description string `json:"description"`

	// Amount is the positive total paid.
	Amount decimal.Decimal `json:"amount"`

	// Currency is the ISO-like code; it always equals the event currency.
	Currency string `json:"currency"`

	// PaidBy is the participant ID credited with the full amount.
	PaidBy string `json:"paid_by"`

	// SharedBy is the non-empty set of participant IDs debited amount/len(SharedBy).
	SharedBy []string `json:"shared_by"`

	// Category is an optional free-form tag; "settlement" for recorded transfers.
	Category string `json:"category,omitempty"`

	// CreatedAt is immutable once recorded.
	CreatedAt int64 `json:"created_at"`

	// LastModified drives last-writer-wins conflict resolution.
	LastModified int64 `json:"last_modified"`

	// Deleted marks a logically removed expense; it no longer affects balances.
	Deleted bool `json:"deleted,omitempty"`
}

// Validate checks the fields that do not depend on the event roster.
func (e *Expense) Validate() error {
	if strings.TrimSpace(e.Description) == "" {
		return fmt.Errorf("%w: expense description is required", apperrors.ErrValidation)
	}
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: expense amount must be positive, got %s", apperrors.ErrValidation, e.Amount)
	}
	if e.PaidBy == "" {
		return fmt.Errorf("%w: expense payer is required", apperrors.ErrValidation)
	}
	if len(e.SharedBy) == 0 {
		return fmt.Errorf("%w: expense must be shared by at least one participant", apperrors.ErrValidation)
	}
	seen := make(map[string]bool, len(e.SharedBy))
	for _, id := range e.SharedBy {
		if id == "" {
			return fmt.Errorf("%w: empty beneficiary id", apperrors.ErrValidation)
		}
		if seen[id] {
			return fmt.Errorf("%w: beneficiary %s listed twice", apperrors.ErrValidation, id)
		}
		seen[id] = true
	}
	return nil
}

// SameContent reports whether two versions of an expense carry the same
// user-visible data. Timestamps are ignored; beneficiary order is not significant.
func (e *Expense) SameContent(other *Expense) bool {
	if e.Description != other.Description ||
		!e.Amount.Equal(other.Amount) ||
		e.Currency != other.Currency ||
		e.PaidBy != other.PaidBy ||
		e.Category != other.Category ||
		e.Deleted != other.Deleted {
		return false
	}
	a := slices.Clone(e.SharedBy)
	b := slices.Clone(other.SharedBy)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// Clone returns a deep copy.
func (e Expense) Clone() Expense {
	e.SharedBy = slices.Clone(e.SharedBy)
	return e
}
