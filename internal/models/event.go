package models

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/mmynk/splitton/internal/apperrors"
)

var currencyCodePattern = regexp.MustCompile(`^[A-Z]{3,5}$`)

// Event is a shared tab: a roster of participants and the expenses recorded
// between them, all in one base currency.
type Event struct {
	// ID is the unique identifier for the event (UUID format).
	ID string `json:"id"`

	// Name is the display name (e.g. "Lisbon trip").
	Name string `json:"name"`

	// Description is optional free text.
	Description string `json:"description,omitempty"`

	// Currency is the base currency every expense is recorded in.
	Currency string `json:"currency"`

	// CreatedBy is the participant ID of the creator; only they may delete the event.
	CreatedBy string `json:"created_by"`

	// Participants is the roster in join order.
	Participants []Participant `json:"participants"`

	// Expenses is ordered by insertion for display; balances do not depend on order.
	Expenses []Expense `json:"expenses"`

	CreatedAt    int64 `json:"created_at"`
	LastModified int64 `json:"last_modified"`

	// IsActive is false once the event was archived for inactivity.
	IsActive bool `json:"is_active"`
}

// Validate checks event-level fields and roster uniqueness.
func (ev *Event) Validate() error {
	if strings.TrimSpace(ev.Name) == "" {
		return fmt.Errorf("%w: event name is required", apperrors.ErrValidation)
	}
	if !currencyCodePattern.MatchString(ev.Currency) {
		return fmt.Errorf("%w: invalid currency code %q", apperrors.ErrValidation, ev.Currency)
	}
	seen := make(map[string]bool, len(ev.Participants))
	for i := range ev.Participants {
		p := &ev.Participants[i]
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate participant %s", apperrors.ErrValidation, p.ID)
		}
		seen[p.ID] = true
	}
	ids := make(map[string]bool, len(ev.Expenses))
	for i := range ev.Expenses {
		if ids[ev.Expenses[i].ID] {
			return fmt.Errorf("%w: duplicate expense %s", apperrors.ErrValidation, ev.Expenses[i].ID)
		}
		ids[ev.Expenses[i].ID] = true
	}
	return nil
}

// ValidateExpense checks an expense against the roster at recording time:
// payer and every beneficiary must be active participants.
func (ev *Event) ValidateExpense(e *Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Currency != ev.Currency {
		return fmt.Errorf("%w: expense currency %s does not match event currency %s",
			apperrors.ErrValidation, e.Currency, ev.Currency)
	}
	if !ev.isActiveMember(e.PaidBy) {
		return fmt.Errorf("%w: payer %s is not an active participant", apperrors.ErrValidation, e.PaidBy)
	}
	for _, id := range e.SharedBy {
		if !ev.isActiveMember(id) {
			return fmt.Errorf("%w: beneficiary %s is not an active participant", apperrors.ErrValidation, id)
		}
	}
	return nil
}

func (ev *Event) isActiveMember(id string) bool {
	p := ev.Participant(id)
	return p != nil && p.IsActive
}

// Participant returns the roster entry for id, or nil.
func (ev *Event) Participant(id string) *Participant {
	for i := range ev.Participants {
		if ev.Participants[i].ID == id {
			return &ev.Participants[i]
		}
	}
	return nil
}

// Expense returns the expense with the given id, or nil.
func (ev *Event) Expense(id string) *Expense {
	for i := range ev.Expenses {
		if ev.Expenses[i].ID == id {
			return &ev.Expenses[i]
		}
	}
	return nil
}

// ParticipantIDs returns every roster ID, active or not, in join order.
func (ev *Event) ParticipantIDs() []string {
	ids := make([]string, len(ev.Participants))
	for i, p := range ev.Participants {
		ids[i] = p.ID
	}
	return ids
}

// LiveExpenses returns the expenses that are not logically deleted.
func (ev *Event) LiveExpenses() []Expense {
	live := make([]Expense, 0, len(ev.Expenses))
	for _, e := range ev.Expenses {
		if !e.Deleted {
			live = append(live, e)
		}
	}
	return live
}

// LatestActivity returns the most recent expense or event modification time.
func (ev *Event) LatestActivity() int64 {
	latest := ev.CreatedAt
	for _, e := range ev.Expenses {
		latest = max(latest, e.LastModified)
	}
	return latest
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (ev *Event) Clone() *Event {
	if ev == nil {
		return nil
	}
	out := *ev
	out.Participants = slices.Clone(ev.Participants)
	out.Expenses = make([]Expense, len(ev.Expenses))
	for i, e := range ev.Expenses {
		out.Expenses[i] = e.Clone()
	}
	return &out
}
