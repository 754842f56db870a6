package models

import "github.com/shopspring/decimal"

// Settlement record statuses.
const (
	SettlementCompleted = "completed"
	SettlementFailed    = "failed"
)

// SettlementRecord is the persisted outcome of one attempted transfer.
type SettlementRecord struct {
	// ID is the unique identifier for the record (UUID format).
	ID string `json:"id"`

	// EventID is the event whose debt this transfer settles.
	EventID string `json:"event_id"`

	// FromID is the debtor participant.
	FromID string `json:"from_id"`

	// ToID is the creditor participant.
	ToID string `json:"to_id"`

	// Amount and Currency are the fiat debt.
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	// UnitAmount and Unit are what was actually sent on the rail.
	UnitAmount decimal.Decimal `json:"unit_amount"`
	Unit       string          `json:"unit"`

	// TxRef is the rail's transaction reference, empty on failure.
	TxRef string `json:"tx_ref,omitempty"`

	// Status is SettlementCompleted or SettlementFailed.
	Status string `json:"status"`

	// Error holds the failure reason.
	Error string `json:"error,omitempty"`

	CreatedAt int64 `json:"created_at"`

	// CreatedBy is the user who ran the settlement.
	CreatedBy string `json:"created_by"`
}
