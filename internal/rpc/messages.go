package rpc

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitton/internal/models"
	"github.com/mmynk/splitton/internal/settlement"
)

// Auth messages.

type RegisterRequest struct {
	Username      string `json:"username" validate:"required,min=3,max=32,alphanum"`
	DisplayName   string `json:"display_name" validate:"required,max=64"`
	Password      string `json:"password" validate:"required,min=8,max=72"`
	WalletAddress string `json:"wallet_address,omitempty" validate:"omitempty,max=128"`
}

type RegisterResponse struct {
	Token string   `json:"token"`
	User  UserInfo `json:"user"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string   `json:"token"`
	User  UserInfo `json:"user"`
}

type UserInfo struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

// Event messages.

type CreateEventRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitempty" validate:"max=500"`
	Currency    string `json:"currency" validate:"required,min=3,max=5,alpha"`
}

// EventResponse is returned by every call that changes the roster or event metadata.
type EventResponse struct {
	Event *models.Event `json:"event"`
}

type GetEventRequest struct {
	EventID string `json:"event_id" validate:"required"`
}

type GetEventResponse struct {
	Event    *models.Event `json:"event"`
	Balances []BalanceView `json:"balances"`
	Settled  bool          `json:"settled"`
}

type DeleteEventRequest struct {
	EventID string `json:"event_id" validate:"required"`
}

type DeleteEventResponse struct{}

type JoinEventRequest struct {
	EventID     string `json:"event_id" validate:"required"`
	DisplayName string `json:"display_name,omitempty" validate:"max=64"`
}

type LeaveEventRequest struct {
	EventID string `json:"event_id" validate:"required"`
}

type SetWalletAddressRequest struct {
	EventID       string `json:"event_id" validate:"required"`
	WalletAddress string `json:"wallet_address" validate:"max=128"`
}

type AddExpenseRequest struct {
	EventID     string          `json:"event_id" validate:"required"`
	Description string          `json:"description" validate:"required,max=200"`
	Amount      decimal.Decimal `json:"amount"`
	PaidBy      string          `json:"paid_by" validate:"required"`
	SharedBy    []string        `json:"shared_by" validate:"required,min=1,unique,dive,required"`
	Category    string          `json:"category,omitempty" validate:"max=50"`
}

type EditExpenseRequest struct {
	EventID     string          `json:"event_id" validate:"required"`
	ExpenseID   string          `json:"expense_id" validate:"required"`
	Description string          `json:"description" validate:"required,max=200"`
	Amount      decimal.Decimal `json:"amount"`
	PaidBy      string          `json:"paid_by" validate:"required"`
	SharedBy    []string        `json:"shared_by" validate:"required,min=1,unique,dive,required"`
	Category    string          `json:"category,omitempty" validate:"max=50"`
}

type ExpenseResponse struct {
	Expense *models.Expense `json:"expense"`
}

type DeleteExpenseRequest struct {
	EventID   string `json:"event_id" validate:"required"`
	ExpenseID string `json:"expense_id" validate:"required"`
}

type DeleteExpenseResponse struct{}

type GetBalancesRequest struct {
	EventID string `json:"event_id" validate:"required"`
}

// BalanceView is a participant's position rounded for display.
type BalanceView struct {
	ParticipantID string          `json:"participant_id"`
	DisplayName   string          `json:"display_name"`
	Net           decimal.Decimal `json:"net"`
	Paid          decimal.Decimal `json:"paid"`
	Owed          decimal.Decimal `json:"owed"`
	Formatted     string          `json:"formatted"`
}

type DebtView struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	Formatted string          `json:"formatted"`
}

type GetBalancesResponse struct {
	Currency string        `json:"currency"`
	Balances []BalanceView `json:"balances"`
	Debts    []DebtView    `json:"debts"`
	Settled  bool          `json:"settled"`
}

type GetSettlementPlanRequest struct {
	EventID string `json:"event_id" validate:"required"`
}

type GetSettlementPlanResponse struct {
	Plan       *settlement.Plan        `json:"plan"`
	Summary    settlement.Summary      `json:"summary"`
	Fees       *settlement.FeeEstimate `json:"fees,omitempty"`
	RateStatus string                  `json:"rate_status"`
}

type ExecuteSettlementPlanRequest struct {
	EventID string `json:"event_id" validate:"required"`
}

// ExecuteSettlementPlanResponse is one progress update; the last message has Done set.
type ExecuteSettlementPlanResponse struct {
	Completed int                `json:"completed"`
	Total     int                `json:"total"`
	Result    *settlement.Result `json:"result,omitempty"`
	Done      bool               `json:"done"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	// Retry holds the transfers that failed, set on the final message.
	Retry *settlement.Plan `json:"retry,omitempty"`
}

type ListSettlementsRequest struct {
	EventID string `json:"event_id" validate:"required"`
}

type ListSettlementsResponse struct {
	Settlements []*models.SettlementRecord `json:"settlements"`
}

type GetSyncStatusRequest struct{}

type GetSyncStatusResponse struct {
	Pending   int    `json:"pending"`
	Dropped   int    `json:"dropped"`
	LastSync  int64  `json:"last_sync"`
	LastError string `json:"last_error,omitempty"`
}
