// Package settlement turns simplified debts into executable transfers in the
// settlement unit (TON) and runs them against a payment rail.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitton/internal/apperrors"
	"github.com/mmynk/splitton/internal/calculator"
	"github.com/mmynk/splitton/internal/currency"
	"github.com/mmynk/splitton/internal/models"
	"github.com/mmynk/splitton/internal/ton"
)

// FeePerTransfer is the estimated network fee for one transfer, in TON.
var FeePerTransfer = decimal.New(1, -2)

// RateProvider returns units of the settlement unit per one unit of fiat.
type RateProvider interface {
	Rate(ctx context.Context, code string) (decimal.Decimal, error)
}

// Settlement is a debt made concrete with payment addresses and a converted amount.
type Settlement struct {
	From     string `json:"from"`
	To       string `json:"to"`
	FromName string `json:"from_name"`
	ToName   string `json:"to_name"`

	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`

	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	UnitAmount decimal.Decimal `json:"unit_amount"`
	Unit       string          `json:"unit"`
	Rate       decimal.Decimal `json:"rate"`

	Memo string `json:"memo,omitempty"`
}

// FailedConversion is a debt left out of the plan because no rate was available.
type FailedConversion struct {
	Debt   calculator.Debt `json:"debt"`
	Reason string          `json:"reason"`
}

// Plan is the full set of settlements for an event plus readiness metadata.
type Plan struct {
	Currency          string             `json:"currency"`
	Unit              string             `json:"unit"`
	Settlements       []Settlement       `json:"settlements"`
	MissingAddresses  []string           `json:"missing_addresses"`
	Blocked           int                `json:"blocked"`
	FailedConversions []FailedConversion `json:"failed_conversions,omitempty"`
	CanExecute        bool               `json:"can_execute"`
	Issues            []string           `json:"issues"`
	CreatedAt         int64              `json:"created_at"`
}

// PlanInput feeds the planner. Debts may be left nil, in which case they are
// derived from Balances.
type PlanInput struct {
	Currency     string
	Balances     calculator.Balances
	Debts        []calculator.Debt
	Participants []models.Participant
}

// Planner builds settlement plans.
type Planner struct {
	rates   RateProvider
	unit    string
	isValid func(string) bool
	now     func() time.Time
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithUnit sets the settlement unit (default TON).
func WithUnit(unit string) PlannerOption {
	return func(p *Planner) { p.unit = strings.ToUpper(unit) }
}

// WithAddressValidator replaces ton.IsValidAddress.
func WithAddressValidator(fn func(string) bool) PlannerOption {
	return func(p *Planner) { p.isValid = fn }
}

func WithPlannerClock(now func() time.Time) PlannerOption {
	return func(p *Planner) { p.now = now }
}

// NewPlanner creates a planner converting amounts through rates.
func NewPlanner(rates RateProvider, opts ...PlannerOption) *Planner {
	p := &Planner{
		rates:   rates,
		unit:    currency.TON,
		isValid: ton.IsValidAddress,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Unit returns the settlement unit.
func (p *Planner) Unit() string {
	return p.unit
}

// Plan resolves addresses and converts every debt. A failed rate lookup for
// one debt excludes that debt and is reported as an issue; only context
// cancellation aborts the plan.
func (p *Planner) Plan(ctx context.Context, in PlanInput) (*Plan, error) {
	if in.Currency == "" {
		return nil, fmt.Errorf("%w: plan currency is required", apperrors.ErrValidation)
	}
	debts := in.Debts
	if debts == nil {
		debts = calculator.SimplifyDebts(in.Balances)
	}

	roster := make(map[string]*models.Participant, len(in.Participants))
	for i := range in.Participants {
		roster[in.Participants[i].ID] = &in.Participants[i]
	}

	plan := &Plan{
		Currency:         in.Currency,
		Unit:             p.unit,
		Settlements:      []Settlement{},
		MissingAddresses: []string{},
		CreatedAt:        p.now().UnixMilli(),
	}
	missing := make(map[string]bool)
	markMissing := func(id string) {
		if !missing[id] {
			missing[id] = true
			plan.MissingAddresses = append(plan.MissingAddresses, id)
		}
	}

	for _, d := range debts {
		fromAddr, fromOK := p.address(roster, d.From)
		toAddr, toOK := p.address(roster, d.To)
		if !fromOK {
			markMissing(d.From)
		}
		if !toOK {
			markMissing(d.To)
		}
		if !fromOK || !toOK {
			plan.Blocked++
			continue
		}

		rate, err := p.rate(ctx, in.Currency)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("Excluding settlement after rate lookup failure",
				"from", d.From, "to", d.To, "currency", in.Currency, "error", err)
			plan.FailedConversions = append(plan.FailedConversions, FailedConversion{Debt: d, Reason: err.Error()})
			continue
		}

		s := Settlement{
			From:        d.From,
			To:          d.To,
			FromName:    displayName(roster, d.From),
			ToName:      displayName(roster, d.To),
			FromAddress: fromAddr,
			ToAddress:   toAddr,
			Amount:      d.Amount,
			Currency:    in.Currency,
			UnitAmount:  d.Amount.Mul(rate).Round(currency.Decimals(p.unit)),
			Unit:        p.unit,
			Rate:        rate,
		}
		s.Memo = fmt.Sprintf("Settlement: %s pays %s %s", s.FromName, s.ToName,
			currency.Format(s.Amount, s.Currency))
		plan.Settlements = append(plan.Settlements, s)
	}

	plan.CanExecute = len(plan.MissingAddresses) == 0 && len(plan.Settlements) > 0
	plan.Issues = issues(plan, len(debts))
	return plan, nil
}

func (p *Planner) address(roster map[string]*models.Participant, id string) (string, bool) {
	part, ok := roster[id]
	if !ok || part.WalletAddress == "" || !p.isValid(part.WalletAddress) {
		return "", false
	}
	return part.WalletAddress, true
}

func (p *Planner) rate(ctx context.Context, code string) (decimal.Decimal, error) {
	if strings.EqualFold(code, p.unit) {
		return decimal.NewFromInt(1), nil
	}
	r, err := p.rates.Rate(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	if !r.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive rate %s for %s", r, code)
	}
	return r, nil
}

func displayName(roster map[string]*models.Participant, id string) string {
	if part, ok := roster[id]; ok {
		return part.Name()
	}
	return id
}

func issues(plan *Plan, debtCount int) []string {
	out := []string{}
	if debtCount == 0 {
		return append(out, "No settlements needed")
	}
	if n := len(plan.MissingAddresses); n > 0 {
		out = append(out, fmt.Sprintf("%d participant(s) need to register a payment address", n))
	}
	if plan.Blocked > 0 {
		out = append(out, fmt.Sprintf("%d settlement(s) blocked", plan.Blocked))
	}
	for _, fc := range plan.FailedConversions {
		out = append(out, fmt.Sprintf("Could not convert %s owed by %s to %s: %s",
			currency.Format(fc.Debt.Amount, plan.Currency), fc.Debt.From, fc.Debt.To, fc.Reason))
	}
	return out
}

// Summary is the human-facing digest of a plan.
type Summary struct {
	TotalTransactions int      `json:"total_transactions"`
	TotalAmount       string   `json:"total_amount"`
	TotalUnitAmount   string   `json:"total_unit_amount"`
	ParticipantCount  int      `json:"participant_count"`
	ReadyToExecute    bool     `json:"ready_to_execute"`
	Issues            []string `json:"issues"`
}

// Summary computes totals over the executable settlements.
func (p *Plan) Summary() Summary {
	total, unitTotal := decimal.Zero, decimal.Zero
	parties := make(map[string]bool)
	for _, s := range p.Settlements {
		total = total.Add(s.Amount)
		unitTotal = unitTotal.Add(s.UnitAmount)
		parties[s.From] = true
		parties[s.To] = true
	}
	return Summary{
		TotalTransactions: len(p.Settlements),
		TotalAmount:       currency.Format(total, p.Currency),
		TotalUnitAmount:   currency.Format(unitTotal, p.Unit),
		ParticipantCount:  len(parties),
		ReadyToExecute:    p.CanExecute,
		Issues:            p.Issues,
	}
}

// Validate re-checks every settlement before execution.
func (p *Plan) Validate(isValid func(string) bool) error {
	var problems []string
	for i, s := range p.Settlements {
		if !isValid(s.FromAddress) {
			problems = append(problems, fmt.Sprintf("settlement %d: invalid source address for %s", i+1, s.From))
		}
		if !isValid(s.ToAddress) {
			problems = append(problems, fmt.Sprintf("settlement %d: invalid destination address for %s", i+1, s.To))
		}
		if !s.Amount.IsPositive() || !s.UnitAmount.IsPositive() {
			problems = append(problems, fmt.Sprintf("settlement %d: amount must be positive", i+1))
		}
		if s.From == s.To {
			problems = append(problems, fmt.Sprintf("settlement %d: %s pays themselves", i+1, s.From))
		}
	}
	if len(problems) > 0 {
		return apperrors.Refuse(strings.Join(problems, "; "))
	}
	return nil
}

// FeeEstimate is the expected network cost of executing a plan.
type FeeEstimate struct {
	PerTransfer decimal.Decimal `json:"per_transfer"`
	UnitTotal   decimal.Decimal `json:"unit_total"`
	FiatTotal   decimal.Decimal `json:"fiat_total"`
	Unit        string          `json:"unit"`
	Currency    string          `json:"currency"`
}

// EstimateFees prices the plan's transfers at FeePerTransfer each.
func (p *Planner) EstimateFees(ctx context.Context, plan *Plan) (FeeEstimate, error) {
	est := FeeEstimate{
		PerTransfer: FeePerTransfer,
		UnitTotal:   FeePerTransfer.Mul(decimal.NewFromInt(int64(len(plan.Settlements)))),
		Unit:        plan.Unit,
		Currency:    plan.Currency,
	}
	if est.UnitTotal.IsZero() {
		return est, nil
	}
	rate, err := p.rate(ctx, plan.Currency)
	if err != nil {
		return est, fmt.Errorf("failed to price fees in %s: %w", plan.Currency, err)
	}
	est.FiatTotal = est.UnitTotal.DivRound(rate, currency.Decimals(plan.Currency))
	return est, nil
}
