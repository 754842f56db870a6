package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/mmynk/splitton/internal/apperrors"
	"github.com/mmynk/splitton/internal/metrics"
	"github.com/mmynk/splitton/internal/payment"
)

// DefaultTransferDelay spaces transfers to respect rail rate limits.
const DefaultTransferDelay = 2 * time.Second

// Result is the outcome of one attempted settlement.
type Result struct {
	Settlement Settlement `json:"settlement"`
	Success    bool       `json:"success"`
	TxRef      string     `json:"tx_ref,omitempty"`
	Error      string     `json:"error,omitempty"`
	At         int64      `json:"at"`
}

// Progress is invoked after every attempt. results is a snapshot owned by the callee.
type Progress func(completed, total int, current Settlement, results []Result)

// Executor runs plans against a payment rail, one transfer at a time.
type Executor struct {
	rail    payment.Rail
	delay   time.Duration
	metrics *metrics.Metrics
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithDelay sets the pause between transfers.
func WithDelay(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.delay = d }
}

func WithExecutorMetrics(m *metrics.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor creates an executor sending through rail.
func NewExecutor(rail payment.Rail, opts ...ExecutorOption) *Executor {
	e := &Executor{rail: rail, delay: DefaultTransferDelay}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute attempts every settlement in order and keeps going after failures.
// Cancellation is honoured between transfers only: a transfer handed to the
// rail always runs to completion, and the results gathered so far are
// returned together with the context error.
func (e *Executor) Execute(ctx context.Context, plan *Plan, onProgress Progress) ([]Result, error) {
	if plan == nil {
		return nil, apperrors.Refuse("no settlement plan")
	}
	if !plan.CanExecute {
		return nil, apperrors.Refuse(refusalReason(plan))
	}

	total := len(plan.Settlements)
	results := make([]Result, 0, total)
	for i, s := range plan.Settlements {
		if i > 0 && e.delay > 0 {
			timer := time.NewTimer(e.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				slog.Info("Settlement run cancelled", "completed", i, "total", total)
				return results, ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			slog.Info("Settlement run cancelled", "completed", i, "total", total)
			return results, err
		}

		results = append(results, e.send(ctx, s))
		if onProgress != nil {
			onProgress(i+1, total, s, slices.Clone(results))
		}
	}
	return results, nil
}

func (e *Executor) send(ctx context.Context, s Settlement) Result {
	// Once submitted the rail owns the transfer; do not abandon it mid-flight.
	txRef, err := e.rail.Send(context.WithoutCancel(ctx), s.FromAddress, s.ToAddress, s.UnitAmount, s.Memo)
	res := Result{Settlement: s, At: time.Now().UnixMilli()}
	if err != nil {
		res.Error = err.Error()
		slog.Warn("Settlement transfer failed",
			"from", s.From, "to", s.To, "amount", s.UnitAmount.String(), "unit", s.Unit, "error", err)
	} else {
		res.Success = true
		res.TxRef = txRef
		slog.Info("Settlement transfer completed",
			"from", s.From, "to", s.To, "amount", s.UnitAmount.String(), "unit", s.Unit, "tx_ref", txRef)
	}
	e.metrics.Transfer(res.Success)
	return res
}

func refusalReason(plan *Plan) string {
	switch {
	case len(plan.MissingAddresses) > 0:
		return fmt.Sprintf("%d participant(s) need to register a payment address (%d settlement(s) blocked)",
			len(plan.MissingAddresses), plan.Blocked)
	case len(plan.Settlements) == 0:
		return "no settlements to execute"
	default:
		return "plan is not executable"
	}
}

// RetryPlan returns a plan containing only the settlements that failed.
func RetryPlan(plan *Plan, results []Result) *Plan {
	retry := *plan
	retry.Settlements = []Settlement{}
	retry.FailedConversions = nil
	for _, r := range results {
		if !r.Success {
			retry.Settlements = append(retry.Settlements, r.Settlement)
		}
	}
	retry.CanExecute = len(retry.MissingAddresses) == 0 && len(retry.Settlements) > 0
	retry.Issues = []string{}
	if len(retry.Settlements) == 0 {
		retry.Issues = append(retry.Issues, "No settlements needed")
	}
	return &retry
}
