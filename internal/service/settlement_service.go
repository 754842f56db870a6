package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/splitton/internal/apperrors"
	"github.com/mmynk/splitton/internal/models"
	"github.com/mmynk/splitton/internal/rpc"
	"github.com/mmynk/splitton/internal/settlement"
	"github.com/mmynk/splitton/internal/ton"
)

// startRun claims the settlement run for an event. The returned func
// releases it; ok is false while another run is in progress.
func (s *EventService) startRun(eventID string) (release func(), ok bool) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if _, busy := s.running[eventID]; busy {
		return nil, false
	}
	s.running[eventID] = struct{}{}
	return func() {
		s.runMu.Lock()
		delete(s.running, eventID)
		s.runMu.Unlock()
	}, true
}

func (s *EventService) plan(ctx context.Context, eventID string) (*models.Event, *settlement.Plan, error) {
	ev, bals, err := s.ledger.Balances(ctx, eventID)
	if err != nil {
		return nil, nil, toConnectError(err)
	}
	plan, err := s.planner.Plan(ctx, settlement.PlanInput{
		Currency:     ev.Currency,
		Balances:     bals,
		Participants: ev.Participants,
	})
	if err != nil {
		slog.Error("Planning failed", "event_id", eventID, "error", err)
		return nil, nil, toConnectError(err)
	}
	return ev, plan, nil
}

// GetSettlementPlan previews the transfers that would settle the event.
func (s *EventService) GetSettlementPlan(ctx context.Context, req *connect.Request[rpc.GetSettlementPlanRequest]) (*connect.Response[rpc.GetSettlementPlanResponse], error) {
	slog.Info("GetSettlementPlan request received", "event_id", req.Msg.EventID)

	if _, _, err := s.member(ctx, req.Msg.EventID); err != nil {
		return nil, err
	}
	ev, plan, err := s.plan(ctx, req.Msg.EventID)
	if err != nil {
		return nil, err
	}

	resp := &rpc.GetSettlementPlanResponse{
		Plan:    plan,
		Summary: plan.Summary(),
	}
	if fees, err := s.planner.EstimateFees(ctx, plan); err != nil {
		slog.Warn("Fee estimate unavailable", "event_id", ev.ID, "error", err)
	} else {
		resp.Fees = &fees
	}
	if s.rates != nil {
		resp.RateStatus = string(s.rates.Status(ev.Currency))
	}

	slog.Info("GetSettlementPlan successful",
		"event_id", ev.ID,
		"settlements", len(plan.Settlements),
		"can_execute", plan.CanExecute,
	)
	return connect.NewResponse(resp), nil
}

// ExecuteSettlementPlan plans and runs the settlement, streaming one message
// per attempted transfer and a final summary. Completed transfers are booked
// as settlement expenses so balances move toward zero. Only one run per event
// may be in flight; the plan is built after the run is claimed.
func (s *EventService) ExecuteSettlementPlan(ctx context.Context, req *connect.Request[rpc.ExecuteSettlementPlanRequest], stream *connect.ServerStream[rpc.ExecuteSettlementPlanResponse]) error {
	slog.Info("ExecuteSettlementPlan request received", "event_id", req.Msg.EventID)

	_, caller, err := s.member(ctx, req.Msg.EventID)
	if err != nil {
		return err
	}
	release, ok := s.startRun(req.Msg.EventID)
	if !ok {
		slog.Warn("Settlement run rejected, another is in progress", "event_id", req.Msg.EventID, "caller", caller)
		return toConnectError(apperrors.Refuse("settlement already in progress"))
	}
	defer release()

	ev, plan, err := s.plan(ctx, req.Msg.EventID)
	if err != nil {
		return err
	}
	if plan.CanExecute {
		if err := plan.Validate(ton.IsValidAddress); err != nil {
			return toConnectError(err)
		}
	}

	var sendErr error
	succeeded, failed := 0, 0
	results, execErr := s.executor.Execute(ctx, plan, func(completed, total int, _ settlement.Settlement, results []settlement.Result) {
		res := results[len(results)-1]
		s.record(ctx, ev, caller, res)
		if res.Success {
			succeeded++
		} else {
			failed++
		}
		if sendErr != nil {
			return
		}
		sendErr = stream.Send(&rpc.ExecuteSettlementPlanResponse{
			Completed: completed,
			Total:     total,
			Result:    &res,
			Succeeded: succeeded,
			Failed:    failed,
		})
	})
	if execErr != nil {
		slog.Warn("Settlement run stopped", "event_id", ev.ID, "completed", len(results), "error", execErr)
		return toConnectError(execErr)
	}
	if sendErr != nil {
		return sendErr
	}

	slog.Info("Settlement run finished", "event_id", ev.ID, "succeeded", succeeded, "failed", failed)
	final := &rpc.ExecuteSettlementPlanResponse{
		Completed: len(results),
		Total:     len(plan.Settlements),
		Done:      true,
		Succeeded: succeeded,
		Failed:    failed,
	}
	if failed > 0 {
		final.Retry = settlement.RetryPlan(plan, results)
	}
	return stream.Send(final)
}

// record persists a transfer attempt and, when it went through, books it in
// the ledger. The transfer already happened, so cancellation does not apply.
func (s *EventService) record(ctx context.Context, ev *models.Event, caller string, res settlement.Result) {
	ctx = context.WithoutCancel(ctx)
	st := res.Settlement

	rec := &models.SettlementRecord{
		EventID:    ev.ID,
		FromID:     st.From,
		ToID:       st.To,
		Amount:     st.Amount,
		Currency:   st.Currency,
		UnitAmount: st.UnitAmount,
		Unit:       st.Unit,
		TxRef:      res.TxRef,
		Status:     models.SettlementFailed,
		Error:      res.Error,
		CreatedAt:  res.At,
		CreatedBy:  caller,
	}
	if res.Success {
		rec.Status = models.SettlementCompleted
	}
	if err := s.settlements.CreateSettlement(ctx, rec); err != nil {
		slog.Error("Failed to store settlement record", "event_id", ev.ID, "from", st.From, "to", st.To, "error", err)
	}

	if !res.Success {
		return
	}
	if _, err := s.ledger.RecordSettlement(ctx, ev.ID, st.From, st.To, st.Amount, st.Memo); err != nil {
		slog.Error("Failed to book completed settlement",
			"event_id", ev.ID, "from", st.From, "to", st.To, "tx_ref", res.TxRef, "error", err)
	}
}
