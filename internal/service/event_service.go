package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"connectrpc.com/connect"

	"github.com/mmynk/splitton/internal/apperrors"
	"github.com/mmynk/splitton/internal/auth"
	"github.com/mmynk/splitton/internal/calculator"
	"github.com/mmynk/splitton/internal/currency"
	"github.com/mmynk/splitton/internal/ledger"
	"github.com/mmynk/splitton/internal/middleware"
	"github.com/mmynk/splitton/internal/models"
	"github.com/mmynk/splitton/internal/rates"
	"github.com/mmynk/splitton/internal/rpc"
	"github.com/mmynk/splitton/internal/settlement"
	"github.com/mmynk/splitton/internal/storage"
)

// RateStatusReporter reports how fresh the cached rate for a currency is.
type RateStatusReporter interface {
	Status(code string) rates.Status
}

// EventServiceDeps bundles the collaborators of EventService.
type EventServiceDeps struct {
	Ledger      *ledger.Ledger
	Planner     *settlement.Planner
	Executor    *settlement.Executor
	Settlements storage.SettlementStore
	Users       storage.UserStore
	Rates       RateStatusReporter
}

// EventService implements the EventService RPC interface.
type EventService struct {
	ledger      *ledger.Ledger
	planner     *settlement.Planner
	executor    *settlement.Executor
	settlements storage.SettlementStore
	users       storage.UserStore
	rates       RateStatusReporter

	runMu   sync.Mutex
	running map[string]struct{}
}

var _ rpc.EventServiceHandler = (*EventService)(nil)

// NewEventService creates a new EventService.
func NewEventService(deps EventServiceDeps) *EventService {
	return &EventService{
		ledger:      deps.Ledger,
		planner:     deps.Planner,
		executor:    deps.Executor,
		settlements: deps.Settlements,
		users:       deps.Users,
		rates:       deps.Rates,
		running:     make(map[string]struct{}),
	}
}

func callerID(ctx context.Context) (string, error) {
	id := middleware.GetUserID(ctx)
	if id == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}
	return id, nil
}

// member loads the event and checks that the caller is on its roster.
// Participants who left may still read and settle.
func (s *EventService) member(ctx context.Context, eventID string) (*models.Event, string, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, "", err
	}
	ev, err := s.ledger.GetEvent(ctx, eventID)
	if err != nil {
		return nil, "", toConnectError(err)
	}
	if ev.Participant(caller) == nil {
		return nil, "", toConnectError(fmt.Errorf("%w: %s is not a participant of event %s", apperrors.ErrPermission, caller, eventID))
	}
	return ev, caller, nil
}

// participantFor builds the roster entry for the caller, defaulting the
// wallet to the one saved on their account.
func (s *EventService) participantFor(ctx context.Context, caller, displayName string) models.Participant {
	p := models.Participant{
		ID:          caller,
		Username:    caller,
		DisplayName: strings.TrimSpace(displayName),
	}
	if p.DisplayName == "" {
		p.DisplayName = middleware.GetDisplayName(ctx)
	}
	if s.users != nil {
		user, err := s.users.GetUserByID(ctx, caller)
		if err != nil {
			slog.Warn("Failed to load user profile", "user_id", caller, "error", err)
		} else if user != nil {
			if p.DisplayName == "" {
				p.DisplayName = user.DisplayName
			}
			p.WalletAddress = user.WalletAddress
		}
	}
	if p.DisplayName == "" {
		p.DisplayName = caller
	}
	return p
}

// CreateEvent creates a new event with the caller as its first participant.
func (s *EventService) CreateEvent(ctx context.Context, req *connect.Request[rpc.CreateEventRequest]) (*connect.Response[rpc.EventResponse], error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("CreateEvent request received", "name", req.Msg.Name, "currency", req.Msg.Currency, "user_id", caller)

	if _, ok := currency.Lookup(req.Msg.Currency); !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unsupported currency %q", req.Msg.Currency))
	}

	ev, err := s.ledger.CreateEvent(ctx, ledger.CreateEventInput{
		Name:        req.Msg.Name,
		Description: req.Msg.Description,
		Currency:    req.Msg.Currency,
		Creator:     s.participantFor(ctx, caller, ""),
	})
	if err != nil {
		slog.Error("CreateEvent failed", "error", err)
		return nil, toConnectError(err)
	}

	slog.Info("Event created", "event_id", ev.ID)
	return connect.NewResponse(&rpc.EventResponse{Event: ev}), nil
}

// GetEvent returns an event with its current balances.
func (s *EventService) GetEvent(ctx context.Context, req *connect.Request[rpc.GetEventRequest]) (*connect.Response[rpc.GetEventResponse], error) {
	slog.Info("GetEvent request received", "event_id", req.Msg.EventID)

	if _, _, err := s.member(ctx, req.Msg.EventID); err != nil {
		return nil, err
	}
	ev, bals, err := s.ledger.Balances(ctx, req.Msg.EventID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&rpc.GetEventResponse{
		Event:    ev,
		Balances: balanceViews(ev, bals),
		Settled:  bals.Settled(),
	}), nil
}

// DeleteEvent removes a settled event. Only its creator may do so.
func (s *EventService) DeleteEvent(ctx context.Context, req *connect.Request[rpc.DeleteEventRequest]) (*connect.Response[rpc.DeleteEventResponse], error) {
	slog.Info("DeleteEvent request received", "event_id", req.Msg.EventID)

	_, caller, err := s.member(ctx, req.Msg.EventID)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.DeleteEvent(ctx, req.Msg.EventID, caller); err != nil {
		slog.Warn("DeleteEvent refused", "event_id", req.Msg.EventID, "error", err)
		return nil, toConnectError(err)
	}

	slog.Info("Event deleted", "event_id", req.Msg.EventID)
	return connect.NewResponse(&rpc.DeleteEventResponse{}), nil
}

// JoinEvent adds the caller to the roster.
func (s *EventService) JoinEvent(ctx context.Context, req *connect.Request[rpc.JoinEventRequest]) (*connect.Response[rpc.EventResponse], error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("JoinEvent request received", "event_id", req.Msg.EventID, "user_id", caller)

	ev, err := s.ledger.JoinEvent(ctx, req.Msg.EventID, s.participantFor(ctx, caller, req.Msg.DisplayName))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&rpc.EventResponse{Event: ev}), nil
}

// LeaveEvent deactivates the caller. Their balance stays in the event.
func (s *EventService) LeaveEvent(ctx context.Context, req *connect.Request[rpc.LeaveEventRequest]) (*connect.Response[rpc.EventResponse], error) {
	slog.Info("LeaveEvent request received", "event_id", req.Msg.EventID)

	_, caller, err := s.member(ctx, req.Msg.EventID)
	if err != nil {
		return nil, err
	}
	ev, err := s.ledger.LeaveEvent(ctx, req.Msg.EventID, caller)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&rpc.EventResponse{Event: ev}), nil
}

// SetWalletAddress registers the caller's payment address for the event and
// remembers it as their default for future events.
func (s *EventService) SetWalletAddress(ctx context.Context, req *connect.Request[rpc.SetWalletAddressRequest]) (*connect.Response[rpc.EventResponse], error) {
	slog.Info("SetWalletAddress request received", "event_id", req.Msg.EventID)

	_, caller, err := s.member(ctx, req.Msg.EventID)
	if err != nil {
		return nil, err
	}
	ev, err := s.ledger.SetWalletAddress(ctx, req.Msg.EventID, caller, req.Msg.WalletAddress)
	if err != nil {
		return nil, toConnectError(err)
	}

	if s.users != nil {
		if user, err := s.users.GetUserByID(ctx, caller); err == nil && user != nil {
			user.WalletAddress = ev.Participant(caller).WalletAddress
			if err := s.users.UpdateUser(ctx, user); err != nil {
				slog.Warn("Failed to update default wallet", "user_id", caller, "error", err)
			}
		}
	}
	return connect.NewResponse(&rpc.EventResponse{Event: ev}), nil
}

// AddExpense records a new expense.
func (s *EventService) AddExpense(ctx context.Context, req *connect.Request[rpc.AddExpenseRequest]) (*connect.Response[rpc.ExpenseResponse], error) {
	slog.Info("AddExpense request received",
		"event_id", req.Msg.EventID,
		"amount", req.Msg.Amount.String(),
		"shared_by_count", len(req.Msg.SharedBy),
	)

	if _, _, err := s.member(ctx, req.Msg.EventID); err != nil {
		return nil, err
	}
	e, err := s.ledger.AddExpense(ctx, req.Msg.EventID, models.Expense{
		Description: req.Msg.Description,
		Amount:      req.Msg.Amount,
		PaidBy:      req.Msg.PaidBy,
		SharedBy:    req.Msg.SharedBy,
		Category:    req.Msg.Category,
	})
	if err != nil {
		slog.Warn("AddExpense failed", "event_id", req.Msg.EventID, "error", err)
		return nil, toConnectError(err)
	}

	slog.Info("Expense added", "event_id", req.Msg.EventID, "expense_id", e.ID)
	return connect.NewResponse(&rpc.ExpenseResponse{Expense: e}), nil
}

// EditExpense replaces the content of an existing expense.
func (s *EventService) EditExpense(ctx context.Context, req *connect.Request[rpc.EditExpenseRequest]) (*connect.Response[rpc.ExpenseResponse], error) {
	slog.Info("EditExpense request received", "event_id", req.Msg.EventID, "expense_id", req.Msg.ExpenseID)

	if _, _, err := s.member(ctx, req.Msg.EventID); err != nil {
		return nil, err
	}
	e, err := s.ledger.EditExpense(ctx, req.Msg.EventID, models.Expense{
		ID:          req.Msg.ExpenseID,
		Description: req.Msg.Description,
		Amount:      req.Msg.Amount,
		PaidBy:      req.Msg.PaidBy,
		SharedBy:    req.Msg.SharedBy,
		Category:    req.Msg.Category,
	})
	if err != nil {
		slog.Warn("EditExpense failed", "event_id", req.Msg.EventID, "expense_id", req.Msg.ExpenseID, "error", err)
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&rpc.ExpenseResponse{Expense: e}), nil
}

// DeleteExpense removes an expense from the balance computation.
func (s *EventService) DeleteExpense(ctx context.Context, req *connect.Request[rpc.DeleteExpenseRequest]) (*connect.Response[rpc.DeleteExpenseResponse], error) {
	slog.Info("DeleteExpense request received", "event_id", req.Msg.EventID, "expense_id", req.Msg.ExpenseID)

	if _, _, err := s.member(ctx, req.Msg.EventID); err != nil {
		return nil, err
	}
	if err := s.ledger.DeleteExpense(ctx, req.Msg.EventID, req.Msg.ExpenseID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&rpc.DeleteExpenseResponse{}), nil
}

// GetBalances returns rounded balances and the simplified debts.
func (s *EventService) GetBalances(ctx context.Context, req *connect.Request[rpc.GetBalancesRequest]) (*connect.Response[rpc.GetBalancesResponse], error) {
	slog.Info("GetBalances request received", "event_id", req.Msg.EventID)

	if _, _, err := s.member(ctx, req.Msg.EventID); err != nil {
		return nil, err
	}
	ev, bals, err := s.ledger.Balances(ctx, req.Msg.EventID)
	if err != nil {
		return nil, toConnectError(err)
	}

	debts := calculator.SimplifyDebts(bals)
	debtViews := make([]rpc.DebtView, len(debts))
	for i, d := range debts {
		debtViews[i] = rpc.DebtView{
			From:      d.From,
			To:        d.To,
			Amount:    d.Amount,
			Formatted: currency.Format(d.Amount, ev.Currency),
		}
	}

	slog.Info("GetBalances successful", "event_id", ev.ID, "debts", len(debts))
	return connect.NewResponse(&rpc.GetBalancesResponse{
		Currency: ev.Currency,
		Balances: balanceViews(ev, bals),
		Debts:    debtViews,
		Settled:  bals.Settled(),
	}), nil
}

// ListSettlements returns the event's transfer history, newest first.
func (s *EventService) ListSettlements(ctx context.Context, req *connect.Request[rpc.ListSettlementsRequest]) (*connect.Response[rpc.ListSettlementsResponse], error) {
	slog.Info("ListSettlements request received", "event_id", req.Msg.EventID)

	if _, _, err := s.member(ctx, req.Msg.EventID); err != nil {
		return nil, err
	}
	records, err := s.settlements.ListSettlements(ctx, req.Msg.EventID)
	if err != nil {
		slog.Error("ListSettlements failed", "event_id", req.Msg.EventID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if records == nil {
		records = []*models.SettlementRecord{}
	}
	return connect.NewResponse(&rpc.ListSettlementsResponse{Settlements: records}), nil
}

// GetSyncStatus reports the durable-store write queue.
func (s *EventService) GetSyncStatus(ctx context.Context, req *connect.Request[rpc.GetSyncStatusRequest]) (*connect.Response[rpc.GetSyncStatusResponse], error) {
	if _, err := callerID(ctx); err != nil {
		return nil, err
	}
	st := s.ledger.SyncStatus()
	return connect.NewResponse(&rpc.GetSyncStatusResponse{
		Pending:   st.Pending,
		Dropped:   st.Dropped,
		LastSync:  st.LastSync,
		LastError: st.LastError,
	}), nil
}

func balanceViews(ev *models.Event, bals calculator.Balances) []rpc.BalanceView {
	rounded := bals.Rounded()
	views := make([]rpc.BalanceView, len(rounded))
	for i, b := range rounded {
		name := b.ParticipantID
		if p := ev.Participant(b.ParticipantID); p != nil {
			name = p.Name()
		}
		views[i] = rpc.BalanceView{
			ParticipantID: b.ParticipantID,
			DisplayName:   name,
			Net:           b.Net,
			Paid:          b.Paid,
			Owed:          b.Owed,
			Formatted:     currency.Format(b.Net, ev.Currency),
		}
	}
	return views
}
