package rpc

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

const (
	AuthServiceName  = "splitton.v1.AuthService"
	EventServiceName = "splitton.v1.EventService"
)

// Procedure paths.
const (
	AuthServiceRegisterProcedure = "/splitton.v1.AuthService/Register"
	AuthServiceLoginProcedure    = "/splitton.v1.AuthService/Login"

	EventServiceCreateEventProcedure           = "/splitton.v1.EventService/CreateEvent"
	EventServiceGetEventProcedure              = "/splitton.v1.EventService/GetEvent"
	EventServiceDeleteEventProcedure           = "/splitton.v1.EventService/DeleteEvent"
	EventServiceJoinEventProcedure             = "/splitton.v1.EventService/JoinEvent"
	EventServiceLeaveEventProcedure            = "/splitton.v1.EventService/LeaveEvent"
	EventServiceSetWalletAddressProcedure      = "/splitton.v1.EventService/SetWalletAddress"
	EventServiceAddExpenseProcedure            = "/splitton.v1.EventService/AddExpense"
	EventServiceEditExpenseProcedure           = "/splitton.v1.EventService/EditExpense"
	EventServiceDeleteExpenseProcedure         = "/splitton.v1.EventService/DeleteExpense"
	EventServiceGetBalancesProcedure           = "/splitton.v1.EventService/GetBalances"
	EventServiceGetSettlementPlanProcedure     = "/splitton.v1.EventService/GetSettlementPlan"
	EventServiceExecuteSettlementPlanProcedure = "/splitton.v1.EventService/ExecuteSettlementPlan"
	EventServiceListSettlementsProcedure       = "/splitton.v1.EventService/ListSettlements"
	EventServiceGetSyncStatusProcedure         = "/splitton.v1.EventService/GetSyncStatus"
)

// AuthServiceHandler is implemented by the auth service.
type AuthServiceHandler interface {
	Register(context.Context, *connect.Request[RegisterRequest]) (*connect.Response[RegisterResponse], error)
	Login(context.Context, *connect.Request[LoginRequest]) (*connect.Response[LoginResponse], error)
}

// EventServiceHandler is implemented by the event service.
type EventServiceHandler interface {
	CreateEvent(context.Context, *connect.Request[CreateEventRequest]) (*connect.Response[EventResponse], error)
	GetEvent(context.Context, *connect.Request[GetEventRequest]) (*connect.Response[GetEventResponse], error)
	DeleteEvent(context.Context, *connect.Request[DeleteEventRequest]) (*connect.Response[DeleteEventResponse], error)
	JoinEvent(context.Context, *connect.Request[JoinEventRequest]) (*connect.Response[EventResponse], error)
	LeaveEvent(context.Context, *connect.Request[LeaveEventRequest]) (*connect.Response[EventResponse], error)
	SetWalletAddress(context.Context, *connect.Request[SetWalletAddressRequest]) (*connect.Response[EventResponse], error)
	AddExpense(context.Context, *connect.Request[AddExpenseRequest]) (*connect.Response[ExpenseResponse], error)
	EditExpense(context.Context, *connect.Request[EditExpenseRequest]) (*connect.Response[ExpenseResponse], error)
	DeleteExpense(context.Context, *connect.Request[DeleteExpenseRequest]) (*connect.Response[DeleteExpenseResponse], error)
	GetBalances(context.Context, *connect.Request[GetBalancesRequest]) (*connect.Response[GetBalancesResponse], error)
	GetSettlementPlan(context.Context, *connect.Request[GetSettlementPlanRequest]) (*connect.Response[GetSettlementPlanResponse], error)
	ExecuteSettlementPlan(context.Context, *connect.Request[ExecuteSettlementPlanRequest], *connect.ServerStream[ExecuteSettlementPlanResponse]) error
	ListSettlements(context.Context, *connect.Request[ListSettlementsRequest]) (*connect.Response[ListSettlementsResponse], error)
	GetSyncStatus(context.Context, *connect.Request[GetSyncStatusRequest]) (*connect.Response[GetSyncStatusResponse], error)
}

func handlerOptions(opts []connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
}

// router dispatches on the full procedure path.
type router map[string]http.Handler

func (rt router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h, ok := rt[r.URL.Path]; ok {
		h.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

// NewAuthServiceHandler builds an HTTP handler for svc and returns the path
// prefix to mount it on.
func NewAuthServiceHandler(svc AuthServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	return "/" + AuthServiceName + "/", router{
		AuthServiceRegisterProcedure: connect.NewUnaryHandler(AuthServiceRegisterProcedure, svc.Register, opts...),
		AuthServiceLoginProcedure:    connect.NewUnaryHandler(AuthServiceLoginProcedure, svc.Login, opts...),
	}
}

// NewEventServiceHandler builds an HTTP handler for svc and returns the path
// prefix to mount it on.
func NewEventServiceHandler(svc EventServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	return "/" + EventServiceName + "/", router{
		EventServiceCreateEventProcedure:           connect.NewUnaryHandler(EventServiceCreateEventProcedure, svc.CreateEvent, opts...),
		EventServiceGetEventProcedure:              connect.NewUnaryHandler(EventServiceGetEventProcedure, svc.GetEvent, opts...),
		EventServiceDeleteEventProcedure:           connect.NewUnaryHandler(EventServiceDeleteEventProcedure, svc.DeleteEvent, opts...),
		EventServiceJoinEventProcedure:             connect.NewUnaryHandler(EventServiceJoinEventProcedure, svc.JoinEvent, opts...),
		EventServiceLeaveEventProcedure:            connect.NewUnaryHandler(EventServiceLeaveEventProcedure, svc.LeaveEvent, opts...),
		EventServiceSetWalletAddressProcedure:      connect.NewUnaryHandler(EventServiceSetWalletAddressProcedure, svc.SetWalletAddress, opts...),
		EventServiceAddExpenseProcedure:            connect.NewUnaryHandler(EventServiceAddExpenseProcedure, svc.AddExpense, opts...),
		EventServiceEditExpenseProcedure:           connect.NewUnaryHandler(EventServiceEditExpenseProcedure, svc.EditExpense, opts...),
		EventServiceDeleteExpenseProcedure:         connect.NewUnaryHandler(EventServiceDeleteExpenseProcedure, svc.DeleteExpense, opts...),
		EventServiceGetBalancesProcedure:           connect.NewUnaryHandler(EventServiceGetBalancesProcedure, svc.GetBalances, opts...),
		EventServiceGetSettlementPlanProcedure:     connect.NewUnaryHandler(EventServiceGetSettlementPlanProcedure, svc.GetSettlementPlan, opts...),
		EventServiceExecuteSettlementPlanProcedure: connect.NewServerStreamHandler(EventServiceExecuteSettlementPlanProcedure, svc.ExecuteSettlementPlan, opts...),
		EventServiceListSettlementsProcedure:       connect.NewUnaryHandler(EventServiceListSettlementsProcedure, svc.ListSettlements, opts...),
		EventServiceGetSyncStatusProcedure:         connect.NewUnaryHandler(EventServiceGetSyncStatusProcedure, svc.GetSyncStatus, opts...),
	}
}

func clientOptions(opts []connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
}

// AuthServiceClient calls AuthService.
type AuthServiceClient struct {
	register *connect.Client[RegisterRequest, RegisterResponse]
	login    *connect.Client[LoginRequest, LoginResponse]
}

func NewAuthServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AuthServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &AuthServiceClient{
		register: connect.NewClient[RegisterRequest, RegisterResponse](httpClient, baseURL+AuthServiceRegisterProcedure, opts...),
		login:    connect.NewClient[LoginRequest, LoginResponse](httpClient, baseURL+AuthServiceLoginProcedure, opts...),
	}
}

func (c *AuthServiceClient) Register(ctx context.Context, req *connect.Request[RegisterRequest]) (*connect.Response[RegisterResponse], error) {
	return c.register.CallUnary(ctx, req)
}

func (c *AuthServiceClient) Login(ctx context.Context, req *connect.Request[LoginRequest]) (*connect.Response[LoginResponse], error) {
	return c.login.CallUnary(ctx, req)
}

// EventServiceClient calls EventService.
type EventServiceClient struct {
	createEvent           *connect.Client[CreateEventRequest, EventResponse]
	getEvent              *connect.Client[GetEventRequest, GetEventResponse]
	deleteEvent           *connect.Client[DeleteEventRequest, DeleteEventResponse]
	joinEvent             *connect.Client[JoinEventRequest, EventResponse]
	leaveEvent            *connect.Client[LeaveEventRequest, EventResponse]
	setWalletAddress      *connect.Client[SetWalletAddressRequest, EventResponse]
	addExpense            *connect.Client[AddExpenseRequest, ExpenseResponse]
	editExpense           *connect.Client[EditExpenseRequest, ExpenseResponse]
	deleteExpense         *connect.Client[DeleteExpenseRequest, DeleteExpenseResponse]
	getBalances           *connect.Client[GetBalancesRequest, GetBalancesResponse]
	getSettlementPlan     *connect.Client[GetSettlementPlanRequest, GetSettlementPlanResponse]
	executeSettlementPlan *connect.Client[ExecuteSettlementPlanRequest, ExecuteSettlementPlanResponse]
	listSettlements       *connect.Client[ListSettlementsRequest, ListSettlementsResponse]
	getSyncStatus         *connect.Client[GetSyncStatusRequest, GetSyncStatusResponse]
}

func NewEventServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *EventServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &EventServiceClient{
		createEvent:           connect.NewClient[CreateEventRequest, EventResponse](httpClient, baseURL+EventServiceCreateEventProcedure, opts...),
		getEvent:              connect.NewClient[GetEventRequest, GetEventResponse](httpClient, baseURL+EventServiceGetEventProcedure, opts...),
		deleteEvent:           connect.NewClient[DeleteEventRequest, DeleteEventResponse](httpClient, baseURL+EventServiceDeleteEventProcedure, opts...),
		joinEvent:             connect.NewClient[JoinEventRequest, EventResponse](httpClient, baseURL+EventServiceJoinEventProcedure, opts...),
		leaveEvent:            connect.NewClient[LeaveEventRequest, EventResponse](httpClient, baseURL+EventServiceLeaveEventProcedure, opts...),
		setWalletAddress:      connect.NewClient[SetWalletAddressRequest, EventResponse](httpClient, baseURL+EventServiceSetWalletAddressProcedure, opts...),
		addExpense:            connect.NewClient[AddExpenseRequest, ExpenseResponse](httpClient, baseURL+EventServiceAddExpenseProcedure, opts...),
		editExpense:           connect.NewClient[EditExpenseRequest, ExpenseResponse](httpClient, baseURL+EventServiceEditExpenseProcedure, opts...),
		deleteExpense:         connect.NewClient[DeleteExpenseRequest, DeleteExpenseResponse](httpClient, baseURL+EventServiceDeleteExpenseProcedure, opts...),
		getBalances:           connect.NewClient[GetBalancesRequest, GetBalancesResponse](httpClient, baseURL+EventServiceGetBalancesProcedure, opts...),
		getSettlementPlan:     connect.NewClient[GetSettlementPlanRequest, GetSettlementPlanResponse](httpClient, baseURL+EventServiceGetSettlementPlanProcedure, opts...),
		executeSettlementPlan: connect.NewClient[ExecuteSettlementPlanRequest, ExecuteSettlementPlanResponse](httpClient, baseURL+EventServiceExecuteSettlementPlanProcedure, opts...),
		listSettlements:       connect.NewClient[ListSettlementsRequest, ListSettlementsResponse](httpClient, baseURL+EventServiceListSettlementsProcedure, opts...),
		getSyncStatus:         connect.NewClient[GetSyncStatusRequest, GetSyncStatusResponse](httpClient, baseURL+EventServiceGetSyncStatusProcedure, opts...),
	}
}

func (c *EventServiceClient) CreateEvent(ctx context.Context, req *connect.Request[CreateEventRequest]) (*connect.Response[EventResponse], error) {
	return c.createEvent.CallUnary(ctx, req)
}

func (c *EventServiceClient) GetEvent(ctx context.Context, req *connect.Request[GetEventRequest]) (*connect.Response[GetEventResponse], error) {
	return c.getEvent.CallUnary(ctx, req)
}

func (c *EventServiceClient) DeleteEvent(ctx context.Context, req *connect.Request[DeleteEventRequest]) (*connect.Response[DeleteEventResponse], error) {
	return c.deleteEvent.CallUnary(ctx, req)
}

func (c *EventServiceClient) JoinEvent(ctx context.Context, req *connect.Request[JoinEventRequest]) (*connect.Response[EventResponse], error) {
	return c.joinEvent.CallUnary(ctx, req)
}

func (c *EventServiceClient) LeaveEvent(ctx context.Context, req *connect.Request[LeaveEventRequest]) (*connect.Response[EventResponse], error) {
	return c.leaveEvent.CallUnary(ctx, req)
}

func (c *EventServiceClient) SetWalletAddress(ctx context.Context, req *connect.Request[SetWalletAddressRequest]) (*connect.Response[EventResponse], error) {
	return c.setWalletAddress.CallUnary(ctx, req)
}

func (c *EventServiceClient) AddExpense(ctx context.Context, req *connect.Request[AddExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	return c.addExpense.CallUnary(ctx, req)
}

func (c *EventServiceClient) EditExpense(ctx context.Context, req *connect.Request[EditExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	return c.editExpense.CallUnary(ctx, req)
}

func (c *EventServiceClient) DeleteExpense(ctx context.Context, req *connect.Request[DeleteExpenseRequest]) (*connect.Response[DeleteExpenseResponse], error) {
	return c.deleteExpense.CallUnary(ctx, req)
}

func (c *EventServiceClient) GetBalances(ctx context.Context, req *connect.Request[GetBalancesRequest]) (*connect.Response[GetBalancesResponse], error) {
	return c.getBalances.CallUnary(ctx, req)
}

func (c *EventServiceClient) GetSettlementPlan(ctx context.Context, req *connect.Request[GetSettlementPlanRequest]) (*connect.Response[GetSettlementPlanResponse], error) {
	return c.getSettlementPlan.CallUnary(ctx, req)
}

func (c *EventServiceClient) ExecuteSettlementPlan(ctx context.Context, req *connect.Request[ExecuteSettlementPlanRequest]) (*connect.ServerStreamForClient[ExecuteSettlementPlanResponse], error) {
	return c.executeSettlementPlan.CallServerStream(ctx, req)
}

func (c *EventServiceClient) ListSettlements(ctx context.Context, req *connect.Request[ListSettlementsRequest]) (*connect.Response[ListSettlementsResponse], error) {
	return c.listSettlements.CallUnary(ctx, req)
}

func (c *EventServiceClient) GetSyncStatus(ctx context.Context, req *connect.Request[GetSyncStatusRequest]) (*connect.Response[GetSyncStatusResponse], error) {
	return c.getSyncStatus.CallUnary(ctx, req)
}
