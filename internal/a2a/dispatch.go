package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"bindu/internal/authz"
	"bindu/internal/logger"
	"bindu/internal/metrics"
	"bindu/internal/middleware"
	"bindu/internal/store"
)

// Server is the JSON-RPC 2.0 HTTP endpoint: a single POST handler backed
// by a method registry, generalized from the teacher's one-handler-per-
// REST-verb layout (handlers.go) into the wire protocol spec §6 names.
type Server struct {
	manager *Manager
	metrics *metrics.Collector
	gate    authz.PolicyGate
	log     *slog.Logger
}

// ServerOption configures optional Server behavior.
type ServerOption func(*Server)

// WithPolicyGate gates every RPC method behind gate.Check, keyed on the
// caller's DID (injected by middleware.Authenticator) and the method name
// as the action. A nil gate (the default) allows every request, matching
// the "business rules are a host concern" boundary of spec.md §1.
func WithPolicyGate(gate authz.PolicyGate) ServerOption {
	return func(s *Server) { s.gate = gate }
}

// NewServer constructs the JSON-RPC dispatcher. collector may be nil.
func NewServer(manager *Manager, collector *metrics.Collector, opts ...ServerOption) *Server {
	s := &Server{manager: manager, metrics: collector, log: logger.WithComponent("a2a.rpc")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP implements the single "/" JSON-RPC endpoint (spec §6).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		s.writeError(w, nil, errInvalidRequest("failed to read request body"))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, nil, errJSONParse(err))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.writeError(w, req.ID, errInvalidRequest("expected jsonrpc 2.0 envelope with a method"))
		return
	}

	if s.gate != nil {
		did := middleware.GetDID(r.Context())
		gateReq := authz.Request{
			Principal: did,
			Action:    req.Method,
			Resource:  resourceFromParams(req.Params),
			Context:   paramsToContext(req.Params),
		}
		if err := s.gate.Check(r.Context(), gateReq); err != nil {
			s.writeError(w, req.ID, errInvalidToken(err))
			return
		}
	}

	result, rpcErr := s.dispatch(r.Context(), req.Method, req.Params)

	if s.metrics != nil {
		var methodErr error
		if rpcErr != nil {
			methodErr = errors.New(rpcErr.Message)
		}
		s.metrics.RecordRPCMethod(req.Method, methodErr)
	}

	if rpcErr != nil {
		s.writeError(w, req.ID, rpcErr)
		return
	}
	s.writeResult(w, req.ID, result)
}

// dispatch routes method to the corresponding Manager operation,
// decoding params into the method's own request shape.
func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (any, *RPCError) {
	switch method {
	case "message/send":
		return s.handleSendMessage(ctx, params)
	case "tasks/get":
		return s.handleGetTask(ctx, params)
	case "tasks/cancel":
		return s.handleCancelTask(ctx, params)
	case "tasks/list":
		return s.handleListTasks(ctx, params)
	case "tasks/feedback":
		return s.handleFeedback(ctx, params)
	case "contexts/list":
		return s.handleListContexts(ctx)
	case "contexts/clear":
		return s.handleClearContext(ctx, params)
	case "tasks/pushNotification/set":
		return s.handleSetPushNotification(ctx, params)
	default:
		return nil, errMethodNotFound(method)
	}
}

// resourceFromParams extracts the task_id or context_id a method's params
// name, if any, so the policy gate can evaluate against the actual
// resource the request targets rather than an empty placeholder. Every
// method's params struct below uses these same field names, so a single
// generic decode covers all of them without a per-method switch.
func resourceFromParams(params json.RawMessage) string {
	if len(params) == 0 {
		return ""
	}
	var p struct {
		TaskID    string `json:"task_id"`
		ContextID string `json:"context_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return ""
	}
	if p.TaskID != "" {
		return p.TaskID
	}
	return p.ContextID
}

// paramsToContext decodes a method's raw params into a generic attribute
// map, so the Cedar resource entity built in pdp.go carries the fields
// the caller actually sent (e.g. a tasks/list status filter, a
// feedback payload) rather than an always-empty record — a policy can
// then condition on `resource.status == "working"` and similar.
func paramsToContext(params json.RawMessage) map[string]any {
	if len(params) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(params, &m); err != nil {
		return nil
	}
	return m
}

func decodeParams(params json.RawMessage, dest any) *RPCError {
	if len(params) == 0 {
		return errInvalidParams(errors.New("params required"))
	}
	if err := json.Unmarshal(params, dest); err != nil {
		return errInvalidParams(err)
	}
	return nil
}

type sendMessageParams struct {
	Message   store.Message `json:"message"`
	ContextID string        `json:"context_id"`
	TaskID    string        `json:"task_id"`
}

func (s *Server) handleSendMessage(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var p sendMessageParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p.Message.Content) == 0 {
		return nil, errInvalidParams(errors.New("message.content is required"))
	}
	return s.manager.SendMessage(ctx, p.ContextID, p.TaskID, p.Message)
}

type taskIDParams struct {
	TaskID        string `json:"task_id"`
	HistoryLength int    `json:"history_length"`
}

func (s *Server) handleGetTask(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var p taskIDParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.TaskID == "" {
		return nil, errInvalidParams(errors.New("task_id is required"))
	}
	return s.manager.GetTask(ctx, p.TaskID, p.HistoryLength)
}

func (s *Server) handleCancelTask(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var p taskIDParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.TaskID == "" {
		return nil, errInvalidParams(errors.New("task_id is required"))
	}
	return s.manager.CancelTask(ctx, p.TaskID)
}

type listTasksParams struct {
	Status    string `json:"status"`
	ContextID string `json:"context_id"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
}

func (s *Server) handleListTasks(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var p listTasksParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, errInvalidParams(err)
		}
	}
	filter := store.ListFilter{
		Status:    store.TaskState(p.Status),
		ContextID: p.ContextID,
		Limit:     p.Limit,
		Offset:    p.Offset,
	}
	return s.manager.ListTasks(ctx, filter)
}

type feedbackParams struct {
	TaskID  string         `json:"task_id"`
	Payload map[string]any `json:"payload"`
}

func (s *Server) handleFeedback(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var p feedbackParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.TaskID == "" {
		return nil, errInvalidParams(errors.New("task_id is required"))
	}
	return s.manager.SaveFeedback(ctx, p.TaskID, p.Payload)
}

func (s *Server) handleListContexts(ctx context.Context) (any, *RPCError) {
	return s.manager.ListContexts(ctx)
}

type contextIDParams struct {
	ContextID string `json:"context_id"`
}

func (s *Server) handleClearContext(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var p contextIDParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.ContextID == "" {
		return nil, errInvalidParams(errors.New("context_id is required"))
	}
	if rpcErr := s.manager.ClearContext(ctx, p.ContextID); rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]bool{"cleared": true}, nil
}

type setPushNotificationParams struct {
	TaskID string              `json:"task_id"`
	Config store.WebhookConfig `json:"config"`
}

func (s *Server) handleSetPushNotification(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var p setPushNotificationParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.TaskID == "" || p.Config.URL == "" {
		return nil, errInvalidParams(errors.New("task_id and config.url are required"))
	}
	if rpcErr := s.manager.SetPushNotification(ctx, p.TaskID, p.Config); rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]bool{"registered": true}, nil
}

func (s *Server) writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(w http.ResponseWriter, id json.RawMessage, rpcErr *RPCError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // JSON-RPC errors travel in the envelope, not the HTTP status
	_ = json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: id, Error: rpcErr})
}
