package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"linguachat/apperr"
	"linguachat/metrics"
	"linguachat/models"
	"linguachat/services"
)

// Operation names accepted by OperationHandler.
const (
	OpGetUsers       = "getUsers"
	OpGetMessages    = "getMessages"
	OpSendMessage    = "sendMessage"
	OpReactToMessage = "reactToMessage"
)

type OperationRequest struct {
	Operation string          `json:"operation"`
	Variables json.RawMessage `json:"variables,omitempty"`
}

type GetMessagesInput struct {
	From string `json:"from"`
}

type SendMessageInput struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

type ReactToMessageInput struct {
	UUID    string `json:"uuid"`
	Content string `json:"content"`
}

type OperationHandler struct {
	users     *services.UserService
	messages  *services.MessageService
	reactions *services.ReactionService
	metrics   *metrics.Metrics
}

func NewOperationHandler(u *services.UserService, m *services.MessageService, r *services.ReactionService, mt *metrics.Metrics) *OperationHandler {
	return &OperationHandler{users: u, messages: m, reactions: r, metrics: mt}
}

func (h *OperationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req OperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, "Invalid JSON", "Bad request format", http.StatusBadRequest)
		return
	}

	data, err := h.dispatch(r.Context(), IdentityFrom(r.Context()), req)
	if err != nil {
		h.metrics.Operation(operationLabel(req.Operation), apperr.CodeOf(err))
		respondWithAppError(w, err)
		return
	}
	h.metrics.Operation(operationLabel(req.Operation), "OK")
	respondWithSuccess(w, data)
}

func (h *OperationHandler) dispatch(ctx context.Context, caller *models.Identity, req OperationRequest) (any, error) {
	switch req.Operation {
	case OpGetUsers:
		return h.users.ListUsers(ctx, caller)

	case OpGetMessages:
		var in GetMessagesInput
		if err := decodeVariables(req.Variables, &in); err != nil {
			return nil, err
		}
		return h.messages.List(ctx, caller, in.From)

	case OpSendMessage:
		var in SendMessageInput
		if err := decodeVariables(req.Variables, &in); err != nil {
			return nil, err
		}
		return h.messages.Send(ctx, caller, in.To, in.Content)

	case OpReactToMessage:
		var in ReactToMessageInput
		if err := decodeVariables(req.Variables, &in); err != nil {
			return nil, err
		}
		return h.reactions.React(ctx, caller, in.UUID, in.Content)

	default:
		return nil, apperr.Invalid("unknown operation " + req.Operation)
	}
}

// operationLabel keeps the metric label set closed; names come from the
// request body.
func operationLabel(name string) string {
	switch name {
	case OpGetUsers, OpGetMessages, OpSendMessage, OpReactToMessage:
		return name
	default:
		return "unknown"
	}
}

func decodeVariables(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Invalid("variables do not match the operation")
	}
	return nil
}
