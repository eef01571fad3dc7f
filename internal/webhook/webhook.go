// Package webhook is the ingestion endpoint the agent runtime calls to report
// heartbeats, create and update tasks, and post comments.
//
// Requests carry {sessionKey, action, payload}. The bearer check runs before the
// body is read; the action is looked up in a closed dispatch table of typed handlers.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/internal/otel"
)

// Action names a webhook operation.
type Action string

const (
	ActionHeartbeat     Action = "heartbeat"
	ActionTaskCreate    Action = "task.create"
	ActionTaskUpdate    Action = "task.update"
	ActionMessageCreate Action = "message.create"
)

// Actions lists every supported action.
var Actions = []Action{ActionHeartbeat, ActionTaskCreate, ActionTaskUpdate, ActionMessageCreate}

// Envelope is the request body.
type Envelope struct {
	SessionKey string          `json:"sessionKey"`
	Action     Action          `json:"action"`
	Payload    json.RawMessage `json:"payload"`
}

// TaskCreatePayload is the payload of task.create.
type TaskCreatePayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	AssigneeIDs []string `json:"assigneeIds"`
	Priority    string   `json:"priority"`
}

// TaskUpdatePayload is the payload of task.update.
type TaskUpdatePayload struct {
	TaskID  string `json:"taskId"`
	Status  string `json:"status"`
	AgentID string `json:"agentId"`
}

// MessageCreatePayload is the payload of message.create.
type MessageCreatePayload struct {
	TaskID  string `json:"taskId"`
	AgentID string `json:"agentId"`
	Content string `json:"content"`
}

// response is a status code plus JSON body.
type response struct {
	code int
	body any
}

func ok(body map[string]any) response {
	body["success"] = true
	return response{http.StatusOK, body}
}

func fail(code int, msg string) response {
	return response{code, map[string]any{"error": msg}}
}

var (
	errUnauthorized  = fail(http.StatusUnauthorized, "Unauthorized")
	errInvalidJSON   = fail(http.StatusBadRequest, "Invalid JSON")
	errUnknownAction = fail(http.StatusBadRequest, "Unknown action")
	errAgentNotFound = fail(http.StatusNotFound, "Agent not found")
	errTaskNotFound  = fail(http.StatusNotFound, "Task not found")
	errInternal      = fail(http.StatusInternalServerError, "Internal error")
)

type actionHandler func(ctx context.Context, h *Handler, env Envelope) response

var dispatch = map[Action]actionHandler{
	ActionHeartbeat:     handleHeartbeat,
	ActionTaskCreate:    handleTaskCreate,
	ActionTaskUpdate:    handleTaskUpdate,
	ActionMessageCreate: handleMessageCreate,
}

// Handler serves POST /webhook.
type Handler struct {
	Service *mission.Service
	Auth    Authenticator // nil means BearerPresence
	Logger  *slog.Logger
}

// New returns a handler with the default bearer-presence check.
func New(svc *mission.Service) *Handler {
	return &Handler{Service: svc, Auth: BearerPresence{}, Logger: slog.Default()}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auth := h.Auth
	if auth == nil {
		auth = BearerPresence{}
	}
	token, present := bearerToken(r)
	if !present || auth.Authenticate(token) != nil {
		otel.RecordWebhook(ctx, "", "unauthorized")
		write(w, errUnauthorized)
		return
	}

	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		otel.RecordWebhook(ctx, "", "invalid_json")
		write(w, errInvalidJSON)
		return
	}
	fn, known := dispatch[env.Action]
	if !known {
		otel.RecordWebhook(ctx, string(env.Action), "unknown_action")
		write(w, errUnknownAction)
		return
	}
	resp := fn(ctx, h, env)
	result := "ok"
	if resp.code != http.StatusOK {
		result = http.StatusText(resp.code)
	}
	otel.RecordWebhook(ctx, string(env.Action), result)
	h.logger().Debug("webhook", "action", env.Action, "session_key", env.SessionKey, "status", resp.code)
	write(w, resp)
}

func write(w http.ResponseWriter, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(resp.body)
}

// decodePayload unmarshals env.Payload into v; a missing payload leaves v zero.
func decodePayload(env Envelope, v any) bool {
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return true
	}
	return json.Unmarshal(env.Payload, v) == nil
}

// serviceError maps a mission error to a response; notFound is used for ErrNotFound.
func (h *Handler) serviceError(env Envelope, err error, notFound response) response {
	switch {
	case errors.Is(err, mission.ErrNotFound):
		return notFound
	case errors.Is(err, mission.ErrValidation):
		return fail(http.StatusBadRequest, err.Error())
	case errors.Is(err, mission.ErrInvalidTransition):
		return fail(http.StatusConflict, err.Error())
	}
	h.logger().Error("webhook action failed", "action", env.Action, "session_key", env.SessionKey, "err", err)
	return errInternal
}

// actingAgent returns explicit when set, else the agent behind the envelope's session key.
func (h *Handler) actingAgent(ctx context.Context, env Envelope, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env.SessionKey == "" {
		return "", mission.ErrNotFound
	}
	a, err := h.Service.Store.GetAgentBySessionKey(ctx, env.SessionKey)
	if err != nil {
		return "", err
	}
	return a.ID, nil
}

func handleHeartbeat(ctx context.Context, h *Handler, env Envelope) response {
	id, err := h.Service.Heartbeat(ctx, env.SessionKey)
	if err != nil {
		return h.serviceError(env, err, errAgentNotFound)
	}
	return ok(map[string]any{"agentId": id})
}

func handleTaskCreate(ctx context.Context, h *Handler, env Envelope) response {
	var p TaskCreatePayload
	if !decodePayload(env, &p) {
		return errInvalidJSON
	}
	t, err := h.Service.CreateTask(ctx, mission.TaskInput{
		Title:       p.Title,
		Description: p.Description,
		Priority:    p.Priority,
		AssigneeIDs: p.AssigneeIDs,
	})
	if err != nil && t.ID == "" {
		return h.serviceError(env, err, errTaskNotFound)
	}
	if err != nil {
		h.logger().Error("task created without activity", "task_id", t.ID, "err", err)
		return errInternal
	}
	return ok(map[string]any{"taskId": t.ID})
}

func handleTaskUpdate(ctx context.Context, h *Handler, env Envelope) response {
	var p TaskUpdatePayload
	if !decodePayload(env, &p) {
		return errInvalidJSON
	}
	if _, err := h.Service.Store.GetTask(ctx, p.TaskID); err != nil {
		return h.serviceError(env, err, errTaskNotFound)
	}
	agentID, err := h.actingAgent(ctx, env, p.AgentID)
	if err != nil {
		return h.serviceError(env, err, errAgentNotFound)
	}
	if _, err := h.Service.UpdateTaskStatus(ctx, p.TaskID, p.Status, agentID); err != nil {
		return h.serviceError(env, err, errTaskNotFound)
	}
	return ok(map[string]any{})
}

func handleMessageCreate(ctx context.Context, h *Handler, env Envelope) response {
	var p MessageCreatePayload
	if !decodePayload(env, &p) {
		return errInvalidJSON
	}
	if _, err := h.Service.Store.GetTask(ctx, p.TaskID); err != nil {
		return h.serviceError(env, err, errTaskNotFound)
	}
	agentID, err := h.actingAgent(ctx, env, p.AgentID)
	if err != nil {
		return h.serviceError(env, err, errAgentNotFound)
	}
	m, err := h.Service.PostMessage(ctx, p.TaskID, agentID, p.Content)
	if err != nil && m.ID == "" {
		return h.serviceError(env, err, errTaskNotFound)
	}
	if err != nil {
		h.logger().Error("message stored without activity", "message_id", m.ID, "err", err)
		return errInternal
	}
	return ok(map[string]any{"messageId": m.ID})
}
