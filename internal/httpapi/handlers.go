package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ankittk/missioncontrol/internal/mission"
)

type api struct {
	svc *mission.Service
	log *slog.Logger
}

func (a *api) routes(mux *http.ServeMux) {
	// --- Agents ---
	mux.HandleFunc("GET /api/agents", a.listAgents)
	mux.HandleFunc("POST /api/agents", a.registerAgent)
	mux.HandleFunc("POST /api/agents/report", a.reportStatus)
	mux.HandleFunc("GET /api/agents/{id}", a.getAgent)
	mux.HandleFunc("POST /api/agents/{id}/status", a.updateAgentStatus)
	mux.HandleFunc("GET /api/agents/{id}/activities", a.agentActivities)

	// --- Tasks ---
	mux.HandleFunc("GET /api/tasks", a.listTasks)
	mux.HandleFunc("POST /api/tasks", a.createTask)
	mux.HandleFunc("GET /api/tasks/{id}", a.getTask)
	mux.HandleFunc("POST /api/tasks/{id}/status", a.updateTaskStatus)
	mux.HandleFunc("POST /api/tasks/{id}/assign", a.assignTask)
	mux.HandleFunc("GET /api/tasks/{id}/messages", a.listMessages)
	mux.HandleFunc("POST /api/tasks/{id}/messages", a.postMessage)

	// --- Feed, documents, notifications, stats ---
	mux.HandleFunc("GET /api/activities", a.listActivities)
	mux.HandleFunc("GET /api/documents", a.listDocuments)
	mux.HandleFunc("POST /api/documents", a.createDocument)
	mux.HandleFunc("GET /api/documents/{id}", a.getDocument)
	mux.HandleFunc("PATCH /api/documents/{id}", a.updateDocument)
	mux.HandleFunc("GET /api/notifications", a.listNotifications)
	mux.HandleFunc("GET /api/stats", a.stats)
}

// fail maps domain errors to status codes; anything unexpected is logged and returned as 500.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, mission.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, mission.ErrValidation):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, mission.ErrInvalidTransition):
		writeJSONError(w, http.StatusConflict, err.Error())
	default:
		a.log.Error("api request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func (a *api) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := a.svc.ListAgents(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, agents)
}

func (a *api) registerAgent(w http.ResponseWriter, r *http.Request) {
	var body mission.AgentInput
	if !decode(w, r, &body) {
		return
	}
	agent, err := a.svc.RegisterAgent(r.Context(), body)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, agent)
}

func (a *api) reportStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionKey string `json:"sessionKey"`
		Status     string `json:"status"`
		Message    string `json:"message"`
	}
	if !decode(w, r, &body) {
		return
	}
	agent, err := a.svc.ReportStatus(r.Context(), body.SessionKey, body.Status, body.Message)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"success": true, "agentId": agent.ID})
}

func (a *api) getAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := a.svc.GetAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, agent)
}

func (a *api) updateAgentStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status        string  `json:"status"`
		CurrentTaskID *string `json:"currentTaskId"`
	}
	if !decode(w, r, &body) {
		return
	}
	agent, err := a.svc.UpdateAgentStatus(r.Context(), r.PathValue("id"), body.Status, body.CurrentTaskID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, agent)
}

func (a *api) agentActivities(w http.ResponseWriter, r *http.Request) {
	acts, err := a.svc.ListAgentActivities(r.Context(), r.PathValue("id"), queryInt(r, "limit"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, acts)
}

func (a *api) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tasks, err := a.svc.ListTasks(r.Context(), mission.TaskQuery{
		Status:     q.Get("status"),
		AssigneeID: q.Get("assigneeId"),
		Limit:      queryInt(r, "limit"),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, tasks)
}

func (a *api) createTask(w http.ResponseWriter, r *http.Request) {
	var body mission.TaskInput
	if !decode(w, r, &body) {
		return
	}
	task, err := a.svc.CreateTask(r.Context(), body)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, task)
}

func (a *api) getTask(w http.ResponseWriter, r *http.Request) {
	detail, err := a.svc.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, detail)
}

func (a *api) updateTaskStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status  string `json:"status"`
		AgentID string `json:"agentId"`
	}
	if !decode(w, r, &body) {
		return
	}
	task, err := a.svc.UpdateTaskStatus(r.Context(), r.PathValue("id"), body.Status, body.AgentID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, task)
}

func (a *api) assignTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AssigneeIDs []string `json:"assigneeIds"`
		AgentID     string   `json:"agentId"`
	}
	if !decode(w, r, &body) {
		return
	}
	task, err := a.svc.AssignTask(r.Context(), r.PathValue("id"), body.AssigneeIDs, body.AgentID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, task)
}

func (a *api) listMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := a.svc.ListMessages(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, msgs)
}

func (a *api) postMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FromAgentID string `json:"fromAgentId"`
		Content     string `json:"content"`
	}
	if !decode(w, r, &body) {
		return
	}
	msg, err := a.svc.PostMessage(r.Context(), r.PathValue("id"), body.FromAgentID, body.Content)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, msg)
}

func (a *api) listActivities(w http.ResponseWriter, r *http.Request) {
	acts, err := a.svc.ListActivities(r.Context(), queryInt(r, "limit"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, acts)
}

func (a *api) listDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	docs, err := a.svc.ListDocuments(r.Context(), mission.DocumentQuery{TaskID: q.Get("taskId"), Type: q.Get("type")})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, docs)
}

func (a *api) createDocument(w http.ResponseWriter, r *http.Request) {
	var body mission.DocumentInput
	if !decode(w, r, &body) {
		return
	}
	doc, err := a.svc.CreateDocument(r.Context(), body)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, doc)
}

func (a *api) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := a.svc.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, doc)
}

func (a *api) updateDocument(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title   *string `json:"title"`
		Content *string `json:"content"`
	}
	if !decode(w, r, &body) {
		return
	}
	doc, err := a.svc.UpdateDocument(r.Context(), r.PathValue("id"), body.Title, body.Content)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, doc)
}

func (a *api) listNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	undelivered, _ := strconv.ParseBool(q.Get("undelivered"))
	notes, err := a.svc.ListNotifications(r.Context(), mission.NotificationQuery{
		AgentID:         q.Get("agentId"),
		UndeliveredOnly: undelivered,
		Limit:           queryInt(r, "limit"),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, notes)
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, st)
}
