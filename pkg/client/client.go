// Package client provides a Go SDK for the Mission Control HTTP API and the runtime webhook.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ankittk/missioncontrol/pkg/models"
)

// ErrNotFound matches (errors.Is) any API error with status 404.
var ErrNotFound = errors.New("not found")

// APIError is returned for non-2xx responses.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api %s %s: %s", e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("api %s %s: status %d", e.Method, e.Path, e.StatusCode)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client calls the Mission Control HTTP API. It is safe for concurrent use.
type Client struct {
	BaseURL      string       // e.g. "http://localhost:3548"
	APIKey       string       // optional; sent as X-API-Key on /api routes
	WebhookToken string       // bearer token for /webhook
	HTTPClient   *http.Client // optional; nil uses http.DefaultClient
}

// New returns a client for the given base URL (e.g. "http://localhost:3548").
// APIKey is optional; when set, requests use the X-API-Key header.
func New(baseURL, apiKey string) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey}
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	return c.client().Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	return c.doJSONHeader(ctx, method, path, body, out, nil)
}

func (c *Client) doJSONHeader(ctx context.Context, method, path string, body, out any, header http.Header) error {
	resp, err := c.do(ctx, method, path, body, header)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: errBody.Error}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func withQuery(path string, q url.Values) string {
	if enc := q.Encode(); enc != "" {
		return path + "?" + enc
	}
	return path
}

// Health returns the /health response.
func (c *Client) Health(ctx context.Context) (models.Health, error) {
	var out models.Health
	err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// --- Agents ---

// AgentInput registers an agent.
type AgentInput struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	SessionKey  string `json:"sessionKey"`
	Emoji       string `json:"emoji,omitempty"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

// ListAgents returns agents, oldest first. status may be empty.
func (c *Client) ListAgents(ctx context.Context, status string) ([]models.Agent, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	var out []models.Agent
	err := c.doJSON(ctx, http.MethodGet, withQuery("/api/agents", q), nil, &out)
	return out, err
}

// GetAgent returns one agent.
func (c *Client) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var out models.Agent
	err := c.doJSON(ctx, http.MethodGet, "/api/agents/"+url.PathEscape(id), nil, &out)
	return &out, err
}

// RegisterAgent creates an idle agent.
func (c *Client) RegisterAgent(ctx context.Context, in AgentInput) (*models.Agent, error) {
	var out models.Agent
	err := c.doJSON(ctx, http.MethodPost, "/api/agents", in, &out)
	return &out, err
}

// UpdateAgentStatus sets an agent's status; a nil currentTaskID leaves the current task unchanged.
func (c *Client) UpdateAgentStatus(ctx context.Context, id, status string, currentTaskID *string) (*models.Agent, error) {
	body := map[string]any{"status": status}
	if currentTaskID != nil {
		body["currentTaskId"] = *currentTaskID
	}
	var out models.Agent
	err := c.doJSON(ctx, http.MethodPost, "/api/agents/"+url.PathEscape(id)+"/status", body, &out)
	return &out, err
}

// ReportStatus reports status by session key, creating the agent if unknown. Returns the agent id.
func (c *Client) ReportStatus(ctx context.Context, sessionKey, status, message string) (string, error) {
	var out struct {
		AgentID string `json:"agentId"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/agents/report", map[string]string{
		"sessionKey": sessionKey, "status": status, "message": message,
	}, &out)
	return out.AgentID, err
}

// AgentActivities returns an agent's activities, most recent first (limit 0 = default).
func (c *Client) AgentActivities(ctx context.Context, id string, limit int) ([]models.Activity, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []models.Activity
	err := c.doJSON(ctx, http.MethodGet, withQuery("/api/agents/"+url.PathEscape(id)+"/activities", q), nil, &out)
	return out, err
}

// --- Tasks ---

// TaskInput creates a task.
type TaskInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	AssigneeIDs []string `json:"assigneeIds,omitempty"`
}

// TaskFilter filters ListTasks.
type TaskFilter struct {
	Status     string
	AssigneeID string
	Limit      int
}

// ListTasks returns tasks, newest first.
func (c *Client) ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.AssigneeID != "" {
		q.Set("assigneeId", f.AssigneeID)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	var out []models.Task
	err := c.doJSON(ctx, http.MethodGet, withQuery("/api/tasks", q), nil, &out)
	return out, err
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, in TaskInput) (*models.Task, error) {
	var out models.Task
	err := c.doJSON(ctx, http.MethodPost, "/api/tasks", in, &out)
	return &out, err
}

// GetTask returns a task with its comments.
func (c *Client) GetTask(ctx context.Context, id string) (*models.TaskDetail, error) {
	var out models.TaskDetail
	err := c.doJSON(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, &out)
	return &out, err
}

// UpdateTaskStatus sets a task's status; agentID is the actor recorded in the activity.
func (c *Client) UpdateTaskStatus(ctx context.Context, id, status, agentID string) (*models.Task, error) {
	var out models.Task
	err := c.doJSON(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/status",
		map[string]string{"status": status, "agentId": agentID}, &out)
	return &out, err
}

// AssignTask replaces a task's assignees and marks it assigned.
func (c *Client) AssignTask(ctx context.Context, id string, assigneeIDs []string, agentID string) (*models.Task, error) {
	var out models.Task
	err := c.doJSON(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/assign",
		map[string]any{"assigneeIds": assigneeIDs, "agentId": agentID}, &out)
	return &out, err
}

// ListMessages returns a task's comments, oldest first.
func (c *Client) ListMessages(ctx context.Context, taskID string) ([]models.Message, error) {
	var out []models.Message
	err := c.doJSON(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(taskID)+"/messages", nil, &out)
	return out, err
}

// PostMessage comments on a task.
func (c *Client) PostMessage(ctx context.Context, taskID, fromAgentID, content string) (*models.Message, error) {
	var out models.Message
	err := c.doJSON(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/messages",
		map[string]string{"fromAgentId": fromAgentID, "content": content}, &out)
	return &out, err
}

// --- Feed, documents, notifications, stats ---

// ListActivities returns the global feed, most recent first (limit 0 = default 50).
func (c *Client) ListActivities(ctx context.Context, limit int) ([]models.Activity, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []models.Activity
	err := c.doJSON(ctx, http.MethodGet, withQuery("/api/activities", q), nil, &out)
	return out, err
}

// DocumentInput creates a document.
type DocumentInput struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Type    string  `json:"type"`
	TaskID  *string `json:"taskId,omitempty"`
}

// ListDocuments returns documents; taskID and docType may be empty.
func (c *Client) ListDocuments(ctx context.Context, taskID, docType string) ([]models.Document, error) {
	q := url.Values{}
	if taskID != "" {
		q.Set("taskId", taskID)
	}
	if docType != "" {
		q.Set("type", docType)
	}
	var out []models.Document
	err := c.doJSON(ctx, http.MethodGet, withQuery("/api/documents", q), nil, &out)
	return out, err
}

// CreateDocument creates a document.
func (c *Client) CreateDocument(ctx context.Context, in DocumentInput) (*models.Document, error) {
	var out models.Document
	err := c.doJSON(ctx, http.MethodPost, "/api/documents", in, &out)
	return &out, err
}

// GetDocument returns one document.
func (c *Client) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var out models.Document
	err := c.doJSON(ctx, http.MethodGet, "/api/documents/"+url.PathEscape(id), nil, &out)
	return &out, err
}

// UpdateDocument patches title and/or content (nil leaves a field unchanged).
func (c *Client) UpdateDocument(ctx context.Context, id string, title, content *string) (*models.Document, error) {
	body := map[string]any{}
	if title != nil {
		body["title"] = *title
	}
	if content != nil {
		body["content"] = *content
	}
	var out models.Document
	err := c.doJSON(ctx, http.MethodPatch, "/api/documents/"+url.PathEscape(id), body, &out)
	return &out, err
}

// ListNotifications returns notifications for agentID (empty = all), oldest first.
func (c *Client) ListNotifications(ctx context.Context, agentID string, undeliveredOnly bool) ([]models.Notification, error) {
	q := url.Values{}
	if agentID != "" {
		q.Set("agentId", agentID)
	}
	if undeliveredOnly {
		q.Set("undelivered", "true")
	}
	var out []models.Notification
	err := c.doJSON(ctx, http.MethodGet, withQuery("/api/notifications", q), nil, &out)
	return out, err
}

// Stats returns the dashboard summary.
func (c *Client) Stats(ctx context.Context) (*models.Stats, error) {
	var out models.Stats
	err := c.doJSON(ctx, http.MethodGet, "/api/stats", nil, &out)
	return &out, err
}

// --- Webhook ---

// WebhookResult is the body of a successful webhook call.
type WebhookResult struct {
	Success   bool   `json:"success"`
	AgentID   string `json:"agentId,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// Webhook posts {sessionKey, action, payload} to /webhook with the bearer token.
func (c *Client) Webhook(ctx context.Context, sessionKey, action string, payload any) (*WebhookResult, error) {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.WebhookToken)
	body := map[string]any{"sessionKey": sessionKey, "action": action}
	if payload != nil {
		body["payload"] = payload
	}
	var out WebhookResult
	err := c.doJSONHeader(ctx, http.MethodPost, "/webhook", body, &out, h)
	return &out, err
}

// Heartbeat refreshes the heartbeat of the agent with sessionKey and returns its id.
func (c *Client) Heartbeat(ctx context.Context, sessionKey string) (string, error) {
	res, err := c.Webhook(ctx, sessionKey, "heartbeat", nil)
	if err != nil {
		return "", err
	}
	return res.AgentID, nil
}
