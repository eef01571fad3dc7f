// Package models provides shared types for the Mission Control HTTP API and external tools.
// These types mirror the API JSON and are stable for use by pkg/client and other consumers.
package models

import "time"

// Agent is a tracked worker identified by its session key.
type Agent struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	Status        string    `json:"status"`
	Emoji         string    `json:"emoji"`
	Color         string    `json:"color"`
	CurrentTaskID *string   `json:"currentTaskId,omitempty"`
	SessionKey    string    `json:"sessionKey"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Task is a unit of work with a status lifecycle and zero or more assignees.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority,omitempty"`
	AssigneeIDs []string  `json:"assigneeIds"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TaskDetail is a task together with its comments, oldest first.
type TaskDetail struct {
	Task
	Comments []Message `json:"comments"`
}

// Message is a comment posted on a task by an agent.
type Message struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"taskId"`
	FromAgentID string    `json:"fromAgentId"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Activity is an immutable audit-log entry describing a state change.
type Activity struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	AgentID   string    `json:"agentId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Document is a deliverable, research note, or protocol, optionally tied to a task.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	TaskID    *string   `json:"taskId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Notification tells an agent it was mentioned in a task comment.
type Notification struct {
	ID               string     `json:"id"`
	MentionedAgentID string     `json:"mentionedAgentId"`
	TaskID           *string    `json:"taskId,omitempty"`
	Content          string     `json:"content"`
	Delivered        bool       `json:"delivered"`
	CreatedAt        time.Time  `json:"createdAt"`
	DeliveredAt      *time.Time `json:"deliveredAt,omitempty"`
}

// Stats is the dashboard summary returned by /api/stats.
type Stats struct {
	Agents         map[string]int `json:"agents"`
	Tasks          map[string]int `json:"tasks"`
	TotalAgents    int            `json:"totalAgents"`
	TotalTasks     int            `json:"totalTasks"`
	OpenTasks      int            `json:"openTasks"`
	NeedsAttention int            `json:"needsAttention"`
}

// Health is the /health response.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
