// Package store defines the persistence interface for Mission Control and its SQLite backend.
// Records are the pkg/models types; this file holds the write inputs and list filters.
package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is wrapped by every lookup that matches no record.
var ErrNotFound = errors.New("not found")

// AgentInput is the set of fields supplied when registering an agent.
// Status defaults to idle when empty.
type AgentInput struct {
	Name        string
	Role        string
	Emoji       string
	Color       string
	SessionKey  string
	Description string
	Status      string
}

// AgentFilter narrows ListAgents. Zero value lists all agents, oldest first.
type AgentFilter struct {
	Status string
}

// TaskInput is a fully-defaulted task to insert; the caller decides status and priority.
type TaskInput struct {
	Title       string
	Description string
	Status      string
	Priority    string
	AssigneeIDs []string
}

// TaskFilter narrows ListTasks. Results are newest first.
type TaskFilter struct {
	Status     string
	AssigneeID string
	Limit      int
}

// MessageInput is a comment to insert on a task.
type MessageInput struct {
	TaskID      string
	FromAgentID string
	Content     string
}

// MessageFilter narrows ListMessages. With TaskID set, results are oldest first;
// with only FromAgentID set, newest first.
type MessageFilter struct {
	TaskID      string
	FromAgentID string
	Limit       int
}

// ActivityInput is an audit-log entry to append.
type ActivityInput struct {
	Type    string
	AgentID string
	Message string
}

// ActivityFilter narrows ListActivities. Results are most recent first.
type ActivityFilter struct {
	AgentID string
	Limit   int
}

// DocumentInput is a document to insert.
type DocumentInput struct {
	Title   string
	Content string
	Type    string
	TaskID  *string
}

// DocumentFilter narrows ListDocuments. Results are oldest first.
type DocumentFilter struct {
	TaskID string
	Type   string
}

// NotificationInput is a mention notification to insert (undelivered).
type NotificationInput struct {
	MentionedAgentID string
	TaskID           *string
	Content          string
}

// NotificationFilter narrows ListNotifications. Results are oldest first.
type NotificationFilter struct {
	AgentID         string
	UndeliveredOnly bool
	Limit           int
}

func newID() string {
	return uuid.NewString()
}

// stamp converts a stored nanosecond timestamp to UTC time.
func stamp(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
