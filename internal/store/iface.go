package store

import (
	"context"

	"github.com/ankittk/missioncontrol/pkg/models"
)

// Store is the persistence interface for agents, tasks, messages, activities, documents, and notifications.
// Implementations: the SQLite store returned by Open and *postgres.Store (PostgreSQL).
//
// Lookups that miss return an error wrapping ErrNotFound. Each method is a single
// call against the backend; callers compose them without cross-call transactions.
type Store interface {
	// Agents
	CreateAgent(ctx context.Context, in AgentInput) (models.Agent, error)
	GetAgent(ctx context.Context, id string) (models.Agent, error)
	GetAgentBySessionKey(ctx context.Context, sessionKey string) (models.Agent, error)
	FirstAgent(ctx context.Context) (models.Agent, error)
	ListAgents(ctx context.Context, f AgentFilter) ([]models.Agent, error)
	SetAgentStatus(ctx context.Context, id, status string, currentTaskID *string) (models.Agent, error)
	TouchAgentHeartbeat(ctx context.Context, id string) (models.Agent, error)

	// Tasks
	CreateTask(ctx context.Context, in TaskInput) (models.Task, error)
	GetTask(ctx context.Context, id string) (models.Task, error)
	FindTaskByTitle(ctx context.Context, title string) (models.Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error)
	SetTaskStatus(ctx context.Context, id, status string) (models.Task, error)
	SetTaskAssignees(ctx context.Context, id string, assigneeIDs []string, status string) (models.Task, error)
	TouchTask(ctx context.Context, id string) error

	// Messages
	CreateMessage(ctx context.Context, in MessageInput) (models.Message, error)
	ListMessages(ctx context.Context, f MessageFilter) ([]models.Message, error)

	// Activities (append-only)
	AppendActivity(ctx context.Context, in ActivityInput) (models.Activity, error)
	ListActivities(ctx context.Context, f ActivityFilter) ([]models.Activity, error)

	// Documents
	CreateDocument(ctx context.Context, in DocumentInput) (models.Document, error)
	GetDocument(ctx context.Context, id string) (models.Document, error)
	UpdateDocument(ctx context.Context, id string, title, content *string) (models.Document, error)
	ListDocuments(ctx context.Context, f DocumentFilter) ([]models.Document, error)

	// Notifications
	CreateNotification(ctx context.Context, in NotificationInput) (models.Notification, error)
	ListNotifications(ctx context.Context, f NotificationFilter) ([]models.Notification, error)
	MarkNotificationDelivered(ctx context.Context, id string) error

	// Lifecycle
	Close() error
}
