package models

// Agent statuses.
const (
	AgentIdle    = "idle"
	AgentActive  = "active"
	AgentBlocked = "blocked"
)

// Task statuses.
const (
	StatusInbox      = "inbox"
	StatusAssigned   = "assigned"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusDone       = "done"
	StatusBlocked    = "blocked"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Activity types.
const (
	ActivityTaskCreated        = "task_created"
	ActivityTaskUpdated        = "task_updated"
	ActivityMessageSent        = "message_sent"
	ActivityAgentStatusChanged = "agent_status_changed"
)

// Document types.
const (
	DocDeliverable = "deliverable"
	DocResearch    = "research"
	DocProtocol    = "protocol"
)

// Default limits.
const (
	DefaultMaxRequestBodyBytes  = 1 << 20 // 1 MiB
	DefaultActivityListLimit    = 50
	DefaultAgentActivityLimit   = 20
	DefaultNotificationLimit    = 100
	MaxListLimit                = 1000
	DefaultSSEChannelBuffer     = 256
	DefaultNotificationDelivery = 50
)

// AgentStatuses lists every agent status in display order.
var AgentStatuses = []string{AgentIdle, AgentActive, AgentBlocked}

// TaskStatuses lists every task status in board column order.
var TaskStatuses = []string{StatusInbox, StatusAssigned, StatusInProgress, StatusReview, StatusDone, StatusBlocked}

// Priorities lists every priority from lowest to highest.
var Priorities = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// DocumentTypes lists every document type.
var DocumentTypes = []string{DocDeliverable, DocResearch, DocProtocol}

func ValidAgentStatus(s string) bool  { return contains(AgentStatuses, s) }
func ValidTaskStatus(s string) bool   { return contains(TaskStatuses, s) }
func ValidPriority(s string) bool     { return contains(Priorities, s) }
func ValidDocumentType(s string) bool { return contains(DocumentTypes, s) }

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// ClampLimit returns def when n <= 0 and caps n at MaxListLimit.
func ClampLimit(n, def int) int {
	if n <= 0 {
		n = def
	}
	if n > MaxListLimit {
		n = MaxListLimit
	}
	return n
}
