package mission

import (
	"context"

	"github.com/ankittk/missioncontrol/internal/store"
	"github.com/ankittk/missioncontrol/pkg/models"
)

// TaskQuery filters ListTasks. Zero Limit returns every match; a positive Limit is
// capped at MaxListLimit.
type TaskQuery struct {
	Status     string
	AssigneeID string
	Limit      int
}

// DocumentQuery filters ListDocuments.
type DocumentQuery struct {
	TaskID string
	Type   string
}

// NotificationQuery filters ListNotifications.
type NotificationQuery struct {
	AgentID         string
	UndeliveredOnly bool
	Limit           int
}

func (s *Service) ListAgents(ctx context.Context, status string) ([]models.Agent, error) {
	if status != "" && !models.ValidAgentStatus(status) {
		return nil, invalid("unknown agent status %q", status)
	}
	return s.Store.ListAgents(ctx, store.AgentFilter{Status: status})
}

func (s *Service) GetAgent(ctx context.Context, id string) (models.Agent, error) {
	return s.Store.GetAgent(ctx, id)
}

// ListTasks returns tasks newest first.
func (s *Service) ListTasks(ctx context.Context, q TaskQuery) ([]models.Task, error) {
	if q.Status != "" && !models.ValidTaskStatus(q.Status) {
		return nil, invalid("unknown task status %q", q.Status)
	}
	limit := 0
	if q.Limit > 0 {
		limit = models.ClampLimit(q.Limit, models.MaxListLimit)
	}
	return s.Store.ListTasks(ctx, store.TaskFilter{
		Status:     q.Status,
		AssigneeID: q.AssigneeID,
		Limit:      limit,
	})
}

// GetTask returns the task with its comments, oldest first.
func (s *Service) GetTask(ctx context.Context, id string) (models.TaskDetail, error) {
	t, err := s.Store.GetTask(ctx, id)
	if err != nil {
		return models.TaskDetail{}, err
	}
	comments, err := s.Store.ListMessages(ctx, store.MessageFilter{TaskID: id})
	if err != nil {
		return models.TaskDetail{}, err
	}
	return models.TaskDetail{Task: t, Comments: comments}, nil
}

// ListActivities returns the most recent activities (default 50).
func (s *Service) ListActivities(ctx context.Context, limit int) ([]models.Activity, error) {
	return s.Store.ListActivities(ctx, store.ActivityFilter{Limit: models.ClampLimit(limit, models.DefaultActivityListLimit)})
}

// ListAgentActivities returns an agent's most recent activities (default 20).
func (s *Service) ListAgentActivities(ctx context.Context, agentID string, limit int) ([]models.Activity, error) {
	return s.Store.ListActivities(ctx, store.ActivityFilter{AgentID: agentID, Limit: models.ClampLimit(limit, models.DefaultAgentActivityLimit)})
}

func (s *Service) ListDocuments(ctx context.Context, q DocumentQuery) ([]models.Document, error) {
	if q.Type != "" && !models.ValidDocumentType(q.Type) {
		return nil, invalid("unknown document type %q", q.Type)
	}
	return s.Store.ListDocuments(ctx, store.DocumentFilter{TaskID: q.TaskID, Type: q.Type})
}

func (s *Service) GetDocument(ctx context.Context, id string) (models.Document, error) {
	return s.Store.GetDocument(ctx, id)
}

func (s *Service) ListNotifications(ctx context.Context, q NotificationQuery) ([]models.Notification, error) {
	return s.Store.ListNotifications(ctx, store.NotificationFilter{
		AgentID:         q.AgentID,
		UndeliveredOnly: q.UndeliveredOnly,
		Limit:           models.ClampLimit(q.Limit, models.DefaultNotificationLimit),
	})
}

// Stats summarizes the board for the dashboard header.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	agents, err := s.Store.ListAgents(ctx, store.AgentFilter{})
	if err != nil {
		return models.Stats{}, err
	}
	tasks, err := s.Store.ListTasks(ctx, store.TaskFilter{})
	if err != nil {
		return models.Stats{}, err
	}
	st := models.Stats{
		Agents:      make(map[string]int, len(models.AgentStatuses)),
		Tasks:       make(map[string]int, len(models.TaskStatuses)),
		TotalAgents: len(agents),
		TotalTasks:  len(tasks),
	}
	for _, status := range models.AgentStatuses {
		st.Agents[status] = 0
	}
	for _, status := range models.TaskStatuses {
		st.Tasks[status] = 0
	}
	for _, a := range agents {
		st.Agents[a.Status]++
	}
	for _, t := range tasks {
		st.Tasks[t.Status]++
		if t.Status != models.StatusDone {
			st.OpenTasks++
		}
	}
	st.NeedsAttention = st.Tasks[models.StatusBlocked] + st.Agents[models.AgentBlocked]
	return st, nil
}

// TaskCounts returns task counts by status for the metrics gauge. Errors yield an empty map.
func (s *Service) TaskCounts(ctx context.Context) map[string]int64 {
	return s.counts(ctx, func(st models.Stats) map[string]int { return st.Tasks })
}

// AgentCounts returns agent counts by status for the metrics gauge. Errors yield an empty map.
func (s *Service) AgentCounts(ctx context.Context) map[string]int64 {
	return s.counts(ctx, func(st models.Stats) map[string]int { return st.Agents })
}

func (s *Service) counts(ctx context.Context, pick func(models.Stats) map[string]int) map[string]int64 {
	out := map[string]int64{}
	st, err := s.Stats(ctx)
	if err != nil {
		s.logger().Warn("status counts", "err", err)
		return out
	}
	for status, n := range pick(st) {
		out[status] = int64(n)
	}
	return out
}
