package mission

import (
	"context"
	"fmt"
	"strings"

	"github.com/ankittk/missioncontrol/internal/otel"
	"github.com/ankittk/missioncontrol/internal/store"
	"github.com/ankittk/missioncontrol/pkg/models"
)

// TaskInput creates a task. Empty Status and Priority take their defaults.
type TaskInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	AssigneeIDs []string `json:"assigneeIds,omitempty"`
}

// CreateTask inserts a task and appends a task_created activity attributed by s.Attribution.
// Status defaults to assigned when there are assignees, else inbox; priority defaults to medium.
func (s *Service) CreateTask(ctx context.Context, in TaskInput) (models.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return models.Task{}, invalid("task title required")
	}
	in.AssigneeIDs = normalizeIDs(in.AssigneeIDs)
	if in.Status == "" {
		in.Status = models.StatusInbox
		if len(in.AssigneeIDs) > 0 {
			in.Status = models.StatusAssigned
		}
	} else if !models.ValidTaskStatus(in.Status) {
		return models.Task{}, invalid("unknown task status %q", in.Status)
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	} else if !models.ValidPriority(in.Priority) {
		return models.Task{}, invalid("unknown priority %q", in.Priority)
	}

	t, err := s.Store.CreateTask(ctx, store.TaskInput{
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		AssigneeIDs: in.AssigneeIDs,
	})
	if err != nil {
		return models.Task{}, err
	}
	otel.RecordTaskOp(ctx, "create", t.Status)
	s.publish("task_update", map[string]any{"task": t})

	attribute := s.Attribution
	if attribute == nil {
		attribute = FirstAssigneeOrAnyAgent
	}
	agentID, err := attribute(ctx, s.Store, t)
	if err != nil {
		return t, fmt.Errorf("attribute task %s: %w", t.ID, err)
	}
	if _, err := s.appendActivity(ctx, models.ActivityTaskCreated, agentID, "Created task: "+t.Title); err != nil {
		return t, err
	}
	return t, nil
}

func (s *Service) transitions() TransitionPolicy {
	if s.Transitions == nil {
		return PermissiveTransitions{}
	}
	return s.Transitions
}

// UpdateTaskStatus sets a task's status and appends a task_updated activity attributed to agentID.
// agentID is recorded as given.
func (s *Service) UpdateTaskStatus(ctx context.Context, id, status, agentID string) (models.Task, error) {
	if !models.ValidTaskStatus(status) {
		return models.Task{}, invalid("unknown task status %q", status)
	}
	if _, ok := s.transitions().(PermissiveTransitions); !ok {
		cur, err := s.Store.GetTask(ctx, id)
		if err != nil {
			return models.Task{}, err
		}
		if !s.transitions().Allow(cur.Status, status) {
			return models.Task{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, status)
		}
	}
	t, err := s.Store.SetTaskStatus(ctx, id, status)
	if err != nil {
		return models.Task{}, err
	}
	otel.RecordTaskOp(ctx, "status", t.Status)
	s.publish("task_update", map[string]any{"task": t})
	if _, err := s.appendActivity(ctx, models.ActivityTaskUpdated, agentID, "Task status changed to "+status); err != nil {
		return t, err
	}
	return t, nil
}

// AssignTask replaces the assignee list, forces status assigned, and appends a task_updated activity.
func (s *Service) AssignTask(ctx context.Context, id string, assigneeIDs []string, agentID string) (models.Task, error) {
	if _, ok := s.transitions().(PermissiveTransitions); !ok {
		cur, err := s.Store.GetTask(ctx, id)
		if err != nil {
			return models.Task{}, err
		}
		if !s.transitions().Allow(cur.Status, models.StatusAssigned) {
			return models.Task{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, models.StatusAssigned)
		}
	}
	t, err := s.Store.SetTaskAssignees(ctx, id, normalizeIDs(assigneeIDs), models.StatusAssigned)
	if err != nil {
		return models.Task{}, err
	}
	otel.RecordTaskOp(ctx, "assign", t.Status)
	s.publish("task_update", map[string]any{"task": t})
	msg := fmt.Sprintf("Task assigned to %d agent(s)", len(t.AssigneeIDs))
	if _, err := s.appendActivity(ctx, models.ActivityTaskUpdated, agentID, msg); err != nil {
		return t, err
	}
	return t, nil
}

// normalizeIDs trims ids and drops blanks and repeats, keeping first-seen order.
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
