package mission

import (
	"context"
	"regexp"
	"strings"

	"github.com/ankittk/missioncontrol/internal/otel"
	"github.com/ankittk/missioncontrol/internal/store"
	"github.com/ankittk/missioncontrol/pkg/models"
)

var mentionRe = regexp.MustCompile(`@([\p{L}\p{N}_-]+)`)

// PostMessage comments on a task: it stores the message, appends a message_sent activity,
// bumps the task's updatedAt, and queues a notification for each mentioned agent.
func (s *Service) PostMessage(ctx context.Context, taskID, fromAgentID, content string) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, invalid("message content required")
	}
	task, err := s.Store.GetTask(ctx, taskID)
	if err != nil {
		return models.Message{}, err
	}
	m, err := s.Store.CreateMessage(ctx, store.MessageInput{TaskID: task.ID, FromAgentID: fromAgentID, Content: content})
	if err != nil {
		return models.Message{}, err
	}
	otel.RecordTaskOp(ctx, "comment", task.Status)
	s.publish("message", map[string]any{"message": m})
	if _, err := s.appendActivity(ctx, models.ActivityMessageSent, fromAgentID, "Commented on task"); err != nil {
		return m, err
	}
	if err := s.Store.TouchTask(ctx, task.ID); err != nil {
		return m, err
	}
	if err := s.queueMentions(ctx, task, m); err != nil {
		s.logger().Warn("queue mention notifications", "message_id", m.ID, "err", err)
	}
	return m, nil
}

// ListMessages returns a task's comments, oldest first.
func (s *Service) ListMessages(ctx context.Context, taskID string) ([]models.Message, error) {
	if _, err := s.Store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return s.Store.ListMessages(ctx, store.MessageFilter{TaskID: taskID})
}

// mentionedNames returns the lower-cased @names in content, deduplicated, in order of appearance.
func mentionedNames(content string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range mentionRe.FindAllStringSubmatch(content, -1) {
		name := strings.ToLower(m[1])
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func (s *Service) queueMentions(ctx context.Context, task models.Task, m models.Message) error {
	names := mentionedNames(m.Content)
	if len(names) == 0 {
		return nil
	}
	agents, err := s.Store.ListAgents(ctx, store.AgentFilter{})
	if err != nil {
		return err
	}
	byName := make(map[string]models.Agent, len(agents))
	for _, a := range agents {
		key := strings.ToLower(a.Name)
		if _, dup := byName[key]; !dup {
			byName[key] = a
		}
	}
	taskID := task.ID
	for _, name := range names {
		a, ok := byName[name]
		if !ok || a.ID == m.FromAgentID {
			continue
		}
		n, err := s.Store.CreateNotification(ctx, store.NotificationInput{MentionedAgentID: a.ID, TaskID: &taskID, Content: m.Content})
		if err != nil {
			return err
		}
		s.logger().Debug("mention queued", "notification_id", n.ID, "agent", a.Name, "task_id", task.ID)
	}
	return nil
}
