package mission

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ankittk/missioncontrol/internal/store"
	"github.com/ankittk/missioncontrol/pkg/models"
)

// AgentInput registers an agent. Name, Role and SessionKey are required.
type AgentInput struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	Emoji       string `json:"emoji"`
	Color       string `json:"color"`
	SessionKey  string `json:"sessionKey"`
	Description string `json:"description"`
}

// RegisterAgent creates an idle agent with a fresh heartbeat. No activity is logged.
func (s *Service) RegisterAgent(ctx context.Context, in AgentInput) (models.Agent, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Role = strings.TrimSpace(in.Role)
	in.SessionKey = strings.TrimSpace(in.SessionKey)
	switch {
	case in.Name == "":
		return models.Agent{}, invalid("agent name required")
	case in.Role == "":
		return models.Agent{}, invalid("agent role required")
	case in.SessionKey == "":
		return models.Agent{}, invalid("agent session key required")
	}
	a, err := s.Store.CreateAgent(ctx, store.AgentInput{
		Name:        in.Name,
		Role:        in.Role,
		Emoji:       in.Emoji,
		Color:       in.Color,
		SessionKey:  in.SessionKey,
		Description: in.Description,
		Status:      models.AgentIdle,
	})
	if err != nil {
		return models.Agent{}, err
	}
	s.logger().Info("agent registered", "agent_id", a.ID, "name", a.Name, "session_key", a.SessionKey)
	s.publish("agent_update", map[string]any{"agent": a})
	return a, nil
}

// Heartbeat refreshes lastHeartbeat for the agent behind sessionKey and returns its id.
// Status and current task are left alone.
func (s *Service) Heartbeat(ctx context.Context, sessionKey string) (string, error) {
	a, err := s.Store.GetAgentBySessionKey(ctx, sessionKey)
	if err != nil {
		return "", err
	}
	if _, err := s.Store.TouchAgentHeartbeat(ctx, a.ID); err != nil {
		return "", err
	}
	s.publish("heartbeat", map[string]any{"agentId": a.ID})
	return a.ID, nil
}

// UpdateAgentStatus sets status (any status may follow any other), bumps the heartbeat,
// and, when currentTaskID is non-nil, records the agent's current task. Exactly one
// agent_status_changed activity is appended.
func (s *Service) UpdateAgentStatus(ctx context.Context, id, status string, currentTaskID *string) (models.Agent, error) {
	if !models.ValidAgentStatus(status) {
		return models.Agent{}, invalid("unknown agent status %q", status)
	}
	a, err := s.Store.SetAgentStatus(ctx, id, status, currentTaskID)
	if err != nil {
		return models.Agent{}, err
	}
	s.publish("agent_update", map[string]any{"agent": a})
	if _, err := s.appendActivity(ctx, models.ActivityAgentStatusChanged, a.ID, "Status changed to "+status); err != nil {
		return a, err
	}
	return a, nil
}

// ReportStatus is the runtime-facing status report: it finds the agent by session key,
// creating one when missing, sets its status, and logs message as an extra activity.
func (s *Service) ReportStatus(ctx context.Context, sessionKey, status, message string) (models.Agent, error) {
	if strings.TrimSpace(sessionKey) == "" {
		return models.Agent{}, invalid("session key required")
	}
	if !models.ValidAgentStatus(status) {
		return models.Agent{}, invalid("unknown agent status %q", status)
	}
	a, err := s.Store.GetAgentBySessionKey(ctx, sessionKey)
	if errors.Is(err, store.ErrNotFound) {
		a, err = s.RegisterAgent(ctx, AgentInput{
			Name:        nameFromSessionKey(sessionKey),
			Role:        "Agent",
			Emoji:       "🤖",
			Color:       "bg-gray-500",
			SessionKey:  sessionKey,
			Description: "Auto-created agent",
		})
	}
	if err != nil {
		return models.Agent{}, fmt.Errorf("resolve agent %s: %w", sessionKey, err)
	}
	a, err = s.UpdateAgentStatus(ctx, a.ID, status, nil)
	if err != nil {
		return a, err
	}
	if message != "" {
		if _, err := s.appendActivity(ctx, models.ActivityAgentStatusChanged, a.ID, message); err != nil {
			return a, err
		}
	}
	return a, nil
}

// nameFromSessionKey returns the second ":"-separated segment ("agent:<name>:main").
func nameFromSessionKey(key string) string {
	parts := strings.Split(key, ":")
	if len(parts) > 1 && parts[1] != "" {
		return parts[1]
	}
	return "Unknown"
}
