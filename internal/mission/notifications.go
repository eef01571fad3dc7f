package mission

import (
	"context"
	"fmt"
	"time"

	"github.com/ankittk/missioncontrol/internal/otel"
	"github.com/ankittk/missioncontrol/internal/store"
	"github.com/ankittk/missioncontrol/pkg/models"
)

// DeliverNotifications marks up to limit pending notifications delivered, oldest first.
// Each one is published on the change feed and forwarded to every Notifier; notifier
// failures are logged and do not hold back delivery. Returns the number delivered.
func (s *Service) DeliverNotifications(ctx context.Context, limit int) (int, error) {
	pending, err := s.Store.ListNotifications(ctx, store.NotificationFilter{
		UndeliveredOnly: true,
		Limit:           models.ClampLimit(limit, models.DefaultNotificationDelivery),
	})
	if err != nil {
		return 0, err
	}
	log := s.logger()
	delivered := 0
	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := s.Store.MarkNotificationDelivered(ctx, n.ID); err != nil {
			return delivered, err
		}
		delivered++
		otel.RecordNotificationDelivered(ctx, "feed")
		s.publish("notification", map[string]any{"notification": n})

		text := s.notificationText(ctx, n)
		for _, ch := range s.Notifiers {
			if err := ch.Notify(ctx, text); err != nil {
				log.Warn("notification channel failed", "channel", ch.Name(), "notification_id", n.ID, "err", err)
				continue
			}
			otel.RecordNotificationDelivered(ctx, ch.Name())
		}
	}
	return delivered, nil
}

func (s *Service) notificationText(ctx context.Context, n models.Notification) string {
	who := n.MentionedAgentID
	if a, err := s.Store.GetAgent(ctx, n.MentionedAgentID); err == nil {
		who = a.Name
	}
	where := ""
	if n.TaskID != nil {
		if t, err := s.Store.GetTask(ctx, *n.TaskID); err == nil {
			where = fmt.Sprintf(" on %q", t.Title)
		}
	}
	return fmt.Sprintf("@%s was mentioned%s: %s", who, where, n.Content)
}

// SweepStale returns agents whose last heartbeat is older than maxAge; statuses are
// not changed. An agent is logged at warn and published as agent_stale once per
// stale period. Later sweeps that find the same heartbeat log at debug only.
func (s *Service) SweepStale(ctx context.Context, maxAge time.Duration) ([]models.Agent, error) {
	agents, err := s.Store.ListAgents(ctx, store.AgentFilter{})
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	log := s.logger()

	s.staleMu.Lock()
	defer s.staleMu.Unlock()
	if s.staleSeen == nil {
		s.staleSeen = make(map[string]time.Time)
	}
	var stale []models.Agent
	current := make(map[string]time.Time, len(agents))
	for _, a := range agents {
		if !a.LastHeartbeat.Before(cutoff) {
			continue
		}
		stale = append(stale, a)
		current[a.ID] = a.LastHeartbeat
		if seen, ok := s.staleSeen[a.ID]; ok && seen.Equal(a.LastHeartbeat) {
			log.Debug("agent heartbeat still stale", "agent_id", a.ID, "name", a.Name, "last_heartbeat", a.LastHeartbeat)
			continue
		}
		log.Warn("agent heartbeat stale", "agent_id", a.ID, "name", a.Name, "last_heartbeat", a.LastHeartbeat)
		s.publish("agent_stale", map[string]any{"agentId": a.ID, "lastHeartbeat": a.LastHeartbeat})
	}
	s.staleSeen = current
	return stale, nil
}
