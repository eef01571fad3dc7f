// Package mission implements the Mission Control domain: agent and task lifecycles,
// task comments, documents, mention notifications, and the read views used by the API.
//
// Every mutation is a short sequence of independent store calls. Activities are
// appended after the state change they describe; if that append fails the state
// change stays and the error is returned.
package mission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ankittk/missioncontrol/internal/otel"
	"github.com/ankittk/missioncontrol/internal/store"
	"github.com/ankittk/missioncontrol/pkg/models"
)

var (
	// ErrNotFound is returned when a referenced agent, task or document does not exist.
	ErrNotFound = store.ErrNotFound
	// ErrValidation is returned for missing or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition is returned when the TransitionPolicy rejects a status change.
	ErrInvalidTransition = errors.New("invalid status transition")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Publisher receives change-feed events (the SSE hub in the HTTP app).
type Publisher interface {
	PublishJSON(v any)
}

// Notifier forwards notification text to an outbound channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, text string) error
}

// Service applies domain mutations against a store and appends their activities.
type Service struct {
	Store       store.Store
	Attribution AttributionPolicy
	Transitions TransitionPolicy
	Publisher   Publisher  // optional
	Notifiers   []Notifier // optional; used by DeliverNotifications
	Logger      *slog.Logger

	staleMu   sync.Mutex
	staleSeen map[string]time.Time // agent id -> heartbeat already reported stale
}

// New returns a service with the default policies: first-assignee attribution and
// permissive transitions.
func New(st store.Store) *Service {
	return &Service{
		Store:       st,
		Attribution: FirstAssigneeOrAnyAgent,
		Transitions: PermissiveTransitions{},
		Logger:      slog.Default(),
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) publish(eventType string, fields map[string]any) {
	if s.Publisher == nil {
		return
	}
	ev := map[string]any{"type": eventType}
	for k, v := range fields {
		ev[k] = v
	}
	s.Publisher.PublishJSON(ev)
}

// appendActivity writes one audit entry and fans it out to the change feed.
func (s *Service) appendActivity(ctx context.Context, typ, agentID, msg string) (models.Activity, error) {
	act, err := s.Store.AppendActivity(ctx, store.ActivityInput{Type: typ, AgentID: agentID, Message: msg})
	if err != nil {
		return models.Activity{}, fmt.Errorf("append %s activity: %w", typ, err)
	}
	otel.RecordActivity(ctx, typ)
	s.publish("activity", map[string]any{"activity": act})
	return act, nil
}
