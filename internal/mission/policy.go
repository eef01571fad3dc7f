package mission

import (
	"context"
	"errors"

	"github.com/ankittk/missioncontrol/internal/store"
	"github.com/ankittk/missioncontrol/pkg/models"
)

// PlaceholderAgentID attributes a task_created activity when no agent exists yet.
const PlaceholderAgentID = "jarvis"

// AttributionPolicy picks the agent a task_created activity is attributed to.
type AttributionPolicy func(ctx context.Context, st store.Store, task models.Task) (string, error)

// FirstAssigneeOrAnyAgent attributes to the first assignee, else the oldest agent,
// else PlaceholderAgentID.
func FirstAssigneeOrAnyAgent(ctx context.Context, st store.Store, task models.Task) (string, error) {
	if len(task.AssigneeIDs) > 0 {
		return task.AssigneeIDs[0], nil
	}
	a, err := st.FirstAgent(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return PlaceholderAgentID, nil
	}
	if err != nil {
		return "", err
	}
	return a.ID, nil
}

// TransitionPolicy decides whether a task may move from one status to another.
type TransitionPolicy interface {
	Allow(from, to string) bool
}

// PermissiveTransitions allows any status to reach any other.
type PermissiveTransitions struct{}

func (PermissiveTransitions) Allow(from, to string) bool { return true }

// StrictTransitions only allows moves along the board's forward flow, plus
// blocking and unblocking. Staying in the same status is always allowed.
type StrictTransitions struct{}

var strictGraph = map[string][]string{
	models.StatusInbox:      {models.StatusAssigned, models.StatusInProgress, models.StatusBlocked},
	models.StatusAssigned:   {models.StatusInbox, models.StatusInProgress, models.StatusBlocked},
	models.StatusInProgress: {models.StatusAssigned, models.StatusReview, models.StatusDone, models.StatusBlocked},
	models.StatusReview:     {models.StatusInProgress, models.StatusDone, models.StatusBlocked},
	models.StatusBlocked:    {models.StatusInbox, models.StatusAssigned, models.StatusInProgress},
	models.StatusDone:       {models.StatusInProgress},
}

func (StrictTransitions) Allow(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range strictGraph[from] {
		if next == to {
			return true
		}
	}
	return false
}
