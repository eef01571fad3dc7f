package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/ankittk/missioncontrol/internal/store"
	"github.com/ankittk/missioncontrol/pkg/models"
)

func TestOpen_skipIfNoDatabaseURL(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping postgres test")
	}
	st, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = st.Close() }()
	ctx := context.Background()

	agents, err := st.ListAgents(ctx, store.AgentFilter{})
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if agents == nil {
		t.Fatal("agents should not be nil")
	}

	task, err := st.CreateTask(ctx, store.TaskInput{Title: "pg task", Status: models.StatusAssigned, AssigneeIDs: []string{"x", "y"}})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	got, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if len(got.AssigneeIDs) != 2 || got.AssigneeIDs[0] != "x" {
		t.Fatalf("assignees: %v", got.AssigneeIDs)
	}
	if _, err := st.CreateMessage(ctx, store.MessageInput{TaskID: "missing-task", FromAgentID: "x", Content: "hi"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("CreateMessage on missing task: want ErrNotFound, got %v", err)
	}
	if _, err := st.GetAgent(ctx, "missing-agent"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetAgent missing: want ErrNotFound, got %v", err)
	}
}
