package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ankittk/missioncontrol/pkg/models"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatal(err)
	}
	st, err := Open(home)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestMigrationsAndAgentCRUD(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.FirstAgent(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FirstAgent on empty store: want ErrNotFound, got %v", err)
	}

	a, err := st.CreateAgent(ctx, AgentInput{Name: "Jarvis", Role: "Squad Lead", SessionKey: "agent:main:main"})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if a.Status != models.AgentIdle {
		t.Fatalf("default status: got %q", a.Status)
	}
	if _, err := st.CreateAgent(ctx, AgentInput{Name: "Dup", Role: "x", SessionKey: "agent:main:main"}); err != nil {
		t.Fatalf("CreateAgent duplicate key: %v", err)
	}

	got, err := st.GetAgentBySessionKey(ctx, "agent:main:main")
	if err != nil {
		t.Fatalf("GetAgentBySessionKey: %v", err)
	}
	if got.ID != a.ID {
		t.Fatalf("session key lookup should return the first registered agent")
	}
	if _, err := st.GetAgentBySessionKey(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown session key: want ErrNotFound, got %v", err)
	}
	if _, err := st.GetAgent(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id: want ErrNotFound, got %v", err)
	}

	taskID := "t-1"
	upd, err := st.SetAgentStatus(ctx, a.ID, models.AgentActive, &taskID)
	if err != nil {
		t.Fatalf("SetAgentStatus: %v", err)
	}
	if upd.Status != models.AgentActive || upd.CurrentTaskID == nil || *upd.CurrentTaskID != taskID {
		t.Fatalf("SetAgentStatus: got %+v", upd)
	}
	upd, err = st.SetAgentStatus(ctx, a.ID, models.AgentBlocked, nil)
	if err != nil {
		t.Fatalf("SetAgentStatus nil task: %v", err)
	}
	if upd.CurrentTaskID == nil || *upd.CurrentTaskID != taskID {
		t.Fatalf("nil current task should keep the previous one")
	}

	touched, err := st.TouchAgentHeartbeat(ctx, a.ID)
	if err != nil {
		t.Fatalf("TouchAgentHeartbeat: %v", err)
	}
	if touched.Status != models.AgentBlocked {
		t.Fatalf("heartbeat changed status to %q", touched.Status)
	}
	if touched.LastHeartbeat.Before(upd.LastHeartbeat) {
		t.Fatalf("heartbeat went backwards")
	}
	if _, err := st.TouchAgentHeartbeat(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("TouchAgentHeartbeat unknown: want ErrNotFound, got %v", err)
	}

	blocked, err := st.ListAgents(ctx, AgentFilter{Status: models.AgentBlocked})
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(blocked) != 1 || blocked[0].ID != a.ID {
		t.Fatalf("ListAgents blocked: got %d", len(blocked))
	}
}

func TestTasksAndAssignees(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	t1, err := st.CreateTask(ctx, TaskInput{Title: "first", Status: models.StatusInbox, Priority: models.PriorityMedium})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	t2, err := st.CreateTask(ctx, TaskInput{Title: "second", Status: models.StatusAssigned, AssigneeIDs: []string{"b", "a", "b"}})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if len(t2.AssigneeIDs) != 2 || t2.AssigneeIDs[0] != "b" || t2.AssigneeIDs[1] != "a" {
		t.Fatalf("assignees: got %v", t2.AssigneeIDs)
	}

	list, err := st.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(list) != 2 || list[0].ID != t2.ID || list[1].ID != t1.ID {
		t.Fatalf("ListTasks should be newest first")
	}
	if len(list[1].AssigneeIDs) != 0 || list[1].AssigneeIDs == nil {
		t.Fatalf("unassigned task should carry an empty slice")
	}

	mine, err := st.ListTasks(ctx, TaskFilter{AssigneeID: "a"})
	if err != nil {
		t.Fatalf("ListTasks assignee: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != t2.ID {
		t.Fatalf("ListTasks assignee filter: got %d", len(mine))
	}

	re, err := st.SetTaskAssignees(ctx, t1.ID, []string{"c"}, models.StatusAssigned)
	if err != nil {
		t.Fatalf("SetTaskAssignees: %v", err)
	}
	if re.Status != models.StatusAssigned || len(re.AssigneeIDs) != 1 || re.AssigneeIDs[0] != "c" {
		t.Fatalf("SetTaskAssignees: got %+v", re)
	}

	done, err := st.SetTaskStatus(ctx, t1.ID, models.StatusDone)
	if err != nil {
		t.Fatalf("SetTaskStatus: %v", err)
	}
	if done.Status != models.StatusDone || done.UpdatedAt.Before(t1.UpdatedAt) {
		t.Fatalf("SetTaskStatus: got %+v", done)
	}
	if _, err := st.SetTaskStatus(ctx, "nope", models.StatusDone); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetTaskStatus unknown: want ErrNotFound, got %v", err)
	}

	found, err := st.FindTaskByTitle(ctx, "second")
	if err != nil || found.ID != t2.ID {
		t.Fatalf("FindTaskByTitle: %v %+v", err, found)
	}
	if _, err := st.FindTaskByTitle(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindTaskByTitle missing: want ErrNotFound, got %v", err)
	}
}

func TestMessagesOrderAndForeignKey(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	task, err := st.CreateTask(ctx, TaskInput{Title: "chat", Status: models.StatusInbox})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	for _, c := range []string{"one", "two", "three"} {
		if _, err := st.CreateMessage(ctx, MessageInput{TaskID: task.ID, FromAgentID: "a", Content: c}); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}
	msgs, err := st.ListMessages(ctx, MessageFilter{TaskID: task.ID})
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Content != "one" || msgs[2].Content != "three" {
		t.Fatalf("messages should be oldest first: %+v", msgs)
	}
	byAgent, err := st.ListMessages(ctx, MessageFilter{FromAgentID: "a", Limit: 1})
	if err != nil {
		t.Fatalf("ListMessages by agent: %v", err)
	}
	if len(byAgent) != 1 || byAgent[0].Content != "three" {
		t.Fatalf("by-agent listing should be newest first: %+v", byAgent)
	}

	if _, err := st.CreateMessage(ctx, MessageInput{TaskID: "nope", FromAgentID: "a", Content: "x"}); err == nil {
		t.Fatal("CreateMessage on missing task should fail")
	}
	if err := st.TouchTask(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("TouchTask unknown: want ErrNotFound, got %v", err)
	}
}

func TestActivitiesMostRecentFirst(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	for i, msg := range []string{"a", "b", "c"} {
		agent := "x"
		if i == 1 {
			agent = "y"
		}
		if _, err := st.AppendActivity(ctx, ActivityInput{Type: models.ActivityTaskUpdated, AgentID: agent, Message: msg}); err != nil {
			t.Fatalf("AppendActivity: %v", err)
		}
	}
	all, err := st.ListActivities(ctx, ActivityFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(all) != 2 || all[0].Message != "c" || all[1].Message != "b" {
		t.Fatalf("ListActivities: %+v", all)
	}
	xs, err := st.ListActivities(ctx, ActivityFilter{AgentID: "x"})
	if err != nil {
		t.Fatalf("ListActivities agent: %v", err)
	}
	if len(xs) != 2 || xs[0].Message != "c" {
		t.Fatalf("ListActivities agent: %+v", xs)
	}
}

func TestDocumentsAndNotifications(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	taskID := "task-1"
	d, err := st.CreateDocument(ctx, DocumentInput{Title: "Brief", Content: "v1", Type: models.DocResearch, TaskID: &taskID})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	empty := ""
	content := "v2"
	upd, err := st.UpdateDocument(ctx, d.ID, &empty, &content)
	if err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}
	if upd.Title != "Brief" || upd.Content != "v2" {
		t.Fatalf("UpdateDocument: got %+v", upd)
	}
	if _, err := st.UpdateDocument(ctx, "nope", nil, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateDocument unknown: want ErrNotFound, got %v", err)
	}
	docs, err := st.ListDocuments(ctx, DocumentFilter{TaskID: taskID})
	if err != nil || len(docs) != 1 {
		t.Fatalf("ListDocuments: %v %d", err, len(docs))
	}

	n, err := st.CreateNotification(ctx, NotificationInput{MentionedAgentID: "a", TaskID: &taskID, Content: "hi @A"})
	if err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}
	pending, err := st.ListNotifications(ctx, NotificationFilter{UndeliveredOnly: true})
	if err != nil || len(pending) != 1 {
		t.Fatalf("ListNotifications: %v %d", err, len(pending))
	}
	if err := st.MarkNotificationDelivered(ctx, n.ID); err != nil {
		t.Fatalf("MarkNotificationDelivered: %v", err)
	}
	if err := st.MarkNotificationDelivered(ctx, n.ID); err != nil {
		t.Fatalf("MarkNotificationDelivered twice: %v", err)
	}
	if err := st.MarkNotificationDelivered(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MarkNotificationDelivered unknown: want ErrNotFound, got %v", err)
	}
	all, err := st.ListNotifications(ctx, NotificationFilter{AgentID: "a"})
	if err != nil || len(all) != 1 || !all[0].Delivered || all[0].DeliveredAt == nil {
		t.Fatalf("delivered notification: %v %+v", err, all)
	}
}
