package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/internal/store"
	"github.com/ankittk/missioncontrol/pkg/models"
)

func newTestHandler(t *testing.T) (*Handler, store.Store) {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(home)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(mission.New(st)), st
}

func post(t *testing.T, h http.Handler, auth, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response not JSON: %q", rec.Body.String())
	}
	return rec.Code, out
}

func TestDispatchCoversEveryAction(t *testing.T) {
	for _, a := range Actions {
		if dispatch[a] == nil {
			t.Errorf("action %q has no handler", a)
		}
	}
	if len(dispatch) != len(Actions) {
		t.Errorf("dispatch has %d handlers for %d actions", len(dispatch), len(Actions))
	}
}

func TestUnauthorized_noMutation(t *testing.T) {
	t.Parallel()
	h, st := newTestHandler(t)
	body := `{"sessionKey":"k","action":"task.create","payload":{"title":"T"}}`
	for _, auth := range []string{"", "Basic abc", "Bearer ", "bearer x"} {
		code, out := post(t, h, auth, body)
		if code != http.StatusUnauthorized || out["error"] != "Unauthorized" {
			t.Fatalf("auth %q: %d %v", auth, code, out)
		}
	}
	tasks, _ := st.ListTasks(context.Background(), store.TaskFilter{})
	if len(tasks) != 0 {
		t.Fatalf("unauthorized call created %d tasks", len(tasks))
	}
}

func TestInvalidJSONAndUnknownAction(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)
	code, out := post(t, h, "Bearer x", `{not json`)
	if code != http.StatusBadRequest || out["error"] != "Invalid JSON" {
		t.Fatalf("invalid json: %d %v", code, out)
	}
	code, out = post(t, h, "Bearer x", `{"sessionKey":"k","action":"foo","payload":{}}`)
	if code != http.StatusBadRequest || out["error"] != "Unknown action" {
		t.Fatalf("unknown action: %d %v", code, out)
	}
}

func TestTaskCreate_listedAsInbox(t *testing.T) {
	t.Parallel()
	h, st := newTestHandler(t)
	code, out := post(t, h, "Bearer x", `{"sessionKey":"k","action":"task.create","payload":{"title":"T","description":"D"}}`)
	if code != http.StatusOK || out["success"] != true {
		t.Fatalf("task.create: %d %v", code, out)
	}
	id, _ := out["taskId"].(string)
	tasks, err := st.ListTasks(context.Background(), store.TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != id || tasks[0].Title != "T" || tasks[0].Status != models.StatusInbox {
		t.Fatalf("tasks: %+v", tasks)
	}

	code, out = post(t, h, "Bearer x", `{"sessionKey":"k","action":"task.create","payload":{"title":"A","assigneeIds":["a1"]}}`)
	if code != http.StatusOK {
		t.Fatalf("task.create assigned: %d %v", code, out)
	}
	got, _ := st.GetTask(context.Background(), out["taskId"].(string))
	if got.Status != models.StatusAssigned {
		t.Fatalf("assigned task status %q", got.Status)
	}

	code, out = post(t, h, "Bearer x", `{"sessionKey":"k","action":"task.create","payload":{"title":"B","assigneeIds":[""]}}`)
	if code != http.StatusOK {
		t.Fatalf("task.create blank assignee: %d %v", code, out)
	}
	got, _ = st.GetTask(context.Background(), out["taskId"].(string))
	if got.Status != models.StatusInbox || len(got.AssigneeIDs) != 0 {
		t.Fatalf("blank assignee task: %+v", got)
	}

	code, _ = post(t, h, "Bearer x", `{"sessionKey":"k","action":"task.create","payload":{"description":"no title"}}`)
	if code != http.StatusBadRequest {
		t.Fatalf("missing title: %d", code)
	}
}

func TestHeartbeat(t *testing.T) {
	t.Parallel()
	h, st := newTestHandler(t)
	ctx := context.Background()
	a, err := st.CreateAgent(ctx, store.AgentInput{Name: "Jarvis", Role: "Lead", SessionKey: "agent:main:main", Status: models.AgentBlocked})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	time.Sleep(2 * time.Millisecond)

	code, out := post(t, h, "Bearer x", `{"sessionKey":"agent:main:main","action":"heartbeat"}`)
	if code != http.StatusOK || out["agentId"] != a.ID {
		t.Fatalf("heartbeat: %d %v", code, out)
	}
	after, _ := st.GetAgent(ctx, a.ID)
	if after.Status != models.AgentBlocked || !after.LastHeartbeat.After(a.LastHeartbeat) {
		t.Fatalf("after heartbeat: %+v", after)
	}

	code, out = post(t, h, "Bearer x", `{"sessionKey":"agent:ghost:main","action":"heartbeat"}`)
	if code != http.StatusNotFound || out["error"] != "Agent not found" {
		t.Fatalf("unknown agent: %d %v", code, out)
	}
}

func TestTaskUpdateAndMessageCreate(t *testing.T) {
	t.Parallel()
	h, st := newTestHandler(t)
	ctx := context.Background()
	agent, _ := st.CreateAgent(ctx, store.AgentInput{Name: "Friday", Role: "Dev", SessionKey: "agent:developer:main"})
	task, _ := h.Service.CreateTask(ctx, mission.TaskInput{Title: "build"})

	code, out := post(t, h, "Bearer x", `{"sessionKey":"agent:developer:main","action":"task.update","payload":{"taskId":"`+task.ID+`","status":"in_progress"}}`)
	if code != http.StatusOK || out["success"] != true {
		t.Fatalf("task.update: %d %v", code, out)
	}
	acts, _ := st.ListActivities(ctx, store.ActivityFilter{Limit: 1})
	if acts[0].AgentID != agent.ID || acts[0].Message != "Task status changed to in_progress" {
		t.Fatalf("activity: %+v", acts[0])
	}

	code, out = post(t, h, "Bearer x", `{"sessionKey":"k","action":"task.update","payload":{"taskId":"missing","status":"done","agentId":"a"}}`)
	if code != http.StatusNotFound || out["error"] != "Task not found" {
		t.Fatalf("task.update missing: %d %v", code, out)
	}
	code, _ = post(t, h, "Bearer x", `{"sessionKey":"k","action":"task.update","payload":{"taskId":"`+task.ID+`","status":"nope","agentId":"a"}}`)
	if code != http.StatusBadRequest {
		t.Fatalf("task.update bad status: %d", code)
	}

	code, out = post(t, h, "Bearer x", `{"sessionKey":"k","action":"message.create","payload":{"taskId":"`+task.ID+`","agentId":"`+agent.ID+`","content":"done soon"}}`)
	if code != http.StatusOK || out["messageId"] == nil {
		t.Fatalf("message.create: %d %v", code, out)
	}
	code, out = post(t, h, "Bearer x", `{"sessionKey":"k","action":"message.create","payload":{"taskId":"missing","agentId":"a","content":"x"}}`)
	if code != http.StatusNotFound || out["error"] != "Task not found" {
		t.Fatalf("message.create missing: %d %v", code, out)
	}
	msgs, _ := st.ListMessages(ctx, store.MessageFilter{TaskID: task.ID})
	if len(msgs) != 1 || msgs[0].FromAgentID != agent.ID {
		t.Fatalf("messages: %+v", msgs)
	}
}

func TestAuthenticators(t *testing.T) {
	if err := (BearerPresence{}).Authenticate(""); err == nil {
		t.Fatal("BearerPresence accepted empty token")
	}
	st := StaticToken{Token: "s3cret"}
	if st.Authenticate("s3cret") != nil || st.Authenticate("other") == nil {
		t.Fatal("StaticToken comparison wrong")
	}

	v := NewJWTVerifier("shh")
	tok, err := v.Issue("agent:main:main", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := v.Authenticate(tok); err != nil {
		t.Fatalf("Authenticate valid: %v", err)
	}
	claims, err := v.Validate(tok)
	if err != nil || claims.Subject != "agent:main:main" {
		t.Fatalf("Validate: %v %+v", err, claims)
	}
	if err := NewJWTVerifier("other").Authenticate(tok); err == nil {
		t.Fatal("token accepted with wrong secret")
	}
	noExpiry, _ := v.Issue("x", 0)
	if err := v.Authenticate(noExpiry); err != nil {
		t.Fatalf("non-expiring token rejected: %v", err)
	}

	if _, err := NewAuthenticator("token", "", ""); err == nil {
		t.Fatal("token mode without token should fail")
	}
	if _, err := NewAuthenticator("weird", "", ""); err == nil {
		t.Fatal("unknown mode should fail")
	}
	if a, err := NewAuthenticator("jwt", "", "k"); err != nil || a == nil {
		t.Fatalf("jwt mode: %v", err)
	}
}

func TestJWTModeGate(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)
	v := NewJWTVerifier("secret")
	h.Auth = v
	code, _ := post(t, h, "Bearer not-a-jwt", `{"sessionKey":"k","action":"foo"}`)
	if code != http.StatusUnauthorized {
		t.Fatalf("bad jwt: %d", code)
	}
	tok, _ := v.Issue("k", time.Minute)
	code, _ = post(t, h, "Bearer "+tok, `{"sessionKey":"k","action":"foo"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("valid jwt should reach dispatch: %d", code)
	}
}
