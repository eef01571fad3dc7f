package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ankittk/missioncontrol/internal/config"
	"github.com/ankittk/missioncontrol/internal/httpapi"
	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/pkg/models"
)

func TestStartForeground_emptyHome(t *testing.T) {
	ctx := context.Background()
	err := StartForeground(ctx, StartOptions{Home: ""})
	if err == nil {
		t.Fatal("StartForeground empty home: expected error")
	}
}

func testApp(t *testing.T) *httpapi.App {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	app, err := httpapi.NewApp(httpapi.ServerOptions{Home: home, Addr: ":0"})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { _ = app.Store.Close() })
	return app
}

func TestServerOptions_fromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.Port = 4100
	cfg.Server.APIKey = "k"
	cfg.Tasks.StrictTransitions = true
	cfg.Webhook = config.WebhookConfig{Auth: "token", Token: "secret"}
	opts, err := ServerOptions(StartOptions{Home: "/h", Config: cfg})
	if err != nil {
		t.Fatalf("ServerOptions: %v", err)
	}
	if opts.Addr != "0.0.0.0:4100" || opts.APIKey != "k" || !opts.StrictTransitions || opts.Home != "/h" {
		t.Fatalf("opts: %+v", opts)
	}
	if opts.WebhookAuth == nil || opts.WebhookAuth.Authenticate("secret") != nil || opts.WebhookAuth.Authenticate("other") == nil {
		t.Fatal("token authenticator not wired")
	}

	cfg.Webhook = config.WebhookConfig{Auth: "nope"}
	if _, err := ServerOptions(StartOptions{Home: "/h", Config: cfg}); err == nil {
		t.Fatal("unknown webhook auth: expected error")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	log.Info("hidden")
	log.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be filtered at warn level: %s", out)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &rec); err != nil {
		t.Fatalf("json handler output: %v (%s)", err, out)
	}
	if rec["msg"] != "shown" || rec["k"] != "v" {
		t.Errorf("record: %v", rec)
	}
	if parseLevel("DEBUG") != -4 || parseLevel("") != 0 {
		t.Error("parseLevel")
	}
}

func TestScheduler_jobsFromConfig(t *testing.T) {
	app := testApp(t)
	s, err := NewScheduler(app.Service, config.Defaults().Scheduler, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if s.Jobs() != 2 {
		t.Fatalf("Jobs = %d, want 2", s.Jobs())
	}
	s, err = NewScheduler(app.Service, config.SchedulerConfig{}, nil)
	if err != nil || s.Jobs() != 0 {
		t.Fatalf("empty specs: jobs=%d err=%v", s.Jobs(), err)
	}
	if _, err := NewScheduler(app.Service, config.SchedulerConfig{DeliverNotifications: "not a spec"}, nil); err == nil {
		t.Fatal("bad cron spec: expected error")
	}
}

type eventCounter struct {
	mu    sync.Mutex
	types map[string]int
}

func (c *eventCounter) PublishJSON(v any) {
	ev, _ := v.(map[string]any)
	typ, _ := ev["type"].(string)
	c.mu.Lock()
	c.types[typ]++
	c.mu.Unlock()
}

func TestScheduler_deliverAndSweep(t *testing.T) {
	app := testApp(t)
	ctx := context.Background()
	svc := app.Service

	author, err := svc.RegisterAgent(ctx, mission.AgentInput{Name: "Jarvis", Role: "Lead", SessionKey: "agent:main:main"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RegisterAgent(ctx, mission.AgentInput{Name: "Loki", Role: "Writer", SessionKey: "agent:content-writer:main"}); err != nil {
		t.Fatal(err)
	}
	task, err := svc.CreateTask(ctx, mission.TaskInput{Title: "Copy"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.PostMessage(ctx, task.ID, author.ID, "@Loki draft please"); err != nil {
		t.Fatal(err)
	}

	events := &eventCounter{types: map[string]int{}}
	svc.Publisher = events

	s, err := NewScheduler(svc, config.SchedulerConfig{DeliveryBatch: 10, StaleAfter: time.Nanosecond}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.deliver(ctx); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	pending, _ := svc.ListNotifications(ctx, mission.NotificationQuery{UndeliveredOnly: true})
	if len(pending) != 0 {
		t.Fatalf("pending after deliver: %d", len(pending))
	}

	time.Sleep(2 * time.Millisecond)
	if err := s.sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if events.types["notification"] != 1 || events.types["agent_stale"] != 2 {
		t.Fatalf("events: %v", events.types)
	}
	// sweep reports only
	agents, _ := svc.ListAgents(ctx, "")
	for _, a := range agents {
		if a.Status != models.AgentIdle {
			t.Errorf("agent %s status changed to %s", a.Name, a.Status)
		}
	}
}

func TestStatus_stalePidFile(t *testing.T) {
	home := t.TempDir()
	if err := os.MkdirAll(protectedDir(home), 0o755); err != nil {
		t.Fatal(err)
	}
	st, err := Status(context.Background(), home)
	if err != nil || st.Running {
		t.Fatalf("no pid file: %+v %v", st, err)
	}
	if err := os.WriteFile(pidPath(home), []byte("not-a-pid\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if st, _ := Status(context.Background(), home); st.Running {
		t.Fatal("garbage pid reported running")
	}
	// Our own pid is alive.
	if err := os.WriteFile(pidPath(home), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	st, _ = Status(context.Background(), home)
	if !st.Running || st.PID != os.Getpid() || st.Addr != "unknown" {
		t.Fatalf("self pid: %+v", st)
	}
}

func TestAcquireLock_exclusive(t *testing.T) {
	path := lockPath(t.TempDir())
	l1, err := acquireLock(path)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	_, err = acquireLock(path)
	if err == nil || !strings.Contains(err.Error(), "pid "+strconv.Itoa(os.Getpid())) {
		t.Fatalf("second lock: want holder pid in error, got %v", err)
	}
	l1.release()
	l2, err := acquireLock(path)
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	l2.release()
}

func TestDaemonArgs(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.Dev = true
	cfg.Server.PprofAddr = "127.0.0.1:6060"
	args := strings.Join(daemonArgs(StartOptions{Home: "/h", Config: cfg, EnvFile: ".env"}), " ")
	for _, want := range []string{"daemon", "--home /h", "--port 3548", "--db-driver sqlite", "--dev", "--pprof 127.0.0.1:6060", "--env-file .env"} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

func TestStartForeground_shutdownOnCancel(t *testing.T) {
	home := t.TempDir()
	cfg := config.Defaults()
	cfg.Server.Port = freePort(t)
	cfg.Server.Otel = false
	cfg.Scheduler = config.SchedulerConfig{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- StartForeground(ctx, StartOptions{Home: home, Config: cfg, Logger: NewLogger(cfg.Log, &bytes.Buffer{})}) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := Status(ctx, home); st.Running {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if st, _ := Status(ctx, home); !st.Running {
		cancel()
		t.Fatalf("daemon did not report running: %v", <-done)
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("StartForeground: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown timed out")
	}
	if _, err := os.Stat(pidPath(home)); !os.IsNotExist(err) {
		t.Fatalf("pid file left behind: %v", err)
	}
}
