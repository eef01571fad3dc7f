package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWithHome_HomeFrom(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	if _, ok := HomeFrom(ctx); ok {
		t.Fatal("expected no home in empty context")
	}
	ctx = WithHome(ctx, "/foo/bar")
	got, ok := HomeFrom(ctx)
	if !ok || got != "/foo/bar" {
		t.Fatalf("HomeFrom: got %q, ok=%v; want /foo/bar, true", got, ok)
	}
}

func TestMustHomeFrom(t *testing.T) {
	t.Parallel()
	ctx := WithHome(context.Background(), "/missioncontrol")
	if got := MustHomeFrom(ctx); got != "/missioncontrol" {
		t.Fatalf("MustHomeFrom: got %q", got)
	}
}

func TestMustHomeFrom_panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic when home missing")
		}
	}()
	MustHomeFrom(context.Background())
}

func TestResolveHome_override(t *testing.T) {
	t.Parallel()
	got, err := ResolveHome("/custom/home")
	if err != nil {
		t.Fatalf("ResolveHome: %v", err)
	}
	if got != filepath.Clean("/custom/home") {
		t.Fatalf("ResolveHome: got %q", got)
	}
}

func TestResolveHome_env(t *testing.T) {
	t.Setenv("MISSIONCONTROL_HOME", "/env/home")
	got, err := ResolveHome("")
	if err != nil {
		t.Fatalf("ResolveHome: %v", err)
	}
	if got != filepath.Clean("/env/home") {
		t.Fatalf("ResolveHome from env: got %q", got)
	}
}

func TestResolveHome_default(t *testing.T) {
	t.Setenv("MISSIONCONTROL_HOME", "")
	// Override empty so we use UserHomeDir
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("UserHomeDir: %v", err)
	}
	got, err := ResolveHome("")
	if err != nil {
		t.Fatalf("ResolveHome: %v", err)
	}
	want := filepath.Join(home, ".missioncontrol")
	if got != want {
		t.Fatalf("ResolveHome default: got %q, want %q", got, want)
	}
}

func TestLoad_defaultsWithoutFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MISSIONCONTROL_API_KEY", "")
	t.Setenv("MISSIONCONTROL_WEBHOOK_AUTH", "")
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 3548 || cfg.Database.Driver != "sqlite" || cfg.Webhook.Auth != "bearer" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.Scheduler.StaleAfter != 15*time.Minute {
		t.Fatalf("StaleAfter: %v", cfg.Scheduler.StaleAfter)
	}
}

func TestLoad_fileAndEnvOverride(t *testing.T) {
	home := t.TempDir()
	data := `server:
  port: 9000
  api_key: from-file
tasks:
  strict_transitions: true
scheduler:
  stale_after: 2m
log:
  format: json
`
	if err := os.WriteFile(filepath.Join(home, FileName), []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MISSIONCONTROL_API_KEY", "from-env")
	t.Setenv("MISSIONCONTROL_WEBHOOK_AUTH", "")
	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port: %d", cfg.Server.Port)
	}
	if cfg.Server.APIKey != "from-env" {
		t.Errorf("APIKey: env should win, got %q", cfg.Server.APIKey)
	}
	if !cfg.Tasks.StrictTransitions || cfg.Log.Format != "json" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Scheduler.StaleAfter != 2*time.Minute {
		t.Errorf("StaleAfter: %v", cfg.Scheduler.StaleAfter)
	}
	// unset keys keep defaults
	if cfg.Scheduler.DeliveryBatch != 50 {
		t.Errorf("DeliveryBatch: %d", cfg.Scheduler.DeliveryBatch)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		mut  func(*Config)
		ok   bool
	}{
		{"defaults", func(*Config) {}, true},
		{"postgres", func(c *Config) { c.Database.Driver = "postgres" }, true},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, false},
		{"token without value", func(c *Config) { c.Webhook.Auth = "token" }, false},
		{"token", func(c *Config) { c.Webhook.Auth = "token"; c.Webhook.Token = "t" }, true},
		{"jwt without secret", func(c *Config) { c.Webhook.Auth = "jwt" }, false},
		{"unknown auth", func(c *Config) { c.Webhook.Auth = "basic" }, false},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, false},
	}
	for _, tc := range cases {
		cfg := Defaults()
		tc.mut(&cfg)
		if err := cfg.Validate(); (err == nil) != tc.ok {
			t.Errorf("%s: Validate() = %v", tc.name, err)
		}
	}
}

func TestWriteThenLoad(t *testing.T) {
	t.Setenv("MISSIONCONTROL_API_KEY", "")
	t.Setenv("MISSIONCONTROL_WEBHOOK_AUTH", "")
	home := filepath.Join(t.TempDir(), "home")
	cfg := Defaults()
	cfg.Server.Port = 4000
	cfg.Notify.SlackWebhookURL = "https://hooks.example/x"
	if err := Write(home, cfg); err != nil {
		t.Fatalf("Write: %v", err)
	}
	t.Setenv("SLACK_WEBHOOK_URL", "")
	got, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Server.Port != 4000 || got.Notify.SlackWebhookURL != "https://hooks.example/x" {
		t.Fatalf("round trip: %+v", got)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	body := "# comment\n\nMC_TEST_A=one\nMC_TEST_B = \"two\"\nnot-a-pair\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MC_TEST_A", "")
	t.Setenv("MC_TEST_B", "")
	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if os.Getenv("MC_TEST_A") != "one" || os.Getenv("MC_TEST_B") != "two" {
		t.Fatalf("env: A=%q B=%q", os.Getenv("MC_TEST_A"), os.Getenv("MC_TEST_B"))
	}
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("missing file: expected error")
	}
}
