package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up under the home directory.
const FileName = "config.yaml"

// Config is the on-disk configuration. Zero values are filled by Defaults.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Notify    NotifyConfig    `yaml:"notify"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port         int    `yaml:"port"`
	Dev          bool   `yaml:"dev"`
	APIKey       string `yaml:"api_key"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
	Otel         bool   `yaml:"otel"`
	PprofAddr    string `yaml:"pprof_addr"`
	Seed         bool   `yaml:"seed"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	URL    string `yaml:"url"`
}

// WebhookConfig selects how POST /webhook authenticates callers.
type WebhookConfig struct {
	Auth      string `yaml:"auth"` // bearer (default), token, jwt
	Token     string `yaml:"token"`
	JWTSecret string `yaml:"jwt_secret"`
}

type TasksConfig struct {
	StrictTransitions bool `yaml:"strict_transitions"`
}

type NotifyConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
}

// SchedulerConfig holds cron specs (robfig/cron, with seconds) for background jobs.
// An empty spec disables the job.
type SchedulerConfig struct {
	DeliverNotifications string        `yaml:"deliver_notifications"`
	StaleSweep           string        `yaml:"stale_sweep"`
	StaleAfter           time.Duration `yaml:"stale_after"`
	DeliveryBatch        int           `yaml:"delivery_batch"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 3548,
			Otel: true,
		},
		Database: DatabaseConfig{Driver: "sqlite"},
		Webhook:  WebhookConfig{Auth: "bearer"},
		Scheduler: SchedulerConfig{
			DeliverNotifications: "*/10 * * * * *",
			StaleSweep:           "0 * * * * *",
			StaleAfter:           15 * time.Minute,
			DeliveryBatch:        50,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads home/config.yaml over Defaults and then applies environment overrides.
// A missing file is not an error.
func Load(home string) (Config, error) {
	cfg := Defaults()
	if home != "" {
		path := filepath.Join(home, FileName)
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Server.APIKey, "MISSIONCONTROL_API_KEY")
	set(&c.Database.URL, "DATABASE_URL")
	set(&c.Webhook.Auth, "MISSIONCONTROL_WEBHOOK_AUTH")
	set(&c.Webhook.Token, "MISSIONCONTROL_WEBHOOK_TOKEN")
	set(&c.Webhook.JWTSecret, "MISSIONCONTROL_WEBHOOK_JWT_SECRET")
	set(&c.Notify.SlackWebhookURL, "SLACK_WEBHOOK_URL")
	set(&c.Log.Level, "MISSIONCONTROL_LOG_LEVEL")
}

// Validate rejects settings that cannot work together.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
	}
	switch c.Webhook.Auth {
	case "", "bearer":
	case "token":
		if c.Webhook.Token == "" {
			return errors.New("webhook.auth=token requires webhook.token")
		}
	case "jwt":
		if c.Webhook.JWTSecret == "" {
			return errors.New("webhook.auth=jwt requires webhook.jwt_secret")
		}
	default:
		return fmt.Errorf("webhook.auth: unknown mode %q", c.Webhook.Auth)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// Write saves cfg as YAML to home/config.yaml.
func Write(home string, cfg Config) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(home, FileName), data, 0o600)
}

// LoadEnvFile sets environment variables from a KEY=VALUE file. Blank lines and # comments are skipped.
func LoadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.Index(line, "=")
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		value := strings.Trim(strings.TrimSpace(line[i+1:]), `"`)
		if key != "" {
			_ = os.Setenv(key, value)
		}
	}
	return sc.Err()
}
