// Package daemon runs the Mission Control server process: pid/lock files, logging,
// metrics, background jobs, and graceful shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ankittk/missioncontrol/internal/httpapi"
	"github.com/ankittk/missioncontrol/internal/otel"
	"github.com/ankittk/missioncontrol/internal/store"
	"github.com/ankittk/missioncontrol/internal/webhook"
)

var errNotRunning = errors.New("missioncontrol is not running")

// ServerOptions maps the loaded config onto httpapi options.
func ServerOptions(opts StartOptions) (httpapi.ServerOptions, error) {
	cfg := opts.Config
	auth, err := webhook.NewAuthenticator(cfg.Webhook.Auth, cfg.Webhook.Token, cfg.Webhook.JWTSecret)
	if err != nil {
		return httpapi.ServerOptions{}, err
	}
	return httpapi.ServerOptions{
		Home:              opts.Home,
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port),
		Dev:               cfg.Server.Dev,
		APIKey:            cfg.Server.APIKey,
		DBDriver:          cfg.Database.Driver,
		DBURL:             cfg.Database.URL,
		WebhookAuth:       auth,
		StrictTransitions: cfg.Tasks.StrictTransitions,
		SlackWebhookURL:   cfg.Notify.SlackWebhookURL,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		Seed:              cfg.Server.Seed,
		Logger:            opts.Logger,
	}, nil
}

// StartForeground serves until ctx is cancelled, then shuts the server down gracefully.
func StartForeground(ctx context.Context, opts StartOptions) error {
	if opts.Home == "" {
		return errors.New("home is required")
	}
	if opts.Config.Server.Port == 0 {
		opts.Config.Server.Port = 3548
	}
	if opts.Logger == nil {
		opts.Logger = NewLogger(opts.Config.Log, os.Stderr)
	}
	logger := opts.Logger

	if err := os.MkdirAll(protectedDir(opts.Home), 0o755); err != nil {
		return err
	}

	lock, err := acquireLock(lockPath(opts.Home))
	if err != nil {
		return err
	}
	defer lock.release()

	startPprof(ctx, opts.Config.Server.PprofAddr, logger)

	// SQLite only; Postgres migrates on connect.
	if opts.Config.Database.Driver != "postgres" {
		if err := store.EnsureSchema(opts.Home); err != nil {
			return err
		}
	}

	if err := checkPortAvailable(opts.Config.Server.Port); err != nil {
		return err
	}

	srvOpts, err := ServerOptions(opts)
	if err != nil {
		return err
	}

	pid := os.Getpid()
	if err := os.WriteFile(pidPath(opts.Home), []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return err
	}
	_ = os.WriteFile(addrPath(opts.Home), []byte(srvOpts.Addr+"\n"), 0o644)
	defer func() {
		_ = os.Remove(pidPath(opts.Home))
		_ = os.Remove(addrPath(opts.Home))
	}()

	if opts.Config.Server.Otel {
		metricsHandler, err := otel.InitMeterProvider(ctx, httpapi.ServiceName)
		if err != nil {
			logger.Warn("otel init failed, using plain metrics", "err", err)
		} else {
			srvOpts.MetricsHandler = metricsHandler
			srvOpts.UseOtelHTTP = true
		}
	}
	app, err := httpapi.NewApp(srvOpts)
	if err != nil {
		return err
	}
	if srvOpts.MetricsHandler != nil {
		if err := otel.InitMetricsWithGauges(ctx, otel.DomainGauges{Tasks: app.Service.TaskCounts, Agents: app.Service.AgentCounts}); err != nil {
			logger.Warn("otel instruments init failed", "err", err)
		}
	}

	sched, err := NewScheduler(app.Service, opts.Config.Scheduler, logger)
	if err != nil {
		_ = app.Store.Close()
		return fmt.Errorf("scheduler: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	logger.Info("daemon starting", "addr", srvOpts.Addr, "home", opts.Home, "db", opts.Config.Database.Driver, "jobs", sched.Jobs())
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Server.Shutdown(shutdownCtx)
		logger.Info("daemon stopped")
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
}

// StartBackground re-executes the binary as a detached "daemon" child and waits briefly for its pid file.
func StartBackground(ctx context.Context, opts StartOptions) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(protectedDir(opts.Home), 0o755); err != nil {
		return 0, err
	}
	if st, _ := Status(ctx, opts.Home); st.Running {
		return 0, fmt.Errorf("missioncontrol already running (pid %d)", st.PID)
	}

	stderr, err := os.OpenFile(LogPath(opts.Home), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	// Kept open for child lifetime; closing here may break writes on some platforms.

	cmd := exec.Command(exe, daemonArgs(opts)...)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr
	setDaemonSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := Status(ctx, opts.Home); st.Running {
			return st.PID, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cmd.Process.Pid, nil
}

func daemonArgs(opts StartOptions) []string {
	args := []string{
		"daemon",
		"--home", opts.Home,
		"--port", strconv.Itoa(opts.Config.Server.Port),
		"--db-driver", opts.Config.Database.Driver,
	}
	if opts.Config.Server.Dev {
		args = append(args, "--dev")
	}
	if opts.Config.Server.Seed {
		args = append(args, "--seed")
	}
	if opts.Config.Server.PprofAddr != "" {
		args = append(args, "--pprof", opts.Config.Server.PprofAddr)
	}
	if !opts.Config.Server.Otel {
		args = append(args, "--otel=false")
	}
	if opts.Config.Tasks.StrictTransitions {
		args = append(args, "--strict-transitions")
	}
	if opts.Config.Log.Level != "" {
		args = append(args, "--log-level", opts.Config.Log.Level)
	}
	if opts.EnvFile != "" {
		args = append(args, "--env-file", opts.EnvFile)
	}
	return args
}

// Stop sends SIGTERM to the running daemon and waits up to 15s before killing it.
func Stop(ctx context.Context, home string) (bool, error) {
	st, err := Status(ctx, home)
	if err != nil {
		return false, err
	}
	if !st.Running {
		return false, nil
	}
	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return false, errNotRunning
	}
	if err := signalTerm(proc); err != nil {
		return false, err
	}

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if st2, _ := Status(ctx, home); !st2.Running {
			return true, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	_ = proc.Kill()
	return true, nil
}

// Status reads the pid file and checks that the process is alive. A stale pid file is removed.
func Status(ctx context.Context, home string) (StatusInfo, error) {
	pb, err := os.ReadFile(pidPath(home))
	if err != nil {
		return StatusInfo{Running: false}, nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pb)))
	if err != nil || pid <= 0 {
		return StatusInfo{Running: false}, nil
	}
	if !processExists(pid) {
		_ = os.Remove(pidPath(home))
		return StatusInfo{Running: false}, nil
	}
	addr := ""
	if ab, err := os.ReadFile(addrPath(home)); err == nil {
		addr = strings.TrimSpace(string(ab))
	}
	if addr == "" {
		addr = "unknown"
	}
	return StatusInfo{Running: true, PID: pid, Addr: addr}, nil
}

func checkPortAvailable(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf("port %d is already in use", port)
	}
	_ = ln.Close()
	return nil
}
