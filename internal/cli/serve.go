package cli

import (
	"fmt"

	"github.com/ankittk/missioncontrol/internal/config"
	"github.com/ankittk/missioncontrol/internal/daemon"
	"github.com/spf13/cobra"
)

// serverFlags are the flags shared by serve and the hidden daemon command. Only flags
// the user set override the loaded config.
type serverFlags struct {
	port      int
	dev       bool
	pprofAddr string
	dbDriver  string
	dbURL     string
	otel      bool
	seed      bool
	strict    bool
	logLevel  string
}

func (f *serverFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.port, "port", 3548, "HTTP port")
	cmd.Flags().BoolVar(&f.dev, "dev", false, "Enable dev mode (CORS for a dashboard on another origin)")
	cmd.Flags().StringVar(&f.pprofAddr, "pprof", "", "Enable pprof on address (e.g. 127.0.0.1:6060)")
	cmd.Flags().StringVar(&f.dbDriver, "db-driver", "sqlite", "Store driver: sqlite or postgres")
	cmd.Flags().StringVar(&f.dbURL, "db-url", "", "DB connection string (for postgres; or set DATABASE_URL)")
	cmd.Flags().BoolVar(&f.otel, "otel", true, "Enable OpenTelemetry metrics (Prometheus exporter on /metrics)")
	cmd.Flags().BoolVar(&f.seed, "seed", false, "Load the starter squad and backlog at startup")
	cmd.Flags().BoolVar(&f.strict, "strict-transitions", false, "Reject task status changes outside the board flow")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func (f *serverFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.Server.Port = f.port
	}
	if changed("dev") {
		cfg.Server.Dev = f.dev
	}
	if changed("pprof") {
		cfg.Server.PprofAddr = f.pprofAddr
	}
	if changed("db-driver") {
		cfg.Database.Driver = f.dbDriver
	}
	if changed("db-url") {
		cfg.Database.URL = f.dbURL
	}
	if changed("otel") {
		cfg.Server.Otel = f.otel
	}
	if changed("seed") {
		cfg.Server.Seed = f.seed
	}
	if changed("strict-transitions") {
		cfg.Tasks.StrictTransitions = f.strict
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
}

func startOptions(cmd *cobra.Command, flags *serverFlags) (daemon.StartOptions, error) {
	home, cfg, err := loadConfig(cmd)
	if err != nil {
		return daemon.StartOptions{}, err
	}
	flags.apply(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return daemon.StartOptions{}, err
	}
	envFile, _ := cmd.Flags().GetString("env-file")
	return daemon.StartOptions{Home: home, Config: cfg, EnvFile: envFile}, nil
}

func newServeCmd() *cobra.Command {
	var (
		flags      serverFlags
		foreground bool
	)
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the Mission Control server (webhook, API, SSE stream)",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := startOptions(cmd, &flags)
			if err != nil {
				return err
			}
			url := fmt.Sprintf("http://localhost:%d", opts.Config.Server.Port)
			if foreground {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting Mission Control in foreground on %s\n", url)
				return daemon.StartForeground(cmd.Context(), opts)
			}
			pid, err := daemon.StartBackground(cmd.Context(), opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Mission Control started (pid %d)\n", pid)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "API: %s/api  Webhook: %s/webhook  Stream: %s/stream\n", url, url, url)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run in foreground (do not daemonize)")
	return cmd
}

func newDaemonCmd() *cobra.Command {
	var flags serverFlags
	cmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Internal: run daemon process",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := startOptions(cmd, &flags)
			if err != nil {
				return err
			}
			return daemon.StartForeground(cmd.Context(), opts)
		},
	}
	flags.register(cmd)
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running Mission Control daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			stopped, err := daemon.Stop(cmd.Context(), home)
			if err != nil {
				return err
			}
			if !stopped {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Mission Control is not running")
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show Mission Control daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			st, err := daemon.Status(cmd.Context(), home)
			if err != nil {
				return err
			}
			if !st.Running {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Mission Control not running")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Mission Control running (pid %d, addr %s)\n", st.PID, st.Addr)
			return nil
		},
	}
}
