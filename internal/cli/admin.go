package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ankittk/missioncontrol/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check config, home directory and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			var problems []string

			if _, err := config.Load(home); err != nil {
				problems = append(problems, "config: "+err.Error())
			}
			if err := os.MkdirAll(home, 0o755); err != nil {
				problems = append(problems, "home not writable: "+err.Error())
			}
			if len(problems) == 0 {
				svc, closeFn, err := openService(cmd)
				if err != nil {
					problems = append(problems, "database: "+err.Error())
				} else {
					if _, err := svc.Stats(cmd.Context()); err != nil {
						problems = append(problems, "database query: "+err.Error())
					}
					closeFn()
				}
			}

			if len(problems) > 0 {
				for _, p := range problems {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), p)
				}
				return errors.New("doctor checks failed")
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialise config.yaml",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (file + env)",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Server.APIKey != "" {
				cfg.Server.APIKey = "<redacted>"
			}
			if cfg.Webhook.Token != "" {
				cfg.Webhook.Token = "<redacted>"
			}
			if cfg.Webhook.JWTSecret != "" {
				cfg.Webhook.JWTSecret = "<redacted>"
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer func() { _ = enc.Close() }()
			return enc.Encode(cfg)
		},
	})
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml to the home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			path := filepath.Join(home, config.FileName)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Write(home, config.Defaults()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config.yaml")
	cmd.AddCommand(initCmd)
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the starter squad and backlog (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			res, err := svc.Seed(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Agents: %d created, %d already present\n", res.Agents.Created, res.Agents.Skipped)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Tasks:  %d created, %d already present\n", res.Tasks.Created, res.Tasks.Skipped)
			return nil
		},
	}
}

func newNukeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nuke",
		Short: "Destroy all Mission Control state under the home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "WARNING: this will permanently delete all Mission Control data.")
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Directory: %s\n", home)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), `Type "delete everything" to confirm:`)

			in := bufio.NewReader(cmd.InOrStdin())
			line, err := in.ReadString('\n')
			if err != nil && !strings.Contains(err.Error(), "EOF") {
				return err
			}
			if strings.TrimSpace(line) != "delete everything" {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			if err := os.RemoveAll(home); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Deleted.")
			return nil
		},
	}
}
