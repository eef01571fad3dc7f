// Package cli implements the missioncontrol command tree.
package cli

import (
	"os"

	"github.com/ankittk/missioncontrol/internal/config"
	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	var (
		homeOverride string
		envFile      string
	)

	cmd := &cobra.Command{
		Use:          "missioncontrol",
		Short:        "Mission Control: coordination dashboard backend for a squad of AI agents",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := config.LoadEnvFile(envFile); err != nil {
					return err
				}
			}
			home, err := config.ResolveHome(homeOverride)
			if err != nil {
				return err
			}
			cmd.SetContext(config.WithHome(cmd.Context(), home))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&homeOverride, "home", "", "Override home directory (default: ~/.missioncontrol, env: "+config.HomeEnv+")")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load env vars from file (KEY=VALUE per line) before running")
	cmd.PersistentFlags().StringP("output", "o", "table", "Output format for list commands: table or json")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newSeedCmd())

	cmd.AddCommand(newAgentCmd())
	cmd.AddCommand(newTaskCmd())
	cmd.AddCommand(newMessageCmd())
	cmd.AddCommand(newActivityCmd())
	cmd.AddCommand(newDocCmd())
	cmd.AddCommand(newNotifyCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newNukeCmd())

	// Hidden internal subcommand used by `missioncontrol serve` for background mode.
	cmd.AddCommand(newDaemonCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}

	return cmd
}
