package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/pkg/models"
	"github.com/spf13/cobra"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agents",
	}
	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentRegisterCmd())
	cmd.AddCommand(newAgentStatusCmd())
	cmd.AddCommand(newAgentReportCmd())
	return cmd
}

func agentRows(agents []models.Agent) [][]string {
	rows := make([][]string, 0, len(agents))
	for _, a := range agents {
		rows = append(rows, []string{a.Emoji + " " + a.Name, a.Role, a.Status, deref(a.CurrentTaskID), a.LastHeartbeat.Local().Format(time.DateTime), a.ID})
	}
	return rows
}

var agentHeaders = []string{"Agent", "Role", "Status", "Current task", "Last heartbeat", "ID"}

func newAgentListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			agents, err := svc.ListAgents(cmd.Context(), status)
			if err != nil {
				return err
			}
			return render(cmd, agents, agentHeaders, agentRows(agents))
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (idle, active, blocked)")
	return cmd
}

func newAgentRegisterCmd() *cobra.Command {
	var in mission.AgentInput
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an agent (starts idle)",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			a, err := svc.RegisterAgent(cmd.Context(), in)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), a)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s) id=%s\n", a.Name, a.Role, a.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "Agent name")
	cmd.Flags().StringVar(&in.Role, "role", "", "Agent role")
	cmd.Flags().StringVar(&in.SessionKey, "session-key", "", "Runtime session key (e.g. agent:developer:main)")
	cmd.Flags().StringVar(&in.Emoji, "emoji", "", "Display emoji")
	cmd.Flags().StringVar(&in.Color, "color", "", "Display color class")
	cmd.Flags().StringVar(&in.Description, "description", "", "Description")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("session-key")
	return cmd
}

func newAgentStatusCmd() *cobra.Command {
	var task string
	cmd := &cobra.Command{
		Use:   "status <agent-id> <idle|active|blocked>",
		Short: "Set an agent's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			var current *string
			if cmd.Flags().Changed("task") {
				current = &task
			}
			a, err := svc.UpdateAgentStatus(cmd.Context(), args[0], args[1], current)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", a.Name, a.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "Current task id")
	return cmd
}

func newAgentReportCmd() *cobra.Command {
	var sessionKey, status, message string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report status for a session key, creating the agent if unknown",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionKey == "" || status == "" {
				return errors.New("--session-key and --status are required")
			}
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			a, err := svc.ReportStatus(cmd.Context(), sessionKey, status, message)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now %s\n", a.Name, a.ID, a.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionKey, "session-key", "", "Runtime session key")
	cmd.Flags().StringVar(&status, "status", "", "New status")
	cmd.Flags().StringVar(&message, "message", "", "Optional message logged as an extra activity")
	return cmd
}
