package cli

import (
	"fmt"
	"time"

	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/internal/notify"
	"github.com/ankittk/missioncontrol/pkg/models"
	"github.com/spf13/cobra"
)

func newNotifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Inspect and deliver mention notifications",
	}
	var q mission.NotificationQuery
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			notes, err := svc.ListNotifications(cmd.Context(), q)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(notes))
			for _, n := range notes {
				rows = append(rows, []string{n.CreatedAt.Local().Format(time.DateTime), n.MentionedAgentID, fmt.Sprint(n.Delivered), truncate(n.Content, 50)})
			}
			return render(cmd, notes, []string{"Created", "Agent", "Delivered", "Content"}, rows)
		},
	}
	list.Flags().StringVar(&q.AgentID, "agent", "", "Mentioned agent id")
	list.Flags().BoolVar(&q.UndeliveredOnly, "undelivered", false, "Only pending notifications")
	list.Flags().IntVar(&q.Limit, "limit", 0, "Max entries")
	cmd.AddCommand(list)

	var limit int
	deliver := &cobra.Command{
		Use:   "deliver",
		Short: "Deliver pending notifications now (to Slack when configured)",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			for _, c := range notify.FromEnv(cfg.Notify.SlackWebhookURL).Channels() {
				svc.Notifiers = append(svc.Notifiers, c)
			}
			n, err := svc.DeliverNotifications(cmd.Context(), limit)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Delivered %d notification(s)\n", n)
			return nil
		},
	}
	deliver.Flags().IntVar(&limit, "limit", 0, "Max notifications to deliver")
	cmd.AddCommand(deliver)
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show agent and task counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			s, err := svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), s)
			}
			pairs := [][2]string{
				{"Agents", fmt.Sprint(s.TotalAgents)},
				{"Tasks", fmt.Sprint(s.TotalTasks)},
				{"Open tasks", fmt.Sprint(s.OpenTasks)},
				{"Needs attention", fmt.Sprint(s.NeedsAttention)},
			}
			if err := renderDetail(cmd, s, pairs); err != nil {
				return err
			}
			rows := make([][]string, 0, len(s.Tasks))
			for _, status := range models.TaskStatuses {
				rows = append(rows, []string{status, fmt.Sprint(s.Tasks[status])})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Task status", "Count"}, rows))
			return nil
		},
	}
}
