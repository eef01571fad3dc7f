package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Post and read task comments",
	}
	cmd.AddCommand(newMessagePostCmd())
	cmd.AddCommand(newMessageListCmd())
	return cmd
}

func newMessagePostCmd() *cobra.Command {
	var from, content string
	cmd := &cobra.Command{
		Use:   "post <task-id>",
		Short: "Comment on a task; @Name mentions queue notifications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			m, err := svc.PostMessage(cmd.Context(), args[0], from, content)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), m)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Posted message %s\n", m.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Author agent id")
	cmd.Flags().StringVar(&content, "content", "", "Comment text")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func newMessageListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <task-id>",
		Short: "List a task's comments, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			msgs, err := svc.ListMessages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(msgs))
			for _, m := range msgs {
				rows = append(rows, []string{m.CreatedAt.Local().Format(time.DateTime), m.FromAgentID, truncate(m.Content, 60)})
			}
			return render(cmd, msgs, []string{"Posted", "From", "Comment"}, rows)
		},
	}
}

func newActivityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Read the activity feed",
	}
	var (
		agentID string
		limit   int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List activities, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			acts, err := svc.ListActivities(cmd.Context(), limit)
			if agentID != "" {
				acts, err = svc.ListAgentActivities(cmd.Context(), agentID, limit)
			}
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(acts))
			for _, a := range acts {
				rows = append(rows, []string{a.Timestamp.Local().Format(time.DateTime), a.Type, a.AgentID, truncate(a.Message, 60)})
			}
			return render(cmd, acts, []string{"When", "Type", "Agent", "Message"}, rows)
		},
	}
	list.Flags().StringVar(&agentID, "agent", "", "Only this agent's activities")
	list.Flags().IntVar(&limit, "limit", 0, "Max entries (default 50, or 20 with --agent)")
	cmd.AddCommand(list)
	return cmd
}
