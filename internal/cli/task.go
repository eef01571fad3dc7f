package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/spf13/cobra"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskCreateCmd())
	cmd.AddCommand(newTaskShowCmd())
	cmd.AddCommand(newTaskStatusCmd())
	cmd.AddCommand(newTaskAssignCmd())
	return cmd
}

func newTaskListCmd() *cobra.Command {
	var q mission.TaskQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			tasks, err := svc.ListTasks(cmd.Context(), q)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(tasks))
			for _, t := range tasks {
				rows = append(rows, []string{truncate(t.Title, 40), t.Status, t.Priority, fmt.Sprint(len(t.AssigneeIDs)), t.UpdatedAt.Local().Format(time.DateTime), t.ID})
			}
			return render(cmd, tasks, []string{"Title", "Status", "Priority", "Assignees", "Updated", "ID"}, rows)
		},
	}
	cmd.Flags().StringVar(&q.Status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&q.AssigneeID, "assignee", "", "Filter by assignee agent id")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "Max tasks to list")
	return cmd
}

func newTaskCreateCmd() *cobra.Command {
	var in mission.TaskInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task (inbox, or assigned when --assignee is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			t, err := svc.CreateTask(cmd.Context(), in)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), t)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created task %q (%s) id=%s\n", t.Title, t.Status, t.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "Task title")
	cmd.Flags().StringVar(&in.Description, "description", "", "Task description")
	cmd.Flags().StringVar(&in.Priority, "priority", "", "Priority: low, medium, high, urgent")
	cmd.Flags().StringVar(&in.Status, "status", "", "Initial status")
	cmd.Flags().StringSliceVar(&in.AssigneeIDs, "assignee", nil, "Assignee agent ids (repeatable or comma separated)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTaskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task and its comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			d, err := svc.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := renderDetail(cmd, d, [][2]string{
				{"Title", d.Title},
				{"Status", d.Status},
				{"Priority", d.Priority},
				{"Assignees", strings.Join(d.AssigneeIDs, ", ")},
				{"Description", d.Description},
				{"Created", d.CreatedAt.Local().Format(time.DateTime)},
				{"Updated", d.UpdatedAt.Local().Format(time.DateTime)},
			}); err != nil || jsonOutput(cmd) {
				return err
			}
			if len(d.Comments) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(d.Comments))
			for _, m := range d.Comments {
				rows = append(rows, []string{m.CreatedAt.Local().Format(time.DateTime), m.FromAgentID, truncate(m.Content, 60)})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Posted", "From", "Comment"}, rows))
			return nil
		},
	}
}

func newTaskStatusCmd() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Set a task's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			t, err := svc.UpdateTaskStatus(cmd.Context(), args[0], args[1], agentID)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %q is now %s\n", t.Title, t.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "Agent id the change is attributed to")
	return cmd
}

func newTaskAssignCmd() *cobra.Command {
	var (
		agentID   string
		assignees []string
	)
	cmd := &cobra.Command{
		Use:   "assign <task-id>",
		Short: "Replace a task's assignees and mark it assigned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			t, err := svc.AssignTask(cmd.Context(), args[0], assignees, agentID)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %q assigned to %d agent(s)\n", t.Title, len(t.AssigneeIDs))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&assignees, "assignee", nil, "Assignee agent ids")
	cmd.Flags().StringVar(&agentID, "agent", "", "Agent id the change is attributed to")
	_ = cmd.MarkFlagRequired("assignee")
	return cmd
}

