package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/spf13/cobra"
)

func newDocCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Manage documents (deliverables, research, protocols)",
	}
	cmd.AddCommand(newDocListCmd())
	cmd.AddCommand(newDocCreateCmd())
	cmd.AddCommand(newDocShowCmd())
	return cmd
}

func newDocListCmd() *cobra.Command {
	var q mission.DocumentQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			docs, err := svc.ListDocuments(cmd.Context(), q)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(docs))
			for _, d := range docs {
				rows = append(rows, []string{truncate(d.Title, 40), d.Type, deref(d.TaskID), d.UpdatedAt.Local().Format(time.DateTime), d.ID})
			}
			return render(cmd, docs, []string{"Title", "Type", "Task", "Updated", "ID"}, rows)
		},
	}
	cmd.Flags().StringVar(&q.TaskID, "task", "", "Filter by task id")
	cmd.Flags().StringVar(&q.Type, "type", "", "Filter by type")
	return cmd
}

func newDocCreateCmd() *cobra.Command {
	var (
		in   mission.DocumentInput
		task string
		file string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a document from --content or --file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				if in.Content != "" {
					return errors.New("use either --content or --file")
				}
				b, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				in.Content = string(b)
			}
			if task != "" {
				in.TaskID = &task
			}
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			d, err := svc.CreateDocument(cmd.Context(), in)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), d)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created %s %q id=%s\n", d.Type, d.Title, d.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "Document title")
	cmd.Flags().StringVar(&in.Type, "type", "deliverable", "Type: deliverable, research, protocol")
	cmd.Flags().StringVar(&in.Content, "content", "", "Document content")
	cmd.Flags().StringVar(&file, "file", "", "Read content from file")
	cmd.Flags().StringVar(&task, "task", "", "Related task id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newDocShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <doc-id>",
		Short: "Print a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			d, err := svc.GetDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := renderDetail(cmd, d, [][2]string{
				{"Title", d.Title},
				{"Type", d.Type},
				{"Task", deref(d.TaskID)},
				{"Updated", d.UpdatedAt.Local().Format(time.DateTime)},
			}); err != nil || jsonOutput(cmd) {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout())
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), d.Content)
			return nil
		},
	}
}
