package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ankittk/missioncontrol/internal/config"
	"github.com/ankittk/missioncontrol/internal/httpapi"
	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
	labelStyle  = lipgloss.NewStyle().Bold(true).Width(16)
)

// loadConfig reads config.yaml from the home in the command context.
func loadConfig(cmd *cobra.Command) (string, config.Config, error) {
	home := config.MustHomeFrom(cmd.Context())
	cfg, err := config.Load(home)
	return home, cfg, err
}

// openService opens the configured store and returns a service over it plus a close func.
func openService(cmd *cobra.Command) (*mission.Service, func(), error) {
	home, cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	st, err := httpapi.OpenStore(httpapi.ServerOptions{Home: home, DBDriver: cfg.Database.Driver, DBURL: cfg.Database.URL})
	if err != nil {
		return nil, nil, err
	}
	svc := mission.New(st)
	if cfg.Tasks.StrictTransitions {
		svc.Transitions = mission.StrictTransitions{}
	}
	return svc, func() { _ = st.Close() }, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetString("output")
	return v == "json"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// render prints v as JSON with -o json, else as a table built from headers and rows.
func render(cmd *cobra.Command, v any, headers []string, rows [][]string) error {
	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		return writeJSON(out, v)
	}
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(out, "Nothing to show.")
		return nil
	}
	_, _ = fmt.Fprintln(out, renderTable(headers, rows))
	return nil
}

func renderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}

// renderDetail prints label/value pairs, one per line.
func renderDetail(cmd *cobra.Command, v any, pairs [][2]string) error {
	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		return writeJSON(out, v)
	}
	for _, p := range pairs {
		_, _ = fmt.Fprintln(out, labelStyle.Render(p[0])+p[1])
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
