package main

import (
	"context"
	"fmt"
	"io"

	"github.com/ankittk/missioncontrol/internal/cli"
)

// Run executes the command tree with args and returns the process exit code.
func Run(ctx context.Context, args []string, stderr io.Writer) int {
	root := cli.NewRootCmd(Version)
	root.SetArgs(args)
	root.SilenceErrors = true
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "missioncontrol: %v\n", err)
		return 1
	}
	return 0
}
