package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grovetools/autoreg/cli"
	"github.com/grovetools/autoreg/internal/session"
	"github.com/grovetools/autoreg/pkg/daemon"
)

// NewStartCmd returns the command that runs one step of an operation.
func NewStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <operation>",
		Short: "Start an operation and stream its output",
		Long: `Starts one step of an operation on the daemon and streams its output.
Lines typed on the terminal are sent to the script when it asks for input.
Ctrl-C detaches; use 'autoreg sessions interrupt' to stop the script.

Examples:
  # Run the first step of an operation
  autoreg start buscar-pendentes

  # Run the second step under a chosen session id
  autoreg start solicitar-tcs --step 1 --session-id tcs-1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			sessionID, _ := cmd.Flags().GetString("session-id")
			step, _ := cmd.Flags().GetInt("step")
			opts := daemon.StartOptions{SessionID: sessionID, Step: step}

			return followSession(cmd, client, func(ctx context.Context) (<-chan session.Event, error) {
				return client.Start(ctx, args[0], opts)
			})
		},
	}
	cmd.Flags().String("session-id", "", "Session identifier (generated when empty)")
	cmd.Flags().Int("step", 0, "Zero based step of the operation to run")
	return cmd
}

// NewOperationsCmd returns the command that lists configured operations.
func NewOperationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "operations",
		Aliases: []string{"ops"},
		Short:   "List the operations the daemon can run",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			ops, err := client.Operations(cmd.Context())
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return cli.PrintJSON(cmd.OutOrStdout(), ops)
			}

			t := cli.NewTable("OPERATION", "STEPS", "DESCRIPTION")
			for _, op := range ops {
				steps := make([]string, 0, len(op.Steps))
				for i, s := range op.Steps {
					label := strconv.Itoa(i) + ": " + strings.Join(s.Args, " ")
					if s.Interactive {
						label += " (interactive)"
					}
					steps = append(steps, label)
				}
				t.Row(op.Name, strings.Join(steps, "\n"), op.Description)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
}
