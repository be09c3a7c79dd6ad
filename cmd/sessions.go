package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/autoreg/cli"
	"github.com/grovetools/autoreg/internal/session"
)

// NewSessionsCmd returns the sessions command group.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"s"},
		Short:   "Inspect and control running sessions",
	}
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsAttachCmd())
	cmd.AddCommand(newSessionsSendCmd())
	cmd.AddCommand(newSessionsInterruptCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List live sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			infos, err := client.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return cli.PrintJSON(cmd.OutOrStdout(), infos)
			}
			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.Muted("No sessions"))
				return nil
			}

			t := cli.NewTable("SESSION", "PID", "STATUS", "STEP", "LINES", "UPTIME", "COMMAND")
			for _, info := range infos {
				status := string(info.Status)
				if info.AwaitingInput {
					status += " (input)"
				}
				t.Row(
					info.SessionID,
					strconv.Itoa(info.PID),
					status,
					fmt.Sprintf("%d/%d", info.Step+1, info.Total),
					strconv.FormatInt(info.Lines, 10),
					time.Since(info.StartedAt).Round(time.Second).String(),
					info.Command,
				)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
}

func newSessionsAttachCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach <session-id>",
		Short: "Re-attach to the output of a running session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			replay, _ := cmd.Flags().GetBool("replay")
			return followSession(cmd, client, func(ctx context.Context) (<-chan session.Event, error) {
				return client.Attach(ctx, args[0], replay)
			})
		},
	}
	cmd.Flags().Bool("replay", false, "Replay recent output before following")
	return cmd
}

func newSessionsSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <session-id> <text...>",
		Short: "Send one line of input to an interactive session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.SendInput(cmd.Context(), args[0], strings.Join(args[1:], " ")); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Input sent")
			return nil
		},
	}
}

func newSessionsInterruptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interrupt <session-id>",
		Short: "Terminate a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			res, err := client.Interrupt(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return cli.PrintJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
}
