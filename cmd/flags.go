package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovetools/autoreg/cli"
)

// NewFlagsCmd returns the flag-file command group.
func NewFlagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Show and signal the script's flag files",
		Long: `Flag files are how the panel signals the running script. The script polls
them between records.

  pause       held while an interactive step waits for input
  force-save  (grava) ask the script to save its progress now
  skip        (pula) ask the script to skip the current record

Examples:
  autoreg flags
  autoreg flags raise grava
  autoreg flags clear pause`,
		RunE: runFlagsList,
	}
	cmd.AddCommand(newFlagsRaiseCmd())
	cmd.AddCommand(newFlagsClearCmd())
	return cmd
}

func runFlagsList(cmd *cobra.Command, args []string) error {
	client, err := connect(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	statuses, err := client.Flags(cmd.Context())
	if err != nil {
		return err
	}
	if cli.GetOptions(cmd).JSONOutput {
		return cli.PrintJSON(cmd.OutOrStdout(), statuses)
	}

	t := cli.NewTable("FLAG", "STATE", "SINCE", "FILE")
	for _, st := range statuses {
		state, since := "clear", ""
		if st.Raised {
			state = "raised"
			if !st.RaisedAt.IsZero() {
				since = st.RaisedAt.Format("15:04:05")
			}
		}
		t.Row(string(st.Kind), state, since, st.File)
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}

func newFlagsRaiseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "raise <flag>",
		Short: "Create a flag file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.RaiseFlag(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Flag %s raised\n", args[0])
			return nil
		},
	}
}

func newFlagsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <flag>",
		Short: "Remove a flag file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.ClearFlag(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Flag %s cleared\n", args[0])
			return nil
		},
	}
}
