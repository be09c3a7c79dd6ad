package cmd

import (
	"fmt"
	"os/user"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/autoreg/cli"
	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/internal/history"
)

// NewHistoryCmd returns the execution history command group.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded executions",
		Long: `Lists finished steps recorded by the daemon, newest first.

Examples:
  autoreg history
  autoreg history --operation buscar-pendentes --limit 10
  autoreg history report add --routine solicitar-tcs --records 42`,
		RunE: runHistoryList,
	}
	cmd.Flags().StringP("operation", "o", "", "Only show this operation")
	cmd.Flags().IntP("limit", "n", history.DefaultLimit, "Maximum rows")
	cmd.AddCommand(newReportCmd())
	return cmd
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	client, err := connect(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	operation, _ := cmd.Flags().GetString("operation")
	limit, _ := cmd.Flags().GetInt("limit")

	rows, err := client.History(cmd.Context(), operation, limit)
	if err != nil {
		return err
	}
	if cli.GetOptions(cmd).JSONOutput {
		return cli.PrintJSON(cmd.OutOrStdout(), rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.Muted("No executions recorded"))
		return nil
	}

	t := cli.NewTable("STARTED", "OPERATION", "STEP", "STATUS", "EXIT", "LINES", "DURATION")
	for _, e := range rows {
		exit := ""
		if e.ExitCode != nil {
			exit = strconv.Itoa(*e.ExitCode)
		}
		t.Row(
			e.StartedAt.Local().Format("2006-01-02 15:04"),
			e.Operation,
			fmt.Sprintf("%d/%d", e.Step+1, e.Total),
			string(e.Status),
			exit,
			strconv.FormatInt(e.Lines, 10),
			e.Duration().Round(time.Second).String(),
		)
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Manual production reports",
		RunE:  runReportList,
	}
	cmd.Flags().IntP("limit", "n", history.DefaultLimit, "Maximum rows")

	add := &cobra.Command{
		Use:   "add",
		Short: "Record how many records a routine processed",
		RunE:  runReportAdd,
	}
	add.Flags().String("routine", "", "Routine name")
	add.Flags().String("user", "", "Operator name (default: current user)")
	add.Flags().Int("records", 0, "Number of records processed")
	_ = add.MarkFlagRequired("routine")
	cmd.AddCommand(add)
	return cmd
}

func runReportList(cmd *cobra.Command, args []string) error {
	client, err := connect(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	rows, err := client.Reports(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if cli.GetOptions(cmd).JSONOutput {
		return cli.PrintJSON(cmd.OutOrStdout(), rows)
	}

	t := cli.NewTable("DATE", "ROUTINE", "USER", "RECORDS")
	for _, r := range rows {
		t.Row(r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Routine, r.User, strconv.Itoa(r.Records))
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}

func runReportAdd(cmd *cobra.Command, args []string) error {
	routine, _ := cmd.Flags().GetString("routine")
	userName, _ := cmd.Flags().GetString("user")
	records, _ := cmd.Flags().GetInt("records")
	if records < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "records must not be negative")
	}
	if userName == "" {
		if u, err := user.Current(); err == nil {
			userName = u.Username
		}
	}

	client, err := connect(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	saved, err := client.AddReport(cmd.Context(), history.ReportEntry{
		Routine: routine,
		User:    userName,
		Records: records,
	})
	if err != nil {
		return err
	}
	if cli.GetOptions(cmd).JSONOutput {
		return cli.PrintJSON(cmd.OutOrStdout(), saved)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Report #%d saved\n", saved.ID)
	return nil
}
