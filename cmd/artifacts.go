package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/autoreg/cli"
)

// NewArtifactsCmd returns the artifacts command group.
func NewArtifactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "List files produced by the script",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			list, err := client.Artifacts(cmd.Context())
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return cli.PrintJSON(cmd.OutOrStdout(), list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.Muted("No artifacts"))
				return nil
			}

			t := cli.NewTable("NAME", "SIZE", "MODIFIED")
			for _, a := range list {
				t.Row(a.Name, humanSize(a.Size), a.ModTime.Local().Format(time.DateTime))
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get [name]",
		Short: "Download an artifact (the newest by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "latest"
			if len(args) == 1 {
				name = args[0]
			}
			outDir, _ := cmd.Flags().GetString("output-dir")

			client, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			tmp, err := os.CreateTemp(outDir, ".autoreg-download-*")
			if err != nil {
				return err
			}
			defer os.Remove(tmp.Name())

			filename, err := client.DownloadArtifact(cmd.Context(), name, tmp)
			if closeErr := tmp.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}

			dest := filepath.Join(outDir, filepath.Base(filename))
			if err := os.Rename(tmp.Name(), dest); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", dest)
			return nil
		},
	}
	get.Flags().StringP("output-dir", "o", ".", "Directory to save into")
	cmd.AddCommand(get)
	return cmd
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
