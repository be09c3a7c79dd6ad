package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/grovetools/autoreg/cli"
)

// NewContainerCmd returns the command that shows the execution container.
func NewContainerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "container",
		Short: "Show the execution container status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			view, err := client.ContainerStatus(cmd.Context())
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return cli.PrintJSON(cmd.OutOrStdout(), view)
			}

			out := cmd.OutOrStdout()
			if !view.Enabled || view.ContainerStatus == nil {
				fmt.Fprintln(out, "Container execution is disabled; the script runs locally")
				return nil
			}
			st := view.ContainerStatus
			fmt.Fprintf(out, "Name:    %s\n", st.Name)
			switch {
			case !st.Exists:
				fmt.Fprintln(out, "State:   not found")
				return nil
			case st.Running:
				fmt.Fprintf(out, "State:   running (%s)\n", st.Status)
			default:
				fmt.Fprintf(out, "State:   %s\n", st.State)
			}
			if st.Image != "" {
				fmt.Fprintf(out, "Image:   %s\n", st.Image)
			}
			networks := make([]string, 0, len(st.IPs))
			for network := range st.IPs {
				networks = append(networks, network)
			}
			sort.Strings(networks)
			for _, network := range networks {
				fmt.Fprintf(out, "IP:      %s %s\n", st.IPs[network], cli.Muted("("+network+")"))
			}
			return nil
		},
	}
}
