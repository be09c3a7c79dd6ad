package main

import (
	"os"

	"github.com/grovetools/autoreg/cli"
	"github.com/grovetools/autoreg/cmd"
	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/version"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"autoreg",
		"Web control panel for the autoreg automation scripts",
	)
	cli.SetVersionTemplate(rootCmd, version.GetInfo())
	rootCmd.Annotations = map[string]string{cli.EnvAnnotation: `
AUTOREG_ADDR=daemon address used by the client commands
AUTOREG_HOME=directory holding config and state (default XDG dirs)
AUTOREG_LOG_LEVEL=log level (debug, info, warn, error)
AUTOREG_LOG_CALLER=set to true to log file and line`}

	rootCmd.AddCommand(cmd.NewServeCmd())
	rootCmd.AddCommand(cmd.NewStopCmd())
	rootCmd.AddCommand(cmd.NewStatusCmd())
	rootCmd.AddCommand(cmd.NewOperationsCmd())
	rootCmd.AddCommand(cmd.NewStartCmd())
	rootCmd.AddCommand(cmd.NewSessionsCmd())
	rootCmd.AddCommand(cmd.NewFlagsCmd())
	rootCmd.AddCommand(cmd.NewHistoryCmd())
	rootCmd.AddCommand(cmd.NewArtifactsCmd())
	rootCmd.AddCommand(cmd.NewContainerCmd())
	rootCmd.AddCommand(cmd.NewLogsCmd())
	rootCmd.AddCommand(cmd.NewConfigCmd())
	rootCmd.AddCommand(cli.NewVersionCommand("autoreg"))
	cli.ApplyStyledHelpRecursive(rootCmd)

	if c, err := rootCmd.ExecuteC(); err != nil {
		// Argument and flag errors from cobra carry no code.
		if errors.GetCode(err) == "" {
			cli.PrintError(c, err)
			os.Exit(1)
		}
		verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
		cli.NewErrorHandler(verbose).Handle(err)
		os.Exit(1)
	}
}
