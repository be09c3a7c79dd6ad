package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grovetools/autoreg/cli"
	"github.com/grovetools/autoreg/command"
	"github.com/grovetools/autoreg/config"
	"github.com/grovetools/autoreg/docker"
	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/internal/artifacts"
	"github.com/grovetools/autoreg/internal/daemon/collector"
	"github.com/grovetools/autoreg/internal/daemon/engine"
	"github.com/grovetools/autoreg/internal/daemon/pidfile"
	"github.com/grovetools/autoreg/internal/daemon/server"
	"github.com/grovetools/autoreg/internal/daemon/store"
	"github.com/grovetools/autoreg/internal/flags"
	"github.com/grovetools/autoreg/internal/history"
	"github.com/grovetools/autoreg/internal/session"
	"github.com/grovetools/autoreg/pkg/daemon"
	"github.com/grovetools/autoreg/pkg/paths"
	"github.com/grovetools/autoreg/version"
)

// NewServeCmd returns the command that runs the daemon in the foreground.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the autoreg daemon",
		Long: `Runs the control panel daemon in the foreground. It serves the HTTP API,
supervises script sessions and records their history.

Examples:
  # Serve with the autoreg.yml found from the current directory
  autoreg serve

  # Listen on all interfaces
  autoreg serve --listen 0.0.0.0:5000`,
		RunE: runServe,
	}
	cmd.Flags().String("listen", "", "Address to listen on (overrides server.listen)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := cli.GetLogger(cmd, "autoregd")

	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	if err := paths.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to create state directories: %w", err)
	}

	// 1. Acquire Lock
	lock, err := pidfile.Acquire(paths.PidFilePath(), paths.LockFilePath())
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Errorf("Failed to release pidfile: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Components
	flagChannel := flags.New(cfg.Flags)

	var hist *history.Store
	if !cfg.History.Disabled {
		dbPath := cfg.History.Path
		if dbPath == "" {
			dbPath = paths.HistoryDBPath()
		}
		if hist, err = history.Open(ctx, dbPath); err != nil {
			return err
		}
		defer hist.Close()
	}

	lister, err := artifacts.NewLister(cfg.Artifacts)
	if err != nil {
		return err
	}

	containers := openDocker(cfg, logger)
	defer containers.Close()

	builder := command.NewBuilder(command.Target{
		Interpreter:  cfg.Script.Interpreter,
		Entrypoint:   cfg.Script.Entrypoint,
		WorkDir:      cfg.Script.WorkDir,
		Container:    cfg.Container.Name,
		UseContainer: cfg.Container.Enabled,
		Env:          cfg.Script.Env,
	})

	opts := session.Options{
		Config:     cfg,
		Builder:    builder,
		Flags:      flagChannel,
		Containers: containers,
	}
	if hist != nil {
		opts.History = hist
	}
	manager, err := session.NewManager(opts)
	if err != nil {
		return err
	}

	// 3. Setup Store and Engine
	st := store.New()
	eng := engine.New(st, logger)
	eng.Register(collector.NewSessionCollector(manager))
	eng.Register(collector.NewFlagCollector(flagChannel))
	if cfg.Container.Enabled && cfg.Container.Name != "" {
		eng.Register(collector.NewContainerCollector(containers, cfg.Container.Name))
	}

	// 4. Setup Server with engine
	srv := server.New(logger, server.Deps{
		Config:     cfg,
		Manager:    manager,
		Flags:      flagChannel,
		History:    hist,
		Artifacts:  lister,
		Containers: containers,
	})
	srv.SetEngine(eng)
	srv.SetRunningConfig(runningConfigFor(cfg))

	// 5. Handle Signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		<-stop
		logger.Info("Received stop signal")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		manager.Shutdown(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	go eng.Start(ctx)

	// 6. Start Server (Blocking)
	logger.WithFields(logrus.Fields{
		"pid":    os.Getpid(),
		"listen": cfg.Server.Listen,
	}).Info("Starting daemon")
	fmt.Fprintf(cmd.ErrOrStderr(), "autoreg %s listening on http://%s\n", version.GetInfo().Short(), cfg.Server.Listen)

	if err := srv.ListenAndServe(cfg.Server.Listen); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("Daemon stopped")
	return nil
}

// openDocker connects to the Docker engine when container execution is
// configured. Without a reachable engine every container call fails with
// CONTAINER_UNAVAILABLE.
func openDocker(cfg *config.Config, logger *logrus.Entry) docker.Client {
	if !cfg.Container.Enabled {
		return docker.Unavailable{Err: errors.New(errors.ErrCodeContainerUnavailable, "container execution is disabled")}
	}
	c, err := docker.NewSDKClient()
	if err != nil {
		logger.WithError(err).Warn("Docker is not reachable; container checks will fail")
		return docker.Unavailable{Err: errors.Wrap(err, errors.ErrCodeContainerUnavailable, "docker is not reachable")}
	}
	return c
}

func runningConfigFor(cfg *config.Config) *server.RunningConfig {
	return &server.RunningConfig{
		Listen:        cfg.Server.Listen,
		Entrypoint:    cfg.Script.Entrypoint,
		Interpreter:   cfg.Script.Interpreter,
		WorkDir:       cfg.Script.WorkDir,
		Container:     cfg.Container.Name,
		UsePTY:        cfg.Process.UsePTY,
		GracePeriod:   cfg.Process.GracePeriod,
		KeepAlive:     cfg.Stream.KeepAlive,
		PromptTimeout: cfg.Stream.PromptTimeout,
		FlagDir:       cfg.Flags.Dir,
		Operations:    cfg.OperationNames(),
		Version:       version.Version,
		StartedAt:     time.Now(),
	}
}

// NewStopCmd returns the command that stops a running daemon.
func NewStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}

			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}

			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
}

// NewStatusCmd returns the command that reports whether the daemon runs.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}

			cfg, _ := cli.LoadConfig(cmd)
			addr := daemon.ResolveAddr(cfg)
			client, err := daemon.New(addr)
			if err != nil {
				return err
			}
			defer client.Close()
			responding := client.IsRunning()

			if cli.GetOptions(cmd).JSONOutput {
				return cli.PrintJSON(cmd.OutOrStdout(), map[string]interface{}{
					"running":    running,
					"pid":        pid,
					"address":    addr,
					"responding": responding,
				})
			}

			out := cmd.OutOrStdout()
			switch {
			case running && responding:
				fmt.Fprintf(out, "Running (PID: %d)\nAddress: http://%s\n", pid, addr)
			case running:
				fmt.Fprintf(out, "Running (PID: %d) but not responding on %s\n", pid, addr)
			case responding:
				fmt.Fprintf(out, "Responding on %s (not started from this state directory)\n", addr)
			default:
				fmt.Fprintln(out, "Stopped")
				os.Exit(1) // Non-zero for stopped state, useful for scripts
			}
			return nil
		},
	}
}
