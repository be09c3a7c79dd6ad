package cmd

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/grovetools/autoreg/cli"
	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/internal/session"
	"github.com/grovetools/autoreg/pkg/daemon"
)

// connect returns a client for the daemon the current config points at.
// A missing config file is fine; the default address is used then.
func connect(cmd *cobra.Command) (daemon.Client, error) {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		if cli.GetOptions(cmd).ConfigFile != "" || !errors.Is(err, errors.ErrCodeConfigNotFound) {
			return nil, err
		}
		cfg = nil
	}
	return daemon.MustConnect(daemon.ResolveAddr(cfg))
}

// followSession prints a session stream until its terminal event. Lines
// typed on a terminal are forwarded as input. Ctrl-C detaches and leaves
// the session running.
func followSession(cmd *cobra.Command, client daemon.Client, open func(ctx context.Context) (<-chan session.Event, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	events, err := open(ctx)
	if err != nil {
		return err
	}

	printer := cli.NewEventPrinter(cmd.OutOrStdout(), cli.GetOptions(cmd).JSONOutput)
	lines := stdinLines(cmd.InOrStdin())

	var last session.Event
	var sessionID string
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil && !last.Terminal() {
					printer.Print(session.Event{Type: session.EventInfo, Message: "detached; session " + sessionID + " keeps running"})
					return nil
				}
				return cli.StreamError(last)
			}
			if ev.SessionID != "" {
				sessionID = ev.SessionID
			}
			printer.Print(ev)
			last = ev
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if sessionID == "" {
				continue
			}
			if err := client.SendInput(ctx, sessionID, line); err != nil {
				printer.Print(session.Event{Type: session.EventWarn, Message: errors.MessageOf(err)})
			}
		}
	}
}

// stdinLines reads lines from r when it is a terminal. It returns nil
// otherwise, which blocks forever in a select.
func stdinLines(r io.Reader) <-chan string {
	f, ok := r.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return nil
	}
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			ch <- scanner.Text()
		}
	}()
	return ch
}
