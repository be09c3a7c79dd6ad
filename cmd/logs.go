package cmd

import (
	"bufio"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"

	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/logging"
)

// NewLogsCmd creates the `logs` command.
func NewLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		Long: `Prints today's log file of a daemon component. With --follow new lines are printed as they
are written, across restarts of the daemon.

Examples:
  # Follow the daemon log
  autoreg logs -f

  # Last 100 lines of the session supervisor log
  autoreg logs --tail 100 --component autoreg-sessions`,
		RunE: runLogsE,
	}

	cmd.Flags().BoolP("follow", "f", false, "Follow log output")
	cmd.Flags().Int("tail", -1, "Number of lines to show from the end of the log (default: all)")
	cmd.Flags().String("component", "autoregd", "Component whose log to read (autoregd, autoreg-sessions, ...)")
	cmd.Flags().String("file", "", "Log file to read (default: today's daemon log)")
	return cmd
}

func runLogsE(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		component, _ := cmd.Flags().GetString("component")
		path = logging.LogFilePath(component)
	}
	if path == "" {
		return errors.New(errors.ErrCodeConfigNotFound, "no log directory; set XDG_STATE_HOME or AUTOREG_HOME")
	}

	follow, _ := cmd.Flags().GetBool("follow")
	tailLines, _ := cmd.Flags().GetInt("tail")
	out := cmd.OutOrStdout()

	emit := func(line string) {
		fmt.Fprintln(out, colorizeLevel(line))
	}

	var offset int64
	if _, err := os.Stat(path); err == nil {
		lines, size, err := lastLines(path, tailLines)
		if err != nil {
			return err
		}
		for _, line := range lines {
			emit(line)
		}
		offset = size
	} else if !follow {
		return errors.New(errors.ErrCodeConfigNotFound, fmt.Sprintf("log file %s does not exist", path)).
			WithDetail("path", path)
	}

	if !follow {
		return nil
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
		Logger:    stdlog.New(io.Discard, "", 0),
	})
	if err != nil {
		return fmt.Errorf("cannot tail %s: %w", path, err)
	}
	defer t.Cleanup()

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return t.Stop()
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				continue
			}
			emit(line.Text)
		}
	}
}

// lastLines returns the last n lines of path (all when n < 0) and the
// number of bytes read.
func lastLines(path string, n int) ([]string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var lines []string
	var size int64
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		size += int64(len(line))
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			lines = append(lines, line)
			if n >= 0 && len(lines) > n {
				lines = lines[1:]
			}
		}
		if err == io.EOF {
			return lines, size, nil
		}
		if err != nil {
			return nil, 0, err
		}
	}
}

var levelStyles = map[string]lipgloss.Style{
	"ERROR": lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	"FATAL": lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	"WARN":  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	"DEBUG": lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
}

// colorizeLevel highlights the level token of a text formatted log line.
func colorizeLevel(line string) string {
	for level, style := range levelStyles {
		token := "[" + level + "]"
		if idx := strings.Index(line, token); idx >= 0 {
			return line[:idx] + style.Render(token) + line[idx+len(token):]
		}
	}
	return line
}
