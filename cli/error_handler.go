package cli

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/grovetools/autoreg/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     os.Stderr,
	}
}

// Handle prints a message for err based on its error code and returns err.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	w := h.Out

	var ae *errors.AutoregError
	stderrors.As(err, &ae)
	detail := func(key string) interface{} {
		if ae == nil {
			return ""
		}
		return ae.Details[key]
	}

	if ae != nil && ae.Details["printed"] == true {
		return err
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(w, "❌ Configuration not found. Create autoreg.yml or an env file next to the script.\n")

	case errors.ErrCodeDaemonUnreachable:
		fmt.Fprintf(w, "❌ Cannot reach the autoreg daemon at %v\n", detail("url"))
		fmt.Fprintf(w, "Start it with 'autoreg serve' or set AUTOREG_ADDR.\n")

	case errors.ErrCodeDaemonRunning:
		fmt.Fprintf(w, "❌ The autoreg daemon is already running (PID %v)\n", detail("pid"))
		fmt.Fprintf(w, "Stop it first with 'autoreg stop'.\n")

	case errors.ErrCodeOperationNotFound:
		fmt.Fprintf(w, "❌ %s\n", errors.MessageOf(err))
		fmt.Fprintf(w, "Run 'autoreg operations' to see the configured operations.\n")

	case errors.ErrCodeSessionNotFound:
		fmt.Fprintf(w, "❌ %s\n", errors.MessageOf(err))
		fmt.Fprintf(w, "Run 'autoreg sessions list' to see running sessions.\n")

	case errors.ErrCodeSessionExists:
		fmt.Fprintf(w, "❌ %s\n", errors.MessageOf(err))
		fmt.Fprintf(w, "Attach to it with 'autoreg sessions attach %v' or interrupt it first.\n", detail("session_id"))

	case errors.ErrCodeContainerNotRunning, errors.ErrCodeContainerUnavailable:
		fmt.Fprintf(w, "❌ %s\n", errors.MessageOf(err))
		fmt.Fprintf(w, "Check the container with 'docker ps' and 'autoreg container'.\n")

	case errors.ErrCodeFlagProtected:
		fmt.Fprintf(w, "❌ %s\n", errors.MessageOf(err))
		fmt.Fprintf(w, "The script removes this flag once it acted on it.\n")

	default:
		// Generic error handling
		fmt.Fprintf(w, "❌ Error: %s\n", errors.MessageOf(err))
	}

	// If verbose mode, show full error details
	if h.Verbose && ae != nil {
		fmt.Fprintf(w, "\nError details:\n%s\n", ae.ToJSON())
		if ae.Cause != nil {
			fmt.Fprintf(w, "Caused by: %v\n", ae.Cause)
		}
	}
	return err
}
