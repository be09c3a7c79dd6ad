package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Session errors
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionExists   ErrorCode = "SESSION_EXISTS"
	ErrCodeProcessExited   ErrorCode = "PROCESS_EXITED"
	ErrCodeProcessFailed   ErrorCode = "PROCESS_FAILED"
	ErrCodeInterrupted     ErrorCode = "INTERRUPTED"
	ErrCodeLaunchFailed    ErrorCode = "LAUNCH_FAILED"

	// Operation errors
	ErrCodeOperationNotFound ErrorCode = "OPERATION_NOT_FOUND"
	ErrCodeStepOutOfRange    ErrorCode = "STEP_OUT_OF_RANGE"

	// Container runtime errors
	ErrCodeContainerNotRunning  ErrorCode = "CONTAINER_NOT_RUNNING"
	ErrCodeContainerUnavailable ErrorCode = "CONTAINER_UNAVAILABLE"

	// Flag file errors
	ErrCodeFlagUnknown   ErrorCode = "FLAG_UNKNOWN"
	ErrCodeFlagProtected ErrorCode = "FLAG_PROTECTED"

	// Artifact and history errors
	ErrCodeArtifactNotFound ErrorCode = "ARTIFACT_NOT_FOUND"
	ErrCodeHistoryDisabled  ErrorCode = "HISTORY_DISABLED"

	// Command execution errors
	ErrCodeCommandTimeout  ErrorCode = "COMMAND_TIMEOUT"
	ErrCodeCommandNotFound ErrorCode = "COMMAND_NOT_FOUND"
	ErrCodeCommandFailed   ErrorCode = "COMMAND_FAILED"

	// Daemon errors
	ErrCodeDaemonRunning     ErrorCode = "DAEMON_RUNNING"
	ErrCodeDaemonUnreachable ErrorCode = "DAEMON_UNREACHABLE"

	// General errors
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
)

// AutoregError represents a structured error with context
type AutoregError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *AutoregError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *AutoregError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *AutoregError) WithDetail(key string, value interface{}) *AutoregError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *AutoregError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new AutoregError
func New(code ErrorCode, message string) *AutoregError {
	return &AutoregError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AutoregError
func Wrap(err error, code ErrorCode, message string) *AutoregError {
	return &AutoregError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error carries a specific AutoregError code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code && code != ""
}

// GetCode extracts the error code from the first AutoregError in the chain.
func GetCode(err error) ErrorCode {
	var ae *AutoregError
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// MessageOf returns the human message of an AutoregError, or err.Error() otherwise.
func MessageOf(err error) string {
	var ae *AutoregError
	if stderrors.As(err, &ae) {
		return ae.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
