package command

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// Target describes where and how the automation entry point runs.
type Target struct {
	// Interpreter is the program that runs the entry point (for example a python binary).
	// Empty means the entry point is executed directly.
	Interpreter string
	// Entrypoint is the automation script path.
	Entrypoint string
	// WorkDir is applied only when running locally.
	WorkDir string
	// Container is the name of a running container to exec into.
	Container string
	// UseContainer enables container execution. It has no effect when Container is empty.
	UseContainer bool
	// Env holds extra KEY=VALUE pairs appended to the child environment.
	Env []string
}

// Builder turns operation argument lists into process invocations and
// validates identifiers that cross the HTTP boundary.
type Builder struct {
	target     Target
	validators map[string]func(string) error
	executor   Executor
}

// NewBuilder creates a Builder backed by a RealExecutor.
func NewBuilder(target Target) *Builder {
	return NewBuilderWithExecutor(target, &RealExecutor{})
}

// NewBuilderWithExecutor creates a Builder with a custom Executor.
func NewBuilderWithExecutor(target Target, exec Executor) *Builder {
	return &Builder{
		target:     target,
		validators: makeDefaultValidators(),
		executor:   exec,
	}
}

// Target returns the execution target the builder was configured with.
func (b *Builder) Target() Target {
	return b.target
}

// ContainerMode reports whether invocations are wrapped in docker exec.
func (b *Builder) ContainerMode() bool {
	return b.target.UseContainer && b.target.Container != ""
}

// Invocation returns the full argv for one step. It performs no I/O.
func (b *Builder) Invocation(args []string, interactive bool) []string {
	var argv []string

	if b.ContainerMode() {
		argv = append(argv, "docker", "exec")
		if interactive {
			argv = append(argv, "-i")
		}
		argv = append(argv, b.target.Container)
	}

	if b.target.Interpreter != "" {
		argv = append(argv, b.target.Interpreter)
		if isPython(b.target.Interpreter) {
			argv = append(argv, "-u")
		}
	}

	argv = append(argv, b.target.Entrypoint)
	argv = append(argv, args...)
	return argv
}

// Cmd prepares an exec.Cmd for the invocation without starting it.
// Unbuffered output is requested through the environment and the working
// directory is only applied for local execution.
func (b *Builder) Cmd(argv []string) (*exec.Cmd, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("command name cannot be empty")
	}

	cmd := b.executor.Command(argv[0], argv[1:]...) //nolint:gosec // argv comes from configured operations
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	cmd.Env = append(cmd.Env, b.target.Env...)
	if !b.ContainerMode() && b.target.WorkDir != "" {
		cmd.Dir = b.target.WorkDir
	}
	return cmd, nil
}

// Validate validates specific arguments
func (b *Builder) Validate(argType string, value string) error {
	validator, exists := b.validators[argType]
	if !exists {
		return fmt.Errorf("no validator for argument type: %s", argType)
	}

	return validator(value)
}

func isPython(interpreter string) bool {
	return strings.Contains(strings.ToLower(filepath.Base(interpreter)), "python")
}

var defaultValidators = makeDefaultValidators()

// ValidateArg checks value with one of the default validators: "sessionID",
// "operationName", "containerName", "flagName" or "scriptArg". Configuration
// validation uses it for the same rules the builder applies at runtime.
func ValidateArg(argType, value string) error {
	validator, exists := defaultValidators[argType]
	if !exists {
		return fmt.Errorf("no validator for argument type: %s", argType)
	}
	return validator(value)
}

// makeDefaultValidators returns the default set of validators
func makeDefaultValidators() map[string]func(string) error {
	return map[string]func(string) error{
		"sessionID":     validateSessionID,
		"operationName": validateOperationName,
		"containerName": validateContainerName,
		"flagName":      validateFlagName,
		"scriptArg":     validateScriptArg,
	}
}

var (
	sessionIDPattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
	operationNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	containerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
	flagNamePattern      = regexp.MustCompile(`^[a-zA-Z0-9_-]+\.flag$`)
)

// validateSessionID ensures session ids are safe to use as map keys and in URLs
func validateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if len(id) > 128 {
		return fmt.Errorf("session id too long (max 128 characters)")
	}
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("invalid session id: %s", id)
	}
	return nil
}

func validateOperationName(name string) error {
	if name == "" {
		return fmt.Errorf("operation name cannot be empty")
	}
	if !operationNamePattern.MatchString(name) {
		return fmt.Errorf("invalid operation name: %s (must contain only lowercase letters, digits, underscores, and hyphens)", name)
	}
	return nil
}

// validateContainerName follows the docker naming rules
func validateContainerName(name string) error {
	if name == "" {
		return fmt.Errorf("container name cannot be empty")
	}
	if !containerNamePattern.MatchString(name) {
		return fmt.Errorf("invalid container name: %s", name)
	}
	return nil
}

func validateFlagName(name string) error {
	if name == "" {
		return fmt.Errorf("flag name cannot be empty")
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("flag name cannot contain path separators")
	}
	if !flagNamePattern.MatchString(name) {
		return fmt.Errorf("invalid flag name: %s (expected <name>.flag)", name)
	}
	return nil
}

// validateScriptArg rejects shell metacharacters in configured script arguments
func validateScriptArg(arg string) error {
	if arg == "" {
		return fmt.Errorf("argument cannot be empty")
	}
	if strings.ContainsAny(arg, ";|&$`\n") {
		return fmt.Errorf("argument contains invalid characters: %q", arg)
	}
	return nil
}
