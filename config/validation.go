package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/grovetools/autoreg/command"
	"github.com/grovetools/autoreg/errors"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Script.Entrypoint == "" {
		return errors.New(errors.ErrCodeConfigValidation, "script.entrypoint is required (or AUTOREGPATH in the env file)")
	}
	if err := validatePath("script.workdir", c.Script.WorkDir); err != nil {
		return err
	}
	for _, kv := range c.Script.Env {
		if !strings.Contains(kv, "=") {
			return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("invalid env entry: %s (must be KEY=VALUE)", kv)).
				WithDetail("env", kv)
		}
	}

	if c.Container.Enabled && c.Container.Name == "" {
		return errors.New(errors.ErrCodeConfigValidation, "container.name cannot be empty when container execution is enabled")
	}
	if c.Container.Name != "" {
		if err := command.ValidateArg("containerName", c.Container.Name); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid container.name").
				WithDetail("container", c.Container.Name)
		}
	}

	if c.Process.GracePeriod < 0 || c.Process.PollInterval < 0 || c.Process.DrainTimeout < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "process timings must not be negative")
	}
	if c.Stream.ReplayLines < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "stream.replay_lines must not be negative")
	}

	for field, name := range map[string]string{
		"flags.pause":      c.Flags.Pause,
		"flags.force_save": c.Flags.ForceSave,
		"flags.skip":       c.Flags.Skip,
	} {
		if err := command.ValidateArg("flagName", name); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigValidation, fmt.Sprintf("%s must be a plain <name>.flag file name", field)).
				WithDetail("flag", name)
		}
	}
	if c.Flags.Pause == c.Flags.ForceSave || c.Flags.Pause == c.Flags.Skip || c.Flags.ForceSave == c.Flags.Skip {
		return errors.New(errors.ErrCodeConfigValidation, "flag file names must be distinct")
	}

	for name, op := range c.Operations {
		if err := validateOperation(name, op); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigValidation, fmt.Sprintf("invalid operation '%s'", name)).
				WithDetail("operation", name)
		}
	}

	for i, rule := range c.Prompts {
		if err := validatePromptRule(rule); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigValidation, fmt.Sprintf("invalid prompt rule #%d", i)).
				WithDetail("rule", rule.Name)
		}
	}

	return nil
}

func validateOperation(name string, op Operation) error {
	if err := command.ValidateArg("operationName", name); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "operation name must contain only lowercase letters, digits, underscores, and hyphens").
			WithDetail("name", name)
	}
	if len(op.Steps) == 0 {
		return errors.New(errors.ErrCodeConfigValidation, "operation must define at least one step")
	}
	for i, step := range op.Steps {
		for _, arg := range step.Args {
			if err := command.ValidateArg("scriptArg", arg); err != nil {
				return errors.Wrap(err, errors.ErrCodeConfigValidation, fmt.Sprintf("step %d has an invalid argument: %q", i, arg))
			}
		}
	}
	return nil
}

func validatePromptRule(rule PromptRule) error {
	if len(rule.Patterns) == 0 {
		return errors.New(errors.ErrCodeConfigValidation, "prompt rule must have at least one pattern")
	}
	for _, p := range rule.Patterns {
		if _, err := regexp.Compile("(?i)" + p); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigValidation, fmt.Sprintf("invalid pattern %q", p))
		}
	}
	return nil
}

// validatePath validates that a path is appropriate for the current OS
func validatePath(fieldName, path string) error {
	if path == "" {
		return nil
	}

	if runtime.GOOS != "windows" && filepath.IsAbs(path) && strings.Contains(path, "\\") {
		return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("%s contains Windows-style path on Unix system", fieldName)).
			WithDetail("path", path)
	}

	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "//") {
		return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("%s contains Unix-style path on Windows system", fieldName)).
			WithDetail("path", path)
	}

	return nil
}
