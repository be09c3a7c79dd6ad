package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Config is the root of autoreg.yml.
type Config struct {
	Version    string               `yaml:"version,omitempty" jsonschema:"description=Configuration version (e.g. '1.0')"`
	EnvFile    string               `yaml:"env_file,omitempty" jsonschema:"description=Path to a legacy KEY = value env file layered beneath this file"`
	Server     ServerConfig         `yaml:"server,omitempty" jsonschema:"description=HTTP listener settings"`
	Script     ScriptConfig         `yaml:"script,omitempty" jsonschema:"description=Automation entry point"`
	Container  ContainerConfig      `yaml:"container,omitempty" jsonschema:"description=Run the entry point inside an existing container"`
	Process    ProcessConfig        `yaml:"process,omitempty" jsonschema:"description=Child process supervision"`
	Stream     StreamConfig         `yaml:"stream,omitempty" jsonschema:"description=Output streaming"`
	Flags      FlagsConfig          `yaml:"flags,omitempty" jsonschema:"description=Flag files shared with the script"`
	Prompts    []PromptRule         `yaml:"prompts,omitempty" jsonschema:"description=Prompt detection rules; replaces the built-in set when present"`
	Operations map[string]Operation `yaml:"operations,omitempty" jsonschema:"description=Named operations and their steps"`
	History    HistoryConfig        `yaml:"history,omitempty" jsonschema:"description=Execution history database"`
	Artifacts  ArtifactsConfig      `yaml:"artifacts,omitempty" jsonschema:"description=Files produced by the script that the panel lists"`

	// Extensions captures all other top-level keys (for example logging).
	Extensions map[string]interface{} `yaml:",inline" jsonschema:"-"`
}

// ServerConfig configures the HTTP control API.
type ServerConfig struct {
	Listen          string        `yaml:"listen,omitempty" jsonschema:"description=Address the daemon listens on (default 127.0.0.1:5000)"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty" jsonschema:"type=string,description=Graceful shutdown bound (e.g. 5s)"`
	AllowedOrigins  []string      `yaml:"allowed_origins,omitempty" jsonschema:"description=Origins accepted by the WebSocket endpoint; empty allows same-origin only"`
}

// ScriptConfig describes the external automation entry point.
type ScriptConfig struct {
	Interpreter string   `yaml:"interpreter,omitempty" jsonschema:"description=Interpreter used to run the entry point"`
	Entrypoint  string   `yaml:"entrypoint,omitempty" jsonschema:"description=Path of the automation script"`
	WorkDir     string   `yaml:"workdir,omitempty" jsonschema:"description=Working directory for local execution"`
	Env         []string `yaml:"env,omitempty" jsonschema:"description=Extra KEY=VALUE pairs for the child environment"`
}

// ContainerConfig selects container execution.
type ContainerConfig struct {
	Enabled bool   `yaml:"enabled,omitempty" jsonschema:"description=Execute via docker exec"`
	Name    string `yaml:"name,omitempty" jsonschema:"description=Name of the running container"`
	// CheckBeforeStart verifies the container is running before launching a step.
	CheckBeforeStart *bool `yaml:"check_before_start,omitempty" jsonschema:"description=Verify the container is running before each launch (default true)"`
}

// ProcessConfig tunes supervision of child processes.
type ProcessConfig struct {
	GracePeriod  time.Duration `yaml:"grace_period,omitempty" jsonschema:"type=string,description=Time between SIGTERM and SIGKILL (default 5s)"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty" jsonschema:"type=string,description=Read poll interval of the output reader (default 100ms)"`
	DrainTimeout time.Duration `yaml:"drain_timeout,omitempty" jsonschema:"type=string,description=How long the reader waits for exit after end of output (default 5s)"`
	UsePTY       bool          `yaml:"use_pty,omitempty" jsonschema:"description=Run children under a pseudo-terminal"`
}

// StreamConfig tunes the event stream.
type StreamConfig struct {
	KeepAlive     time.Duration `yaml:"keepalive,omitempty" jsonschema:"type=string,description=Idle interval between keepalives (default 15s)"`
	PromptTimeout time.Duration `yaml:"prompt_timeout,omitempty" jsonschema:"type=string,description=Wait bound after a prompt before the stream closes (default 10m)"`
	ReplayLines   int           `yaml:"replay_lines,omitempty" jsonschema:"description=Lines kept for replay on reconnect (default 200)"`
}

// FlagsConfig names the flag files.
type FlagsConfig struct {
	Dir       string `yaml:"dir,omitempty" jsonschema:"description=Directory holding flag files (default script.workdir)"`
	Pause     string `yaml:"pause,omitempty" jsonschema:"description=Pause flag file name (default pause.flag)"`
	ForceSave string `yaml:"force_save,omitempty" jsonschema:"description=Force-save flag file name (default grava.flag)"`
	Skip      string `yaml:"skip,omitempty" jsonschema:"description=Skip flag file name (default pula.flag)"`
}

// PromptRule is a conjunction of case-insensitive regular expressions.
type PromptRule struct {
	Name     string   `yaml:"name" jsonschema:"required,description=Rule name"`
	Patterns []string `yaml:"patterns" jsonschema:"required,minItems=1,description=All patterns must match"`
}

// Operation is a named sequence of script invocations.
type Operation struct {
	Description string `yaml:"description,omitempty" jsonschema:"description=Human readable description"`
	Steps       []Step `yaml:"steps" jsonschema:"required,minItems=1,description=Ordered steps"`
}

// Step is a single invocation of the entry point.
type Step struct {
	Args        []string `yaml:"args" json:"args" jsonschema:"required,description=Arguments passed to the entry point"`
	Interactive bool     `yaml:"interactive,omitempty" json:"interactive,omitempty" jsonschema:"description=Step expects typed input; stdin is kept open and the pause flag is raised"`
}

// HistoryConfig configures the execution history store.
type HistoryConfig struct {
	Disabled bool   `yaml:"disabled,omitempty" jsonschema:"description=Do not record executions"`
	Path     string `yaml:"path,omitempty" jsonschema:"description=SQLite database path"`
}

// ArtifactsConfig configures artifact listing.
type ArtifactsConfig struct {
	Dir      string        `yaml:"dir,omitempty" jsonschema:"description=Directory to scan (default script.workdir)"`
	Patterns []string      `yaml:"patterns,omitempty" jsonschema:"description=File patterns to list"`
	MaxAge   time.Duration `yaml:"max_age,omitempty" jsonschema:"type=string,description=Ignore files older than this (default 720h)"`
}

// OperationNames returns the configured operation names in sorted order.
func (c *Config) OperationNames() []string {
	names := make([]string, 0, len(c.Operations))
	for name := range c.Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckContainer reports whether the container should be verified before launch.
func (c *ContainerConfig) CheckContainer() bool {
	return c.Enabled && c.Name != "" && (c.CheckBeforeStart == nil || *c.CheckBeforeStart)
}

// UnmarshalExtension decodes an extension's configuration into a target struct.
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// It's not an error if the key doesn't exist.
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "yaml",
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
