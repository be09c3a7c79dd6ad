package config

import (
	"bufio"
	"bytes"
	"os"
	"reflect"
	"strings"

	"github.com/grovetools/autoreg/errors"
	"github.com/mitchellh/mapstructure"
)

const legacyEnvFileName = "env"

// LegacyEnv is the KEY = value file the automation scripts already read.
type LegacyEnv struct {
	WorkDir      string `env:"WORKDIR"`
	Interpreter  string `env:"PYTHONPATH"`
	Entrypoint   string `env:"AUTOREGPATH"`
	Docker       string `env:"DOCKER"`
	UseContainer bool   `env:"USE_DOCKER"`
}

// LoadLegacyEnv reads and decodes a legacy env file.
func LoadLegacyEnv(path string) (*LegacyEnv, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read env file").
			WithDetail("path", path)
	}
	return ParseLegacyEnv(data)
}

// ParseLegacyEnv decodes KEY = value lines. Blank lines and # comments are ignored,
// values may be quoted.
func ParseLegacyEnv(data []byte) (*LegacyEnv, error) {
	values := map[string]string{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read env file")
	}

	var env LegacyEnv
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &env,
		TagName:          "env",
		WeaklyTypedInput: true,
		DecodeHook:       looseBoolHook,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to create env decoder")
	}
	if err := decoder.Decode(values); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to decode env file")
	}
	return &env, nil
}

// looseBoolHook accepts the spellings operators use for switches.
func looseBoolHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
		return data, nil
	}
	switch strings.ToLower(strings.TrimSpace(data.(string))) {
	case "true", "1", "yes", "on", "enabled", "sim":
		return true, nil
	default:
		return false, nil
	}
}

// ContainerName extracts the container from the DOCKER value, which is either
// a bare name or a full command such as "docker exec -it autoreg bash".
func (e *LegacyEnv) ContainerName() string {
	fields := strings.Fields(e.Docker)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) == 1 {
		return fields[0]
	}
	for i, f := range fields {
		if f != "exec" {
			continue
		}
		for _, candidate := range fields[i+1:] {
			if !strings.HasPrefix(candidate, "-") {
				return candidate
			}
		}
	}
	return ""
}

// ApplyTo fills fields of cfg that are still unset.
func (e *LegacyEnv) ApplyTo(cfg *Config) {
	if cfg.Script.WorkDir == "" {
		cfg.Script.WorkDir = e.WorkDir
	}
	if cfg.Script.Interpreter == "" {
		cfg.Script.Interpreter = e.Interpreter
	}
	if cfg.Script.Entrypoint == "" {
		cfg.Script.Entrypoint = e.Entrypoint
	}
	if cfg.Container.Name == "" {
		cfg.Container.Name = e.ContainerName()
	}
	if !cfg.Container.Enabled {
		cfg.Container.Enabled = e.UseContainer
	}
}
