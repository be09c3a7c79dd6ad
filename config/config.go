package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/pkg/paths"
	"github.com/grovetools/autoreg/util/pathutil"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

var configNames = []string{
	"autoreg.yml",
	"autoreg.yaml",
	"autoreg.toml",
	".autoreg.yml",
	".autoreg.yaml",
}

// Load reads and parses a single configuration file.
func Load(path string) (*Config, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	return finalize(doc, filepath.Dir(path), logrus.New())
}

// LoadDefault finds and loads the configuration starting at the current directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}

	return LoadFrom(cwd)
}

// LoadFrom loads configuration with hierarchical merging starting from the given directory.
func LoadFrom(startDir string) (*Config, error) {
	return LoadFromWithLogger(startDir, logrus.New())
}

// LoadFromWithLogger loads configuration with hierarchical merging:
// 1. Global config (~/.config/autoreg/autoreg.yml) - base layer
// 2. Project config found walking up from startDir - overrides global
// 3. Legacy env file (env_file, or ./env next to the project) - fills unset fields
//
// A missing project config is not an error as long as a legacy env file exists.
func LoadFromWithLogger(startDir string, logger *logrus.Logger) (*Config, error) {
	merged := map[string]interface{}{}
	baseDir := startDir

	globalPath := getXDGConfigPath()
	if globalPath != "" {
		if _, err := os.Stat(globalPath); err == nil {
			logger.WithField("path", globalPath).Debug("Loading global configuration")
			doc, err := readDocument(globalPath)
			if err != nil {
				logger.WithError(err).Warn("Failed to parse global configuration, continuing without it")
			} else {
				merged = mergeDocuments(merged, doc)
			}
		}
	}

	projectPath, err := FindConfigFile(startDir)
	if err == nil {
		logger.WithField("path", projectPath).Debug("Loading project configuration")
		doc, err := readDocument(projectPath)
		if err != nil {
			return nil, err
		}
		merged = mergeDocuments(merged, doc)
		baseDir = filepath.Dir(projectPath)
	} else if !errors.Is(err, errors.ErrCodeConfigNotFound) {
		return nil, err
	} else if _, statErr := os.Stat(filepath.Join(startDir, legacyEnvFileName)); statErr != nil && len(merged) == 0 {
		return nil, err
	}

	cfg, err := finalize(merged, baseDir, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug("Configuration loaded and validated successfully")
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(cfg); err == nil {
			logger.Debugf("Merged configuration:\n%s", string(data))
		}
	}
	return cfg, nil
}

// LoadFromBytes parses YAML configuration from a byte array.
func LoadFromBytes(data []byte) (*Config, error) {
	doc, err := parseDocument(data, ".yml")
	if err != nil {
		return nil, err
	}
	return finalize(doc, "", logrus.New())
}

// finalize validates the raw document against the schema, decodes it, layers
// the legacy env file underneath and applies defaults.
func finalize(doc map[string]interface{}, baseDir string, logger *logrus.Logger) (*Config, error) {
	validator, err := NewSchemaValidator()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to create validator")
	}
	if err := validator.ValidateDocument(doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "schema validation failed")
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to re-encode configuration")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse configuration")
	}

	envPath := cfg.EnvFile
	if envPath == "" && baseDir != "" {
		envPath = filepath.Join(baseDir, legacyEnvFileName)
	} else if envPath != "" && !filepath.IsAbs(envPath) && baseDir != "" {
		envPath = filepath.Join(baseDir, envPath)
	}
	if envPath != "" {
		legacy, err := LoadLegacyEnv(envPath)
		switch {
		case err == nil:
			logger.WithField("path", envPath).Debug("Applying legacy env file")
			legacy.ApplyTo(&cfg)
		case errors.Is(err, errors.ErrCodeConfigNotFound):
			if cfg.EnvFile != "" {
				return nil, err
			}
		default:
			return nil, err
		}
	}

	if err := pathutil.ExpandAll(baseDir, &cfg.Script.WorkDir, &cfg.Flags.Dir, &cfg.Artifacts.Dir, &cfg.History.Path); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to resolve configured paths")
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readDocument(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	doc, err := parseDocument(data, filepath.Ext(path))
	if err != nil {
		if ae, ok := err.(*errors.AutoregError); ok {
			ae.WithDetail("path", path)
		}
		return nil, err
	}
	return doc, nil
}

// parseDocument decodes YAML or TOML into a JSON-compatible generic map.
func parseDocument(data []byte, ext string) (map[string]interface{}, error) {
	expanded := []byte(expandEnvVars(string(data)))

	var raw map[string]interface{}
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(expanded, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
		}
	default:
		if err := yaml.Unmarshal(expanded, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
		}
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}

	// Normalize through JSON so the schema validator sees plain JSON types.
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "configuration is not JSON compatible")
	}
	var normalized map[string]interface{}
	if err := json.Unmarshal(jsonData, &normalized); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "configuration is not JSON compatible")
	}
	return normalized, nil
}

// mergeDocuments deep-merges override into base. Maps merge recursively;
// every other value (lists included) is replaced.
func mergeDocuments(base, override map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if ov, ok := v.(map[string]interface{}); ok {
			if bv, ok := result[k].(map[string]interface{}); ok {
				result[k] = mergeDocuments(bv, ov)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// FindConfigFile searches for configuration files with the following precedence:
// 1. Current directory up to filesystem root
// 2. XDG config directory (~/.config/autoreg/autoreg.yml)
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if xdgConfigPath := getXDGConfigPath(); xdgConfigPath != "" {
		if info, err := os.Stat(xdgConfigPath); err == nil && !info.IsDir() {
			return xdgConfigPath, nil
		}
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

// getXDGConfigPath returns the global config path
func getXDGConfigPath() string {
	dir := paths.ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "autoreg.yml")
}
