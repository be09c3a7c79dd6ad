package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/autoreg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromBytesAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
script:
  interpreter: /usr/bin/python3
  entrypoint: /opt/autoreg/autoreg.py
  workdir: /srv/autoreg
`))
	require.NoError(t, err)

	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Equal(t, 5*time.Second, cfg.Process.GracePeriod)
	assert.Equal(t, 100*time.Millisecond, cfg.Process.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Stream.PromptTimeout)
	assert.Equal(t, "/srv/autoreg", cfg.Flags.Dir)
	assert.Equal(t, "pause.flag", cfg.Flags.Pause)
	assert.Equal(t, "grava.flag", cfg.Flags.ForceSave)
	assert.Equal(t, "pula.flag", cfg.Flags.Skip)
	assert.Len(t, cfg.Prompts, 3)
	assert.Equal(t, []string{"buscar-pendentes", "internacoes-solicitar", "solicitar-tcs"}, cfg.OperationNames())
	assert.True(t, cfg.Operations["internacoes-solicitar"].Steps[0].Interactive)
}

func TestLoadFromBytesDurationsAndOperations(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
script:
  entrypoint: run.sh
process:
  grace_period: 2s
  poll_interval: 50ms
stream:
  prompt_timeout: 3m
  replay_lines: 10
operations:
  smoke:
    steps:
      - args: ["-a"]
      - args: ["-b"]
        interactive: true
`))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Process.GracePeriod)
	assert.Equal(t, 50*time.Millisecond, cfg.Process.PollInterval)
	assert.Equal(t, 3*time.Minute, cfg.Stream.PromptTimeout)
	assert.Equal(t, 10, cfg.Stream.ReplayLines)
	require.Contains(t, cfg.Operations, "smoke")
	assert.Len(t, cfg.Operations, 1, "configured operations replace the defaults")
	assert.True(t, cfg.Operations["smoke"].Steps[1].Interactive)
}

func TestLoadFromBytesRejectsUnknownNestedKeys(t *testing.T) {
	_, err := LoadFromBytes([]byte(`
script:
  entrypoint: run.sh
  entry_point_typo: x
`))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}

func TestExtensions(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
script:
  entrypoint: run.sh
logging:
  level: debug
  report_caller: true
`))
	require.NoError(t, err)

	type loggingConfig struct {
		Level        string `yaml:"level"`
		ReportCaller bool   `yaml:"report_caller"`
	}
	var lc loggingConfig
	require.NoError(t, cfg.UnmarshalExtension("logging", &lc))
	assert.Equal(t, "debug", lc.Level)
	assert.True(t, lc.ReportCaller)

	var missing loggingConfig
	require.NoError(t, cfg.UnmarshalExtension("absent", &missing))
	assert.Empty(t, missing.Level)
}

func TestEnvVarExpansion(t *testing.T) {
	t.Setenv("AUTOREG_TEST_ENTRY", "/opt/x.py")

	cfg, err := LoadFromBytes([]byte(`
script:
  entrypoint: ${AUTOREG_TEST_ENTRY}
  interpreter: ${AUTOREG_TEST_MISSING:-python3}
`))
	require.NoError(t, err)
	assert.Equal(t, "/opt/x.py", cfg.Script.Entrypoint)
	assert.Equal(t, "python3", cfg.Script.Interpreter)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing entrypoint", `script: {interpreter: python3}`},
		{"container without name", "script: {entrypoint: a.py}\ncontainer: {enabled: true}"},
		{"bad operation name", "script: {entrypoint: a.py}\noperations:\n  Bad Name:\n    steps: [{args: [-a]}]"},
		{"shell metacharacter in args", "script: {entrypoint: a.py}\noperations:\n  op:\n    steps: [{args: ['-a;rm']}]"},
		{"invalid prompt regex", "script: {entrypoint: a.py}\nprompts:\n  - name: broken\n    patterns: ['(unclosed']"},
		{"duplicate flag names", "script: {entrypoint: a.py}\nflags: {pause: x.flag, skip: x.flag}"},
		{"flag with path", "script: {entrypoint: a.py}\nflags: {pause: ../pause.flag}"},
		{"bad container name", "script: {entrypoint: a.py}\ncontainer: {name: 'autoreg app'}"},
		{"empty step argument", "script: {entrypoint: a.py}\noperations:\n  op:\n    steps: [{args: ['']}]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.yaml))
			require.Error(t, err)
			code := errors.GetCode(err)
			assert.Contains(t, []errors.ErrorCode{errors.ErrCodeConfigValidation, errors.ErrCodeConfigInvalid}, code)
		})
	}
}

func TestLoadFromWalksUpAndLayersEnvFile(t *testing.T) {
	t.Setenv("AUTOREG_HOME", t.TempDir())
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	require.NoError(t, os.WriteFile(filepath.Join(root, "autoreg.yml"), []byte(`
script:
  interpreter: /usr/bin/python3
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "env"), []byte(`
WORKDIR = /srv/work
PYTHONPATH = /ignored/python
AUTOREGPATH = /srv/work/autoreg.py
DOCKER = docker exec -it autoreg_app bash
USE_DOCKER = yes
`), 0644))

	cfg, err := LoadFrom(nested)
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/python3", cfg.Script.Interpreter, "yaml wins over env file")
	assert.Equal(t, "/srv/work/autoreg.py", cfg.Script.Entrypoint)
	assert.Equal(t, "/srv/work", cfg.Script.WorkDir)
	assert.Equal(t, "autoreg_app", cfg.Container.Name)
	assert.True(t, cfg.Container.Enabled)
	assert.Equal(t, "/srv/work", cfg.Flags.Dir)
}

func TestLoadFromTOML(t *testing.T) {
	t.Setenv("AUTOREG_HOME", t.TempDir())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "autoreg.toml"), []byte(`
[script]
entrypoint = "/opt/run.py"

[process]
grace_period = "3s"
`), 0644))

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "/opt/run.py", cfg.Script.Entrypoint)
	assert.Equal(t, 3*time.Second, cfg.Process.GracePeriod)
}

func TestLoadFromNothingFound(t *testing.T) {
	t.Setenv("AUTOREG_HOME", t.TempDir())
	_, err := LoadFrom(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestMergeDocuments(t *testing.T) {
	base := map[string]interface{}{
		"server": map[string]interface{}{"listen": ":1", "shutdown_timeout": "5s"},
		"script": map[string]interface{}{"env": []interface{}{"A=1"}},
	}
	override := map[string]interface{}{
		"server": map[string]interface{}{"listen": ":2"},
		"script": map[string]interface{}{"env": []interface{}{"B=2"}},
	}

	merged := mergeDocuments(base, override)
	server := merged["server"].(map[string]interface{})
	assert.Equal(t, ":2", server["listen"])
	assert.Equal(t, "5s", server["shutdown_timeout"])
	assert.Equal(t, []interface{}{"B=2"}, merged["script"].(map[string]interface{})["env"])
}

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	props, ok := doc["properties"].(map[string]interface{})
	require.True(t, ok)
	for _, key := range []string{"script", "container", "process", "stream", "flags", "prompts", "operations", "logging"} {
		assert.Contains(t, props, key)
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autoreg.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
script:
  entrypoint: autoreg.py
  workdir: ./work
history:
  path: state/history.db
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "work"), cfg.Script.WorkDir)
	assert.Equal(t, filepath.Join(dir, "work"), cfg.Flags.Dir)
	assert.Equal(t, filepath.Join(dir, "state", "history.db"), cfg.History.Path)
	// The entry point may name a path inside the container; it is left as written.
	assert.Equal(t, "autoreg.py", cfg.Script.Entrypoint)
}
