package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLegacyEnv(t *testing.T) {
	env, err := ParseLegacyEnv([]byte(`
# comment
WORKDIR = /home/ops/autoreg
PYTHONPATH = "/usr/bin/python3"
AUTOREGPATH = /home/ops/autoreg/autoreg.py
DOCKER = docker exec -it autoreg bash
USE_DOCKER = enabled
SECRET_KEY = ignored
`))
	require.NoError(t, err)

	assert.Equal(t, "/home/ops/autoreg", env.WorkDir)
	assert.Equal(t, "/usr/bin/python3", env.Interpreter)
	assert.Equal(t, "/home/ops/autoreg/autoreg.py", env.Entrypoint)
	assert.True(t, env.UseContainer)
	assert.Equal(t, "autoreg", env.ContainerName())
}

func TestLegacyEnvSwitchSpellings(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"YES", true},
		{"on", true},
		{"enabled", true},
		{"false", false},
		{"0", false},
		{"off", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			env, err := ParseLegacyEnv([]byte("USE_DOCKER = " + tt.value))
			require.NoError(t, err)
			assert.Equal(t, tt.want, env.UseContainer)
		})
	}
}

func TestLegacyContainerName(t *testing.T) {
	tests := []struct {
		docker string
		want   string
	}{
		{"autoreg", "autoreg"},
		{"docker exec -it autoreg bash", "autoreg"},
		{"docker exec autoreg_app sh", "autoreg_app"},
		{"docker ps", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.docker, func(t *testing.T) {
			env := &LegacyEnv{Docker: tt.docker}
			assert.Equal(t, tt.want, env.ContainerName())
		})
	}
}

func TestLegacyEnvApplyToFillsOnlyUnset(t *testing.T) {
	cfg := &Config{Script: ScriptConfig{Entrypoint: "/explicit.py"}}
	env := &LegacyEnv{WorkDir: "/w", Entrypoint: "/legacy.py", Docker: "c1", UseContainer: true}

	env.ApplyTo(cfg)

	assert.Equal(t, "/explicit.py", cfg.Script.Entrypoint)
	assert.Equal(t, "/w", cfg.Script.WorkDir)
	assert.Equal(t, "c1", cfg.Container.Name)
	assert.True(t, cfg.Container.Enabled)
}
