package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("AUTOREG_TEST_DIR", "/srv/autoreg")

	tests := []struct {
		name    string
		path    string
		baseDir string
		want    string
	}{
		{"empty", "", "/etc", ""},
		{"home", "~/autoreg", "", filepath.Join(home, "autoreg")},
		{"bare home", "~", "/etc", home},
		{"env", "${AUTOREG_TEST_DIR}/flags", "/etc", "/srv/autoreg/flags"},
		{"relative to base", "./work", "/opt/project", "/opt/project/work"},
		{"relative without base", "work/../out", "", "out"},
		{"absolute", "/var/lib/autoreg", "/opt/project", "/var/lib/autoreg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.path, tt.baseDir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandAll(t *testing.T) {
	a, b := "logs", ""
	require.NoError(t, ExpandAll("/base", &a, &b))
	assert.Equal(t, "/base/logs", a)
	assert.Equal(t, "", b)
}
