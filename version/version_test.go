package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShort(t *testing.T) {
	assert.Equal(t, "v1.2.0 (0123456)", Info{Version: "v1.2.0", Commit: "0123456789abcdef"}.Short())
	assert.Equal(t, "dev", Info{Version: "dev", Commit: "none"}.Short())
}

func TestUserAgent(t *testing.T) {
	assert.True(t, strings.HasPrefix(UserAgent(), "autoreg/"+Version+" ("))
}
