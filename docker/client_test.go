package docker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainerStatusIP(t *testing.T) {
	var nilStatus *ContainerStatus
	assert.Equal(t, "", nilStatus.IP())

	st := &ContainerStatus{IPs: map[string]string{"zeta": "10.0.0.9", "alpha": "", "bridge": "172.17.0.2"}}
	assert.Equal(t, "172.17.0.2", st.IP(), "first non-empty address by network name")
}

func TestUnavailableReportsError(t *testing.T) {
	cause := errors.New("docker socket not found")
	var c Client = Unavailable{Err: cause}
	ctx := context.Background()

	running, err := c.IsContainerRunning(ctx, "autoreg")
	assert.False(t, running)
	assert.ErrorIs(t, err, cause)

	_, err = c.ContainerStatus(ctx, "autoreg")
	assert.ErrorIs(t, err, cause)

	_, err = c.ContainerIP(ctx, "autoreg")
	assert.ErrorIs(t, err, cause)
	assert.NoError(t, c.Close())
}
