package collector

import (
	"context"
	"time"

	"github.com/grovetools/autoreg/docker"
	"github.com/grovetools/autoreg/internal/daemon/store"
)

// ContainerCollector polls the execution container's state.
type ContainerCollector struct {
	client   docker.Client
	name     string
	interval time.Duration
}

// NewContainerCollector creates a new ContainerCollector.
func NewContainerCollector(client docker.Client, name string) *ContainerCollector {
	return &ContainerCollector{
		client:   client,
		name:     name,
		interval: 10 * time.Second,
	}
}

// Name returns the collector's name.
func (c *ContainerCollector) Name() string { return "container" }

// Run polls until ctx is canceled.
func (c *ContainerCollector) Run(ctx context.Context, st *store.Store, updates chan<- store.Update) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	scan := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		status, err := c.client.ContainerStatus(checkCtx, c.name)
		cancel()
		select {
		case updates <- store.Update{Type: store.UpdateContainer, Source: c.Name(), Payload: store.ContainerReport{Status: status, Err: err}}:
		case <-ctx.Done():
		}
	}

	scan()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			scan()
		}
	}
}
