// Package docker reports the state of the container the automation runs in.
package docker

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// Client abstracts Docker operations for testing
type Client interface {
	IsContainerRunning(ctx context.Context, containerName string) (bool, error)
	ContainerStatus(ctx context.Context, containerName string) (*ContainerStatus, error)
	ContainerIP(ctx context.Context, containerName string) (string, error)
	Close() error
}

// ContainerStatus is the panel's view of one container.
type ContainerStatus struct {
	Name    string            `json:"name"`
	Exists  bool              `json:"exists"`
	Running bool              `json:"running"`
	State   string            `json:"state,omitempty"`
	Status  string            `json:"status,omitempty"`
	Image   string            `json:"image,omitempty"`
	IPs     map[string]string `json:"ips,omitempty"`
}

// IP returns the address on the first network, by network name.
func (s *ContainerStatus) IP() string {
	if s == nil || len(s.IPs) == 0 {
		return ""
	}
	names := make([]string, 0, len(s.IPs))
	for name := range s.IPs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if ip := s.IPs[name]; ip != "" {
			return ip
		}
	}
	return ""
}

// SDKClient implements Client using the Docker SDK
type SDKClient struct {
	cli *client.Client
}

// NewSDKClient creates a new Docker SDK client
func NewSDKClient() (*SDKClient, error) {
	// First check if DOCKER_HOST is already set
	if os.Getenv("DOCKER_HOST") != "" {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("failed to create docker client with DOCKER_HOST: %w", err)
		}
		return &SDKClient{cli: cli}, nil
	}

	// Try common Docker socket locations
	homeDir, _ := os.UserHomeDir()
	socketPaths := []string{
		"unix:///var/run/docker.sock",
		// Docker Desktop
		fmt.Sprintf("unix://%s/.docker/run/docker.sock", homeDir),
		// Colima default
		fmt.Sprintf("unix://%s/.config/colima/default/docker.sock", homeDir),
	}

	var lastErr error
	for _, socketPath := range socketPaths {
		cli, err := client.NewClientWithOpts(
			client.WithHost(socketPath),
			client.WithAPIVersionNegotiation(),
		)
		if err != nil {
			lastErr = err
			continue
		}

		// Test the connection
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err = cli.Ping(ctx)
		cancel()
		if err == nil {
			return &SDKClient{cli: cli}, nil
		}

		cli.Close()
		lastErr = err
	}

	// If we get here, no socket worked
	return nil, fmt.Errorf("failed to connect to Docker. Make sure Docker is running. Last error: %w", lastErr)
}

// IsContainerRunning checks if a container is running
func (c *SDKClient) IsContainerRunning(ctx context.Context, containerName string) (bool, error) {
	st, err := c.ContainerStatus(ctx, containerName)
	if err != nil {
		return false, err
	}
	return st.Running, nil
}

// ContainerStatus looks the container up by exact name. A missing container
// is not an error; Exists is false.
func (c *SDKClient) ContainerStatus(ctx context.Context, containerName string) (*ContainerStatus, error) {
	containers, err := c.cli.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(filters.KeyValuePair{
			Key:   "name",
			Value: containerName,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	st := &ContainerStatus{Name: containerName}
	for _, cont := range containers {
		// Check exact name match (Docker adds "/" prefix)
		for _, name := range cont.Names {
			if name != "/"+containerName {
				continue
			}
			st.Exists = true
			st.State = string(cont.State)
			st.Status = cont.Status
			st.Image = cont.Image
			st.Running = st.State == "running"
			if cont.NetworkSettings != nil {
				st.IPs = make(map[string]string, len(cont.NetworkSettings.Networks))
				for netName, ep := range cont.NetworkSettings.Networks {
					if ep != nil {
						st.IPs[netName] = ep.IPAddress
					}
				}
			}
			return st, nil
		}
	}
	return st, nil
}

// ContainerIP returns the container's address, or an error when it is not running.
func (c *SDKClient) ContainerIP(ctx context.Context, containerName string) (string, error) {
	st, err := c.ContainerStatus(ctx, containerName)
	if err != nil {
		return "", err
	}
	if !st.Running {
		return "", fmt.Errorf("container %s is not running", containerName)
	}
	ip := st.IP()
	if ip == "" {
		return "", fmt.Errorf("container %s has no network address", containerName)
	}
	return ip, nil
}

// Close releases the SDK client.
func (c *SDKClient) Close() error {
	return c.cli.Close()
}

// Unavailable stands in when no Docker daemon could be reached. Every call
// reports the connection error so callers surface it per request.
type Unavailable struct {
	Err error
}

// IsContainerRunning returns the connection error.
func (u Unavailable) IsContainerRunning(context.Context, string) (bool, error) {
	return false, u.Err
}

// ContainerStatus returns the connection error.
func (u Unavailable) ContainerStatus(context.Context, string) (*ContainerStatus, error) {
	return nil, u.Err
}

// ContainerIP returns the connection error.
func (u Unavailable) ContainerIP(context.Context, string) (string, error) {
	return "", u.Err
}

// Close is a no-op.
func (u Unavailable) Close() error {
	return nil
}
