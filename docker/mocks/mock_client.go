package mocks

import (
	"context"

	"github.com/grovetools/autoreg/docker"
)

// MockClient is a mock implementation of docker.Client for testing
type MockClient struct {
	IsContainerRunningFunc func(ctx context.Context, containerName string) (bool, error)
	ContainerStatusFunc    func(ctx context.Context, containerName string) (*docker.ContainerStatus, error)
	ContainerIPFunc        func(ctx context.Context, containerName string) (string, error)

	// Calls counts IsContainerRunning invocations.
	Calls int
}

// IsContainerRunning calls the mock function
func (m *MockClient) IsContainerRunning(ctx context.Context, containerName string) (bool, error) {
	m.Calls++
	if m.IsContainerRunningFunc != nil {
		return m.IsContainerRunningFunc(ctx, containerName)
	}
	return false, nil
}

// ContainerStatus calls the mock function
func (m *MockClient) ContainerStatus(ctx context.Context, containerName string) (*docker.ContainerStatus, error) {
	if m.ContainerStatusFunc != nil {
		return m.ContainerStatusFunc(ctx, containerName)
	}
	return &docker.ContainerStatus{Name: containerName}, nil
}

// ContainerIP calls the mock function
func (m *MockClient) ContainerIP(ctx context.Context, containerName string) (string, error) {
	if m.ContainerIPFunc != nil {
		return m.ContainerIPFunc(ctx, containerName)
	}
	return "", nil
}

// Close is a no-op.
func (m *MockClient) Close() error {
	return nil
}

var _ docker.Client = (*MockClient)(nil)
