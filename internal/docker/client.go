package docker

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

// ErrImageNotFound is returned when the sandbox image is not available locally.
var ErrImageNotFound = errors.New("docker image not found")

// engine is the subset of the Docker Engine API the runner needs.
type engine interface {
	Create(ctx context.Context, cfg *container.Config, host *container.HostConfig) (string, error)
	Start(ctx context.Context, id string) error
	Wait(ctx context.Context, id string) (int64, error)
	Logs(ctx context.Context, id string) (io.ReadCloser, error)
	Remove(ctx context.Context, id string) error
	HasImage(ctx context.Context, image string) (bool, error)
	Close() error
}

// apiEngine implements engine with the official client.
type apiEngine struct {
	cli *client.Client
}

// newAPIEngine connects using DOCKER_HOST and friends from the environment.
func newAPIEngine() (*apiEngine, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &apiEngine{cli: cli}, nil
}

func (e *apiEngine) Create(ctx context.Context, cfg *container.Config, host *container.HostConfig) (string, error) {
	resp, err := e.cli.ContainerCreate(ctx, cfg, host, nil, nil, "")
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", fmt.Errorf("%s: %w", cfg.Image, ErrImageNotFound)
		}
		return "", err
	}
	return resp.ID, nil
}

func (e *apiEngine) Start(ctx context.Context, id string) error {
	return e.cli.ContainerStart(ctx, id, container.StartOptions{})
}

func (e *apiEngine) Wait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := e.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return status.StatusCode, errors.New(status.Error.Message)
		}
		return status.StatusCode, nil
	}
}

func (e *apiEngine) Logs(ctx context.Context, id string) (io.ReadCloser, error) {
	return e.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
}

func (e *apiEngine) Remove(ctx context.Context, id string) error {
	return e.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

func (e *apiEngine) HasImage(ctx context.Context, image string) (bool, error) {
	if _, _, err := e.cli.ImageInspectWithRaw(ctx, image); err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (e *apiEngine) Close() error {
	return e.cli.Close()
}
