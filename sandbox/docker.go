// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerConfig configures a DockerEngine.
type DockerConfig struct {
	// Host is the daemon endpoint. Empty uses DOCKER_HOST or the
	// default local socket.
	Host string

	// Timeout bounds each request. The attach stream is one request
	// that lasts as long as the run, so this must exceed the longest
	// run the host permits. Zero means no timeout.
	Timeout time.Duration

	// APIVersion pins the API version. Empty negotiates with the daemon.
	APIVersion string
}

// DockerEngine is the Engine backed by the Docker Engine API.
type DockerEngine struct {
	client *client.Client
}

// NewDockerEngine connects a client to the daemon. No request is made
// until the first operation.
func NewDockerEngine(cfg DockerConfig) (*DockerEngine, error) {
	options := []client.Opt{client.FromEnv}
	if cfg.Host != "" {
		options = append(options, client.WithHost(cfg.Host))
	}
	if cfg.Timeout > 0 {
		options = append(options, client.WithTimeout(cfg.Timeout))
	}
	if cfg.APIVersion != "" {
		options = append(options, client.WithVersion(cfg.APIVersion))
	} else {
		options = append(options, client.WithAPIVersionNegotiation())
	}

	dockerClient, err := client.NewClientWithOpts(options...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &DockerEngine{client: dockerClient}, nil
}

// Close releases the client's idle connections.
func (e *DockerEngine) Close() error {
	return e.client.Close()
}

func (e *DockerEngine) Create(ctx context.Context, request CreateRequest) (string, error) {
	response, err := e.client.ContainerCreate(ctx,
		&container.Config{
			Image: request.Image,
			User:  request.User,
			Cmd:   request.Command,
			Env:   request.Env,
		},
		&container.HostConfig{
			Binds: request.Binds,
			Resources: container.Resources{
				CPUShares: request.CPUShares,
				Memory:    request.Memory,
			},
		},
		nil, nil, request.Name)
	if err != nil {
		if errdefs.IsConflict(err) {
			return "", fmt.Errorf("%w: %s: %w", ErrNameConflict, request.Name, err)
		}
		return "", err
	}
	return response.ID, nil
}

func (e *DockerEngine) Start(ctx context.Context, id string) error {
	return e.client.ContainerStart(ctx, id, container.StartOptions{})
}

func (e *DockerEngine) Attach(ctx context.Context, id string, stdout, stderr io.Writer) error {
	response, err := e.client.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
		Logs:   true,
	})
	if err != nil {
		return err
	}
	defer response.Close()

	// The hijacked connection does not observe ctx once established.
	stop := context.AfterFunc(ctx, response.Close)
	defer stop()

	if _, err := stdcopy.StdCopy(stdout, stderr, response.Reader); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("reading attach stream: %w", err)
	}
	return nil
}

func (e *DockerEngine) Wait(ctx context.Context, id string) (int, error) {
	responses, errs := e.client.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case response := <-responses:
		if response.Error != nil && response.Error.Message != "" {
			return int(response.StatusCode), fmt.Errorf("container wait: %s", response.Error.Message)
		}
		return int(response.StatusCode), nil
	case err := <-errs:
		return 0, err
	}
}

func (e *DockerEngine) Kill(ctx context.Context, id string) error {
	return e.client.ContainerKill(ctx, id, "SIGKILL")
}

func (e *DockerEngine) Delete(ctx context.Context, id string) error {
	return e.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}
