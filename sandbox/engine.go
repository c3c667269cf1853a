// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"errors"
	"io"
)

// ErrNameConflict is returned by Create when a container with the
// requested name already exists.
var ErrNameConflict = errors.New("container name already in use")

// Engine is the container engine control plane.
type Engine interface {
	// Create creates a stopped container and returns its id.
	Create(ctx context.Context, request CreateRequest) (string, error)

	// Start starts a created container.
	Start(ctx context.Context, id string) error

	// Attach copies the container's output to stdout and stderr as
	// it is produced, including anything written before the attach,
	// and returns when both streams close.
	Attach(ctx context.Context, id string, stdout, stderr io.Writer) error

	// Wait blocks until the container is not running and returns its
	// exit status.
	Wait(ctx context.Context, id string) (int, error)

	// Kill sends SIGKILL to a running container.
	Kill(ctx context.Context, id string) error

	// Delete removes the container, forcibly if it is still running.
	Delete(ctx context.Context, id string) error
}

// CreateRequest is everything the engine needs to create a container.
// Binds are fixed at creation; they cannot change at start.
type CreateRequest struct {
	Name      string
	Image     string
	User      string
	Command   []string
	Env       []string
	Binds     []string
	CPUShares int64
	Memory    int64
}
