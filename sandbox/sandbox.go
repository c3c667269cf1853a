// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Spec describes the container for one run.
type Spec struct {
	Name      string
	Image     string
	User      string
	Command   []string
	Env       []string
	Binds     []Bind
	CPUShares int64
	Memory    int64
}

// Output receives the container's streams as they are produced.
type Output struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Sandbox runs specs on an engine.
type Sandbox struct {
	engine Engine
	logger *slog.Logger
}

// Config holds configuration for creating a new Sandbox.
type Config struct {
	Engine Engine
	Logger *slog.Logger
}

// New creates a new Sandbox.
func New(config Config) (*Sandbox, error) {
	if config.Engine == nil {
		return nil, errors.New("engine is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sandbox{engine: config.Engine, logger: logger}, nil
}

// Run creates the container described by spec, streams its output to
// output until it exits, and returns its exit status. A create
// failure is returned as is and leaves nothing to clean up. Once the
// container exists it is always waited for and deleted before Run
// returns or a panic propagates; cleanup failures are joined into the
// returned error.
func (s *Sandbox) Run(ctx context.Context, spec Spec, output Output) (status int, err error) {
	if err := spec.Validate(); err != nil {
		return -1, err
	}
	stdout, stderr := output.Stdout, output.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	logger := s.logger.With("container", spec.Name, "image", spec.Image)
	logger.Info("creating container", "binds", spec.bindStrings())

	id, err := s.engine.Create(ctx, CreateRequest{
		Name:      spec.Name,
		Image:     spec.Image,
		User:      spec.User,
		Command:   spec.Command,
		Env:       spec.Env,
		Binds:     spec.bindStrings(),
		CPUShares: spec.CPUShares,
		Memory:    spec.Memory,
	})
	if err != nil {
		return -1, fmt.Errorf("creating container %s: %w", spec.Name, err)
	}

	defer func() {
		cleanup := context.WithoutCancel(ctx)

		logger.Info("waiting for container to finish")
		code, waitErr := s.engine.Wait(cleanup, id)
		switch {
		case waitErr != nil:
			status = -1
			err = errors.Join(err, fmt.Errorf("waiting for container %s: %w", spec.Name, waitErr))
		case err == nil:
			status = code
		}

		logger.Info("deleting container")
		if deleteErr := s.engine.Delete(cleanup, id); deleteErr != nil {
			err = errors.Join(err, fmt.Errorf("deleting container %s: %w", spec.Name, deleteErr))
		}
		logger.Info("container finished", "status", status)
	}()

	if err := s.engine.Start(ctx, id); err != nil {
		s.kill(ctx, logger, id)
		return -1, fmt.Errorf("starting container %s: %w", spec.Name, err)
	}
	if err := s.engine.Attach(ctx, id, stdout, stderr); err != nil {
		s.kill(ctx, logger, id)
		return -1, fmt.Errorf("attaching to container %s: %w", spec.Name, err)
	}
	return status, nil
}

// kill stops the container after a failed start or attach. Failure is
// logged only: the container may already have exited, and the
// deferred wait and delete run either way.
func (s *Sandbox) kill(ctx context.Context, logger *slog.Logger, id string) {
	if err := s.engine.Kill(context.WithoutCancel(ctx), id); err != nil {
		logger.Warn("could not kill container", "error", err)
	}
}

// Validate checks that spec can be handed to an engine.
func (spec Spec) Validate() error {
	var errs []error
	if spec.Name == "" {
		errs = append(errs, errors.New("container name is required"))
	}
	if spec.Image == "" {
		errs = append(errs, errors.New("container image is required"))
	}
	if len(spec.Command) == 0 {
		errs = append(errs, errors.New("container command is required"))
	}
	for _, bind := range spec.Binds {
		if err := bind.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (spec Spec) bindStrings() []string {
	binds := make([]string, len(spec.Binds))
	for index, bind := range spec.Binds {
		binds[index] = bind.String()
	}
	return binds
}
