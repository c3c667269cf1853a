// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/turbot/lib/config"
	"github.com/bureau-foundation/turbot/lib/coordinator"
	"github.com/bureau-foundation/turbot/lib/errortrack"
	"github.com/bureau-foundation/turbot/lib/records"
	"github.com/bureau-foundation/turbot/lib/run"
	"github.com/bureau-foundation/turbot/lib/version"
	"github.com/bureau-foundation/turbot/lib/workspace"
	"github.com/bureau-foundation/turbot/messaging"
	"github.com/bureau-foundation/turbot/runner"
	"github.com/bureau-foundation/turbot/sandbox"
)

// components is everything built from the configuration for one run.
type components struct {
	runner  *runner.Runner
	closers []func() error
}

// Close releases the engine, bus, and tracker connections.
func (c *components) Close(logger *slog.Logger) {
	for index := len(c.closers) - 1; index >= 0; index-- {
		if err := c.closers[index](); err != nil {
			logger.Warn("closing component", "error", err)
		}
	}
}

// build constructs the runner for params from cfg. No connection is
// opened; the runner connects to the bus itself.
func build(cfg *config.Config, params run.Params, logger *slog.Logger) (*components, error) {
	built := &components{}
	fail := func(err error) (*components, error) {
		built.Close(logger)
		return nil, err
	}

	manager, err := workspace.New(workspace.Config{
		Base:         cfg.Paths.Base,
		URLTemplate:  cfg.Git.URLTemplate,
		Attempts:     cfg.Git.Attempts,
		RetryDelay:   cfg.Git.RetryDelay,
		MinFreeBytes: cfg.Workspace.MinFreeBytes,
		Logger:       logger,
	})
	if err != nil {
		return fail(err)
	}

	engine, err := sandbox.NewDockerEngine(sandbox.DockerConfig{
		Host:    cfg.Sandbox.Host,
		Timeout: cfg.Sandbox.Timeout,
	})
	if err != nil {
		return fail(err)
	}
	built.closers = append(built.closers, engine.Close)
	containers, err := sandbox.New(sandbox.Config{Engine: engine, Logger: logger})
	if err != nil {
		return fail(err)
	}

	var bus messaging.Client
	var stats messaging.StatsSource
	switch cfg.Records.Handler {
	case config.HandlerBus:
		amqpClient, err := messaging.NewAMQPClient(messaging.AMQPConfig{
			URL:            cfg.Messaging.URL,
			Exchange:       cfg.Messaging.Exchange,
			Queue:          cfg.Messaging.Queue,
			ConnectionName: messaging.ConnectionPrefix + params.BotName + "/" + params.RunUID,
			Logger:         logger,
		})
		if err != nil {
			return fail(err)
		}
		built.closers = append(built.closers, amqpClient.Close)
		bus, stats = amqpClient, amqpClient

		if cfg.Messaging.ManagementURL != "" {
			management, err := messaging.NewManagementClient(messaging.ManagementConfig{
				URL:      cfg.Messaging.ManagementURL,
				User:     cfg.Messaging.ManagementUser,
				Password: cfg.Messaging.ManagementPassword,
				Queue:    cfg.Messaging.Queue,
				Timeout:  cfg.Messaging.ManagementTimeout,
				Logger:   logger,
			})
			if err != nil {
				return fail(err)
			}
			stats = management
		}
	case config.HandlerLog:
		logger.Warn("records handler is log, nothing will be published")
	default:
		return fail(fmt.Errorf("unknown records handler %q", cfg.Records.Handler))
	}

	coordinatorClient, err := coordinator.NewClient(coordinator.Config{
		URL:     cfg.Coordinator.URL,
		APIKey:  cfg.Coordinator.APIKey,
		Timeout: cfg.Coordinator.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return fail(err)
	}

	tracker, err := newTracker(cfg, logger)
	if err != nil {
		return fail(err)
	}
	built.closers = append(built.closers, tracker.Close)

	built.runner, err = runner.New(runner.Config{
		Workspace: manager,
		Sandbox:   containers,
		RunOptions: sandbox.RunOptions{
			User:             cfg.Sandbox.User,
			CPUShares:        cfg.Sandbox.CPUShares,
			Memory:           cfg.Sandbox.Memory,
			TimeCommand:      cfg.Sandbox.TimeCommand,
			Entrypoint:       cfg.Sandbox.Entrypoint,
			Utils:            cfg.Paths.Utils,
			PrivilegedSource: cfg.Sandbox.PrivilegedSource,
			Env:              cfg.Sandbox.Env,
		},
		ImagePrefix: cfg.Sandbox.ImagePrefix,
		Messaging:   bus,
		Throttle: records.ThrottleConfig{
			Stats:           stats,
			BatchSize:       cfg.Throttle.BatchSize,
			HighWater:       cfg.Throttle.HighWater,
			MinBackoff:      cfg.Throttle.MinBackoff,
			MaxBackoff:      cfg.Throttle.MaxBackoff,
			StatsAttempts:   cfg.Throttle.StatsAttempts,
			StatsRetryDelay: cfg.Throttle.StatsRetryDelay,
			RateLimit:       cfg.Throttle.RateLimit,
		},
		HarnessArgv: cfg.Records.Harness,
		Coordinator: coordinatorClient,
		Tracker:     tracker,
		Logger:      logger,
	})
	if err != nil {
		return fail(err)
	}
	return built, nil
}

func newTracker(cfg *config.Config, logger *slog.Logger) (errortrack.Tracker, error) {
	if cfg.Airbrake.ProjectID == 0 {
		return errortrack.NewLogTracker(logger), nil
	}
	tracker, err := errortrack.NewAirbrakeTracker(errortrack.AirbrakeConfig{
		ProjectID:   cfg.Airbrake.ProjectID,
		ProjectKey:  cfg.Airbrake.ProjectKey,
		Host:        cfg.Airbrake.Host,
		Environment: string(cfg.Environment),
		Revision:    version.GitCommit,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring airbrake: %w", err)
	}
	return tracker, nil
}
