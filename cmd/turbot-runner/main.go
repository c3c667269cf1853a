// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/turbot/lib/config"
	"github.com/bureau-foundation/turbot/lib/process"
	"github.com/bureau-foundation/turbot/lib/version"
)

// DebugEnvVar enables debug logging when set to any non-empty value.
const DebugEnvVar = "TURBOT_DEBUG"

func main() {
	process.Fatal(execute(os.Args[1:]))
}

func execute(args []string) error {
	var (
		configPath  string
		paramsPath  string
		debug       bool
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("turbot-runner", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&paramsPath, "params", "", `run parameters: a JSON file, a .cbor file, or "-" for JSON on stdin`)
	flagSet.BoolVar(&debug, "debug", false, "enable debug logging (also $"+DebugEnvVar+")")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("turbot-runner %s\n", version.Full())
		return nil
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument: %s", extra[0])
	}
	if paramsPath == "" {
		return errors.New("--params is required")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(os.Stderr, debug || os.Getenv(DebugEnvVar) != "")
	logger.Info("turbot-runner starting", version.Attrs(), "environment", string(cfg.Environment))

	params, err := readParams(paramsPath, os.Stdin)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := build(cfg, params, logger)
	if err != nil {
		return err
	}
	defer components.Close(logger)

	return components.runner.Run(ctx, params)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}
