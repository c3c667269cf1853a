// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package records

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/bureau-foundation/turbot/lib/config"
	"github.com/bureau-foundation/turbot/lib/run"
)

// HarnessInput locates what the validating harness checks.
type HarnessInput struct {
	Repo     string
	Output   string
	Manifest string
	RunID    run.ID
}

// vars returns the substitutions available to a harness command.
func (in HarnessInput) vars() map[string]string {
	return map[string]string{
		"REPO":     in.Repo,
		"OUTPUT":   in.Output,
		"MANIFEST": in.Manifest,
		"RUN_ID":   in.RunID.String(),
	}
}

// Harness validates a run's output and writes the accepted records to
// the output directory. A returned error fails the run.
type Harness interface {
	Run(ctx context.Context, input HarnessInput) error
}

// CommandHarness runs an external harness program on the host.
//
// Each argument may reference ${REPO}, ${OUTPUT}, ${MANIFEST}, and
// ${RUN_ID}; the same names are set in the program's environment.
type CommandHarness struct {
	argv   []string
	output io.Writer
	logger *slog.Logger
}

// CommandHarnessConfig configures a CommandHarness.
type CommandHarnessConfig struct {
	Argv []string

	// Output receives the program's stdout and stderr. Nil discards
	// them; the tail of stderr is always kept for the error message.
	Output io.Writer

	Logger *slog.Logger
}

// NewCommandHarness returns a harness running config.Argv.
func NewCommandHarness(config CommandHarnessConfig) (*CommandHarness, error) {
	if len(config.Argv) == 0 || config.Argv[0] == "" {
		return nil, errors.New("records: harness command is required")
	}
	output := config.Output
	if output == nil {
		output = io.Discard
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandHarness{argv: config.Argv, output: output, logger: logger}, nil
}

func (h *CommandHarness) Run(ctx context.Context, input HarnessInput) error {
	vars := input.vars()
	args := make([]string, len(h.argv))
	for index, arg := range h.argv {
		args[index] = config.Expand(arg, vars)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = input.Output
	cmd.Env = os.Environ()
	for name, value := range vars {
		cmd.Env = append(cmd.Env, name+"="+value)
	}
	var stderr bytes.Buffer
	cmd.Stdout = h.output
	cmd.Stderr = io.MultiWriter(h.output, &stderr)

	h.logger.Debug("running harness", "argv", args)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w (stderr: %s)", args[0], err, tail(stderr.String()))
	}
	return nil
}

const maxStderrTail = 2 << 10

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderrTail {
		s = "..." + s[len(s)-maxStderrTail:]
	}
	return s
}
