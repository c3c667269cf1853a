// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/turbot/lib/run"
)

// capture holds the run's stdout and stderr capture files.
type capture struct {
	stdout *os.File
	stderr *os.File
}

// openCapture creates the output directory and truncates both capture
// files.
func openCapture(layout run.Layout) (*capture, error) {
	if err := os.MkdirAll(layout.Output, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	stdout, err := os.Create(filepath.Join(layout.Output, run.StdoutFile))
	if err != nil {
		return nil, fmt.Errorf("opening stdout capture: %w", err)
	}
	stderr, err := os.Create(filepath.Join(layout.Output, run.StderrFile))
	if err != nil {
		stdout.Close()
		return nil, fmt.Errorf("opening stderr capture: %w", err)
	}
	return &capture{stdout: stdout, stderr: stderr}, nil
}

// Stderr returns the stderr capture, or io.Discard when capture is
// nil.
func (c *capture) Stderr() io.Writer {
	if c == nil {
		return io.Discard
	}
	return c.stderr
}

func (c *capture) Close() error {
	if c == nil {
		return nil
	}
	return errors.Join(c.stdout.Close(), c.stderr.Close())
}
