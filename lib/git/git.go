// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package git wraps the git CLI for bot source checkouts. Commands
// against an existing checkout go through [Repository], which injects
// -C so the process working directory never matters. Git runs
// non-interactively: a credential prompt fails the command instead of
// hanging the run.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Repository is a git working tree at a fixed directory.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting dir.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes git against the repository and returns stdout. Stderr
// is included in the error on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	return run(ctx, r.dir, append([]string{"-C", r.dir}, args...))
}

// Pull fast-forwards the checkout from its upstream.
func (r *Repository) Pull(ctx context.Context) error {
	_, err := r.Run(ctx, "pull", "--ff-only")
	return err
}

// Head returns the commit the checkout is at.
func (r *Repository) Head(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// Clone clones url into dest and returns the new Repository. The
// clone runs from dest's parent, which must exist.
func Clone(ctx context.Context, url, dest string) (*Repository, error) {
	parent := filepath.Dir(dest)
	if _, err := run(ctx, parent, []string{"-C", parent, "clone", "--quiet", url, dest}); err != nil {
		return nil, err
	}
	return NewRepository(dest), nil
}

func run(ctx context.Context, dir string, args []string) (string, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", args...)
	command.Stdout = &stdout
	command.Stderr = &stderr
	command.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	if err := command.Run(); err != nil {
		// args[0:2] is the -C injection.
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args[2:], " "), dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
