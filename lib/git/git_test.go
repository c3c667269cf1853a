// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

// gitCommand runs git with a fixed identity and fails the test on error.
func gitCommand(t *testing.T, args ...string) string {
	t.Helper()
	command := exec.Command("git", args...)
	command.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test",
		"GIT_AUTHOR_EMAIL=test@test.local",
		"GIT_COMMITTER_NAME=Test",
		"GIT_COMMITTER_EMAIL=test@test.local",
	)
	output, err := command.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, output)
	}
	return string(output)
}

// initUpstream creates a bare repository with one commit on main and
// returns its path together with a working clone used to push more
// commits.
func initUpstream(t *testing.T) (bare, work string) {
	t.Helper()

	directory := t.TempDir()
	bare = filepath.Join(directory, "upstream.git")
	work = filepath.Join(directory, "work")

	gitCommand(t, "init", "--quiet", "--bare", "--initial-branch=main", bare)
	gitCommand(t, "clone", "--quiet", bare, work)
	commitFile(t, work, "scraper.rb", "puts 1\n")
	gitCommand(t, "-C", work, "push", "--quiet", "origin", "HEAD:main")
	return bare, work
}

func commitFile(t *testing.T, work, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(work, name), []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	gitCommand(t, "-C", work, "add", name)
	gitCommand(t, "-C", work, "commit", "--quiet", "-m", "update "+name)
}

func TestCloneAndPull(t *testing.T) {
	t.Parallel()
	requireGit(t)

	bare, work := initUpstream(t)
	dest := filepath.Join(t.TempDir(), "weather")

	repository, err := Clone(context.Background(), bare, dest)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if repository.Dir() != dest {
		t.Errorf("Dir() = %q, want %q", repository.Dir(), dest)
	}
	if _, err := os.Stat(filepath.Join(dest, "scraper.rb")); err != nil {
		t.Fatalf("cloned tree missing scraper.rb: %v", err)
	}

	commitFile(t, work, "scraper.py", "print(1)\n")
	gitCommand(t, "-C", work, "push", "--quiet", "origin", "HEAD:main")

	if err := repository.Pull(context.Background()); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "scraper.py")); err != nil {
		t.Errorf("pulled tree missing scraper.py: %v", err)
	}

	head, err := repository.Head(context.Background())
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	want := strings.TrimSpace(gitCommand(t, "-C", work, "rev-parse", "HEAD"))
	if head != want {
		t.Errorf("Head() = %q, want %q", head, want)
	}
}

func TestCloneErrorIncludesStderr(t *testing.T) {
	t.Parallel()
	requireGit(t)

	dest := filepath.Join(t.TempDir(), "weather")
	_, err := Clone(context.Background(), filepath.Join(t.TempDir(), "missing.git"), dest)
	if err == nil {
		t.Fatal("Clone of a missing upstream succeeded")
	}
	if !strings.Contains(err.Error(), "git clone") {
		t.Errorf("error %q does not name the command", err)
	}
	if !strings.Contains(err.Error(), "stderr:") {
		t.Errorf("error %q does not include stderr", err)
	}
}

func TestRunOutsideRepository(t *testing.T) {
	t.Parallel()
	requireGit(t)

	repository := NewRepository(t.TempDir())
	if _, err := repository.Run(context.Background(), "status"); err == nil {
		t.Fatal("git status outside a repository succeeded")
	}
}
