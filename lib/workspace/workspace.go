// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/turbot/lib/clock"
	"github.com/bureau-foundation/turbot/lib/config"
	"github.com/bureau-foundation/turbot/lib/git"
	"github.com/bureau-foundation/turbot/lib/run"
)

var (
	// ErrSyncFailed is returned when every clone or pull attempt failed.
	ErrSyncFailed = errors.New("source synchronisation failed")

	// ErrInsufficientSpace is returned when the workspace filesystem
	// is below the configured free-space floor.
	ErrInsufficientSpace = errors.New("insufficient free space")
)

// DataMount is where the bot's data directory appears in the sandbox.
const DataMount = "/data"

// dataLink is the checkout-relative symlink pointing at DataMount,
// kept for bots whose incremental-storage helpers still use it.
const dataLink = "_data"

const varsFile = "_vars.yml"

// Syncer brings a source checkout up to date.
type Syncer interface {
	Clone(ctx context.Context, url, dest string) error
	Pull(ctx context.Context, dir string) error
}

// GitSyncer is the Syncer backed by the git CLI.
type GitSyncer struct{}

func (GitSyncer) Clone(ctx context.Context, url, dest string) error {
	_, err := git.Clone(ctx, url, dest)
	return err
}

func (GitSyncer) Pull(ctx context.Context, dir string) error {
	return git.NewRepository(dir).Pull(ctx)
}

// Config configures a Manager.
type Config struct {
	// Base is the root of the workspace tree.
	Base string

	// URLTemplate is the clone URL with ${BOT_NAME} for the bot.
	URLTemplate string

	// Attempts defaults to 3.
	Attempts int

	// RetryDelay defaults to 5s.
	RetryDelay time.Duration

	// MinFreeBytes enables the free-space preflight when non-zero.
	MinFreeBytes uint64

	// Syncer defaults to GitSyncer.
	Syncer Syncer

	// FreeSpace reports available bytes on the filesystem holding a
	// path. Defaults to a statfs query.
	FreeSpace func(path string) (uint64, error)

	Clock  clock.Clock
	Logger *slog.Logger
}

// Manager prepares run workspaces.
type Manager struct {
	base         string
	urlTemplate  string
	attempts     int
	retryDelay   time.Duration
	minFreeBytes uint64
	syncer       Syncer
	freeSpace    func(string) (uint64, error)
	clock        clock.Clock
	logger       *slog.Logger
}

// New returns a Manager for cfg.
func New(cfg Config) (*Manager, error) {
	if cfg.Base == "" {
		return nil, errors.New("workspace base directory is required")
	}
	if cfg.URLTemplate == "" {
		return nil, errors.New("workspace URL template is required")
	}

	manager := &Manager{
		base:         cfg.Base,
		urlTemplate:  cfg.URLTemplate,
		attempts:     cfg.Attempts,
		retryDelay:   cfg.RetryDelay,
		minFreeBytes: cfg.MinFreeBytes,
		syncer:       cfg.Syncer,
		freeSpace:    cfg.FreeSpace,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
	if manager.attempts <= 0 {
		manager.attempts = 3
	}
	if manager.retryDelay <= 0 {
		manager.retryDelay = 5 * time.Second
	}
	if manager.syncer == nil {
		manager.syncer = GitSyncer{}
	}
	if manager.freeSpace == nil {
		manager.freeSpace = statfsFree
	}
	if manager.clock == nil {
		manager.clock = clock.Real()
	}
	if manager.logger == nil {
		manager.logger = slog.Default()
	}
	return manager, nil
}

// Layout returns the directory layout of the run without touching the
// filesystem.
func (m *Manager) Layout(params run.Params) run.Layout {
	return run.NewLayout(m.base, params)
}

// CloneURL returns the source URL for bot.
func (m *Manager) CloneURL(bot string) string {
	return config.Expand(m.urlTemplate, map[string]string{"BOT_NAME": bot})
}

// Prepare creates the run's directories, synchronises the checkout,
// and applies run-type adjustments. It returns the layout it prepared.
func (m *Manager) Prepare(ctx context.Context, params run.Params) (run.Layout, error) {
	layout := m.Layout(params)
	logger := m.logger.With("bot_name", params.BotName, "run_uid", params.RunUID)

	if err := m.checkFreeSpace(); err != nil {
		return layout, err
	}

	for _, directory := range []string{
		filepath.Dir(layout.Repo),
		layout.Data,
		layout.Tmp,
		layout.Output,
		layout.Downloads,
	} {
		logger.Debug("setting up directory", "path", directory)
		if err := makeSharedDirectory(directory); err != nil {
			return layout, err
		}
	}

	if err := m.synchronise(ctx, logger, params.BotName, layout.Repo); err != nil {
		return layout, err
	}

	if params.RunType == run.FirstOfScrape {
		path := filepath.Join(layout.Data, varsFile)
		logger.Info("clearing saved variables", "path", path)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return layout, fmt.Errorf("clearing saved variables: %w", err)
		}
	}

	if err := linkData(logger, layout.Repo); err != nil {
		return layout, err
	}
	return layout, nil
}

func (m *Manager) checkFreeSpace() error {
	if m.minFreeBytes == 0 {
		return nil
	}
	if err := os.MkdirAll(m.base, 0755); err != nil {
		return fmt.Errorf("creating workspace base: %w", err)
	}
	free, err := m.freeSpace(m.base)
	if err != nil {
		return fmt.Errorf("checking free space on %s: %w", m.base, err)
	}
	if free < m.minFreeBytes {
		return fmt.Errorf("%w on %s: %d bytes available, %d required",
			ErrInsufficientSpace, m.base, free, m.minFreeBytes)
	}
	return nil
}

func (m *Manager) synchronise(ctx context.Context, logger *slog.Logger, bot, repo string) error {
	_, statErr := os.Stat(repo)
	exists := statErr == nil

	var err error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		if exists {
			logger.Info("pulling source", "path", repo, "attempt", attempt)
			err = m.syncer.Pull(ctx, repo)
		} else {
			url := m.CloneURL(bot)
			logger.Info("cloning source", "url", url, "path", repo, "attempt", attempt)
			err = m.syncer.Clone(ctx, url, repo)
		}
		if err == nil {
			return nil
		}

		logger.Warn("source synchronisation failed", "attempt", attempt, "error", err)
		if attempt < m.attempts {
			if sleepErr := m.clock.Sleep(ctx, m.retryDelay); sleepErr != nil {
				return fmt.Errorf("%w: interrupted: %w", ErrSyncFailed, sleepErr)
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrSyncFailed, m.attempts, err)
}

// makeSharedDirectory creates path and makes it world-writable. The
// chmod is explicit because MkdirAll is subject to the umask.
func makeSharedDirectory(path string) error {
	if err := os.MkdirAll(path, 0777); err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := os.Chmod(path, 0777); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	return nil
}

func linkData(logger *slog.Logger, repo string) error {
	link := filepath.Join(repo, dataLink)

	info, err := os.Lstat(link)
	switch {
	case err == nil && info.Mode()&fs.ModeSymlink != 0:
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("replacing %s: %w", link, err)
		}
	case err == nil:
		logger.Warn("leaving non-symlink in place of data link", "path", link)
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("inspecting %s: %w", link, err)
	}

	if err := os.Symlink(DataMount, link); err != nil {
		return fmt.Errorf("linking %s: %w", link, err)
	}
	return nil
}
