// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package run

import (
	"path/filepath"
)

// Output file names inside Layout.Output.
const (
	StdoutFile  = "stdout"
	StderrFile  = "stderr"
	TimeFile    = "time.out"
	PrimaryFile = "scraper.out"
)

// Layout holds the host paths of one run. Every directory is sharded
// by the first character of the bot name.
type Layout struct {
	// Repo is the bot's source checkout, shared across runs.
	Repo string

	// Data persists between runs of the same bot.
	Data string

	// Tmp is scratch space for this run only.
	Tmp string

	// Output receives captured streams and produced records.
	Output string

	// Downloads is the per-user directory exposing the archive.
	Downloads string
}

// NewLayout returns the layout of the run described by params under
// base. It performs no I/O.
func NewLayout(base string, params Params) Layout {
	bot := params.BotName
	shard := bot[:1]

	visibility := "non-draft"
	if params.RunID.IsDraft() {
		visibility = "draft"
	}

	return Layout{
		Repo:      filepath.Join(base, "repo", shard, bot),
		Data:      filepath.Join(base, "data", shard, bot),
		Tmp:       filepath.Join(base, "tmp", shard, bot, params.RunUID),
		Output:    filepath.Join(base, "output", visibility, shard, bot, params.RunUID),
		Downloads: filepath.Join(base, "downloads", shard, bot, params.RunUID, params.UserAPIKey),
	}
}

// OutputFile returns the path of name inside the output directory.
func (l Layout) OutputFile(name string) string {
	return filepath.Join(l.Output, name)
}

// Manifest returns the path of the bot's manifest.json.
func (l Layout) Manifest() string {
	return filepath.Join(l.Repo, "manifest.json")
}
