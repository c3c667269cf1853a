// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/bureau-foundation/turbot/lib/run"
)

// Mode is the access a bind grants.
type Mode string

const (
	ReadOnly  Mode = "ro"
	ReadWrite Mode = "rw"
)

// In-container mount points.
const (
	RepoMount             = "/repo"
	DataMount             = "/data"
	TmpMount              = "/tmp"
	UtilsMount            = "/utils"
	OutputMount           = "/output"
	PrivilegedSourceMount = "/src"
)

// Bind exposes a host path inside the container.
type Bind struct {
	Source      string
	Destination string
	Mode        Mode
}

// String renders the bind in engine form, source:destination:mode.
func (b Bind) String() string {
	return b.Source + ":" + b.Destination + ":" + string(b.Mode)
}

// Validate checks that the bind is well formed and its source exists.
// Engines create missing bind sources as root, which would leave the
// run writing into a directory it does not own.
func (b Bind) Validate() error {
	if !filepath.IsAbs(b.Source) || !filepath.IsAbs(b.Destination) {
		return fmt.Errorf("bind %s: paths must be absolute", b)
	}
	if b.Mode != ReadOnly && b.Mode != ReadWrite {
		return fmt.Errorf("bind %s: mode must be ro or rw", b)
	}
	if _, err := os.Stat(b.Source); err != nil {
		return fmt.Errorf("bind %s: %w", b, err)
	}
	return nil
}

// RunOptions holds the host-wide settings ForRun combines with a run.
type RunOptions struct {
	Image       string
	User        string
	CPUShares   int64
	Memory      int64
	TimeCommand string
	Entrypoint  string

	// Utils is the host directory of in-sandbox helpers.
	Utils string

	// PrivilegedSource is bound at /src for admin users when set.
	PrivilegedSource string

	// Env is appended to the run environment in key order.
	Env map[string]string
}

// ContainerName returns the container name of a run.
func ContainerName(params run.Params) string {
	return params.BotName + "_" + params.RunUID
}

// ForRun builds the container spec of a run. Host paths are made
// absolute since engines reject relative bind sources.
func ForRun(params run.Params, layout run.Layout, options RunOptions) (Spec, error) {
	binds := []Bind{
		{layout.Repo, RepoMount, ReadOnly},
		{layout.Data, DataMount, ReadWrite},
		{layout.Tmp, TmpMount, ReadWrite},
		{options.Utils, UtilsMount, ReadOnly},
		{layout.Output, OutputMount, ReadWrite},
	}
	if options.PrivilegedSource != "" && params.IsAdmin() {
		binds = append(binds, Bind{options.PrivilegedSource, PrivilegedSourceMount, ReadWrite})
	}
	for index := range binds {
		absolute, err := filepath.Abs(binds[index].Source)
		if err != nil {
			return Spec{}, fmt.Errorf("resolving bind source %s: %w", binds[index].Source, err)
		}
		binds[index].Source = absolute
	}

	env := []string{
		"RUN_TYPE=" + string(params.RunType),
		"RUN_ID=" + params.RunID.String(),
		"BOT_NAME=" + params.BotName,
	}
	for _, key := range slices.Sorted(maps.Keys(options.Env)) {
		env = append(env, key+"="+options.Env[key])
	}

	timeCommand := options.TimeCommand
	if timeCommand == "" {
		timeCommand = "/usr/bin/time"
	}
	profiled := fmt.Sprintf("%s -v -o %s/%s %s", timeCommand, OutputMount, run.TimeFile, options.Entrypoint)

	return Spec{
		Name:      ContainerName(params),
		Image:     options.Image,
		User:      options.User,
		Command:   []string{"/bin/bash", "-l", "-c", profiled},
		Env:       env,
		Binds:     binds,
		CPUShares: options.CPUShares,
		Memory:    options.Memory,
	}, nil
}
