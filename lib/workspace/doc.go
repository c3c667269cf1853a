// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workspace prepares the host directories a run needs before
// its sandbox starts.
//
// [Manager.Prepare] creates the per-run directory tree, brings the
// bot's source checkout up to date, and applies the run-type specific
// adjustments to persistent data. Directories are world-writable
// because the sandboxed bot runs as an unprivileged user whose uid
// does not match the runner's.
//
// Source synchronisation is the one step in the pipeline that retries:
// git hosts fail transiently often enough that a single attempt would
// turn network blips into failed runs. Attempts are separated by a
// delay on the injected clock.
//
// [Manager.DetectLanguage] inspects the checkout to choose the sandbox
// image.
package workspace
