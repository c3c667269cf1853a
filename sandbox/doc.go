// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox runs one untrusted bot inside a container.
//
// The central type is [Sandbox], which drives an [Engine] through a
// fixed lifecycle: create, start, attach until the output streams
// close, wait for the exit status, delete. [DockerEngine] implements
// Engine against the Docker Engine API; tests substitute their own.
//
// Isolation is declared up front in a [Spec]: the image, the
// unprivileged user, the bind mounts (every host path the bot can see
// is listed explicitly, read-only unless it must be written), fixed
// CPU shares and a memory ceiling, and the environment. [ForRun]
// derives the Spec for a run from its parameters and directory
// layout.
//
// Cleanup is unconditional once a container exists. Whether the run
// succeeds, fails to start, loses its attach stream, or panics, Run
// waits for the container to stop and deletes it on a context that
// ignores cancellation, so a SIGTERM to the runner never leaves a
// container behind holding the run's name. The container name is the
// mutual-exclusion token between concurrent attempts at the same run:
// a second create with the same name fails with [ErrNameConflict].
//
// A non-zero exit status from the bot is a result, not an error. Run
// returns it alongside a nil error.
package sandbox
