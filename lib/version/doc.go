// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for turbot binaries.
//
// [GitCommit], [GitDirty], [BuildTime], and [Version] are set with
// -ldflags -X at build time and keep their placeholder values in
// development builds and tests:
//
//	go build -ldflags "-X github.com/bureau-foundation/turbot/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// [Info] is what --version prints. [Attrs] exposes the same data as
// structured log attributes so every run log opens with the binary
// that produced it.
package version
