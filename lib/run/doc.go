// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package run defines the parameters of a single bot run and the
// host directory layout derived from them.
//
// [Params] is what the dispatcher hands the runner. [ID] carries the
// run number, or the "draft" sentinel for runs whose output must not
// reach the published dataset; draft and non-draft runs are routed
// and stored separately. [NewLayout] maps a run onto the workspace
// tree under a base directory. Every component that touches the
// filesystem takes its paths from a Layout rather than building them
// itself.
package run
