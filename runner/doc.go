// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package runner executes one bot run end to end.
//
// [Runner.Run] is the single entry point. It prepares the workspace,
// runs the bot in a sandbox, streams the produced records to the bus,
// collects resource metrics, packages the output for download, and
// reports completion to the coordinator. The stages run strictly in
// sequence; the only concurrency is the demultiplexing of the
// container's output inside the sandbox engine.
//
// Every execution reports exactly once. A bot that exits non-zero has
// still run: its status is reported as data. Any error or panic in
// the pipeline is caught in one place, written to the run's stderr
// capture, sent to the error tracker with the run parameters, and
// reported with status -1 and a failure payload in place of metrics.
package runner
