// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for errors that surface
// before the structured logger exists, such as an unreadable config
// file or malformed run parameters.
package process
