// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Turbot packages.
//
// [RequireReceive] bounds a channel receive with a wall-clock timeout
// so that a test driving a fake clock fails instead of hanging when
// the code under test never reaches the expected sleep. It is the only
// place in the test suite where real timeouts are used.
//
// [Logger] returns a logger that discards everything, for the many
// constructors that take one.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
