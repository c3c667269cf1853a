// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyReported is returned by a Reporter that has already sent
// its report.
var ErrAlreadyReported = errors.New("coordinator: run already reported")

// Sender delivers one report. *Client implements it.
type Sender interface {
	ReportRunEnded(ctx context.Context, runUID string, report Report) error
}

// Reporter sends the report of a single run execution at most once.
// A failed send still counts: the coordinator may have processed it.
type Reporter struct {
	sender Sender
	runUID string

	mu   sync.Mutex
	sent bool
}

// NewReporter returns a Reporter for runUID.
func NewReporter(sender Sender, runUID string) *Reporter {
	return &Reporter{sender: sender, runUID: runUID}
}

// Report sends report, or returns ErrAlreadyReported without contacting
// the coordinator.
func (r *Reporter) Report(ctx context.Context, report Report) error {
	r.mu.Lock()
	if r.sent {
		r.mu.Unlock()
		return ErrAlreadyReported
	}
	r.sent = true
	r.mu.Unlock()
	return r.sender.ReportRunEnded(ctx, r.runUID, report)
}

// Reported reports whether Report has been called.
func (r *Reporter) Reported() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}
