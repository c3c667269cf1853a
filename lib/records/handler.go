// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package records

import (
	"context"
	"encoding/json"
)

// Decision tells the Processor whether to keep reading.
type Decision int

const (
	// Continue reads the next line.
	Continue Decision = iota

	// StopRun stops reading all remaining input.
	StopRun
)

func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case StopRun:
		return "stop"
	default:
		return "unknown"
	}
}

// Record is one valid output record.
type Record struct {
	// DataType selects the identifying fields.
	DataType string

	// Data is the record object without its data_type member.
	Data map[string]json.RawMessage

	// Source is the output file the record was read from, and Line
	// its 1-based line number there.
	Source string
	Line   int
}

// Handler receives classified output lines.
type Handler interface {
	OnValidRecord(ctx context.Context, record Record) (Decision, error)

	// OnInvalidRecord receives JSON that is not an object with a
	// string data_type, and why it was rejected.
	OnInvalidRecord(ctx context.Context, raw []byte, reason string) (Decision, error)

	// OnInvalidInput receives a line that is not JSON.
	OnInvalidInput(ctx context.Context, line []byte, err error) (Decision, error)

	// OnRunEnded is called at most once per run, after every output
	// file has been read, either for the harness sentinel or for the
	// synthetic end. Its Decision is ignored since nothing remains to
	// read.
	OnRunEnded(ctx context.Context) (Decision, error)
}
