// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics turns the GNU time -v report written inside the
// sandbox into the resource metrics reported for a run.
//
// The report is a list of "Label: value" lines. Labels are matched by
// substring so leading indentation and minor wording differences
// between time versions do not matter. Values that do not parse are
// skipped rather than failing the run.
//
// GNU time 1.7 reports the maximum resident set size in pages
// multiplied by four instead of kilobytes. Parse corrects it with the
// page size from the same report, and a report that carries values
// but no page size is rejected with [ErrPageSizeUnknown].
package metrics

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"github.com/bureau-foundation/turbot/lib/run"
)

// ErrPageSizeUnknown is returned for a report without a usable page size.
var ErrPageSizeUnknown = errors.New("page size not known")

// Metrics are the resource usage figures for one run. A nil field was
// absent from the report.
type Metrics struct {
	MaxRSS     *int64   `json:"maxrss,omitempty"`
	MinFlt     *int64   `json:"minflt,omitempty"`
	MajFlt     *int64   `json:"majflt,omitempty"`
	UTime      *float64 `json:"utime,omitempty"`
	STime      *float64 `json:"stime,omitempty"`
	WallTime   *float64 `json:"wall_time,omitempty"`
	InBlock    *int64   `json:"inblock,omitempty"`
	OuBlock    *int64   `json:"oublock,omitempty"`
	NVCSW      *int64   `json:"nvcsw,omitempty"`
	NIVCSW     *int64   `json:"nivcsw,omitempty"`
	NumRecords *int64   `json:"num_records,omitempty"`

	pageSize *int64
}

type field struct {
	label   string
	integer func(*Metrics) **int64
	float   func(*Metrics) **float64
	parse   func(string) (float64, bool)
}

// fields is checked in order and the first matching label wins.
var fields = []field{
	{label: "Maximum resident set size (kbytes)", integer: func(m *Metrics) **int64 { return &m.MaxRSS }},
	{label: "Minor (reclaiming a frame) page faults", integer: func(m *Metrics) **int64 { return &m.MinFlt }},
	{label: "Major (requiring I/O) page faults", integer: func(m *Metrics) **int64 { return &m.MajFlt }},
	{label: "User time (seconds)", float: func(m *Metrics) **float64 { return &m.UTime }},
	{label: "System time (seconds)", float: func(m *Metrics) **float64 { return &m.STime }},
	{label: "Elapsed (wall clock) time (h:mm:ss or m:ss)", float: func(m *Metrics) **float64 { return &m.WallTime }, parse: ParseElapsed},
	{label: "File system inputs", integer: func(m *Metrics) **int64 { return &m.InBlock }},
	{label: "File system outputs", integer: func(m *Metrics) **int64 { return &m.OuBlock }},
	{label: "Voluntary context switches", integer: func(m *Metrics) **int64 { return &m.NVCSW }},
	{label: "Involuntary context switches", integer: func(m *Metrics) **int64 { return &m.NIVCSW }},
	{label: "Page size (bytes)", integer: func(m *Metrics) **int64 { return &m.pageSize }},
}

// Parse reads the report at path. A missing report yields empty
// metrics: the bot may have been killed before time wrote it. A
// report that is not a regular file is treated as missing.
func Parse(path string) (Metrics, error) {
	file, err := run.OpenOutput(path)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, run.ErrNotRegular) {
		return Metrics{}, nil
	}
	if err != nil {
		return Metrics{}, fmt.Errorf("opening time report: %w", err)
	}
	defer file.Close()
	return ParseReader(file)
}

// ParseReader parses a report read from r.
func ParseReader(r io.Reader) (Metrics, error) {
	var metrics Metrics
	present := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		label, value, found := strings.Cut(scanner.Text(), ": ")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		for _, candidate := range fields {
			if !strings.Contains(label, candidate.label) {
				continue
			}
			if candidate.apply(&metrics, value) {
				present = true
			}
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return Metrics{}, fmt.Errorf("reading time report: %w", err)
	}

	if !present {
		return Metrics{}, nil
	}
	if metrics.pageSize == nil || *metrics.pageSize == 0 {
		return Metrics{}, ErrPageSizeUnknown
	}
	if metrics.MaxRSS != nil {
		corrected := *metrics.MaxRSS * 1024 / *metrics.pageSize
		metrics.MaxRSS = &corrected
	}
	return metrics, nil
}

func (f field) apply(metrics *Metrics, value string) bool {
	if f.integer != nil {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return false
		}
		*f.integer(metrics) = &parsed
		return true
	}

	parse := f.parse
	if parse == nil {
		parse = parseFloat
	}
	parsed, ok := parse(value)
	if !ok {
		return false
	}
	*f.float(metrics) = &parsed
	return true
}

func parseFloat(value string) (float64, bool) {
	parsed, err := strconv.ParseFloat(value, 64)
	return parsed, err == nil
}

// ParseElapsed converts "m:ss" or "h:mm:ss" (seconds may be
// fractional) to seconds.
func ParseElapsed(value string) (float64, bool) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, false
	}
	total := 0.0
	for _, part := range parts {
		parsed, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, false
		}
		total = total*60 + parsed
	}
	return total, true
}

// CountRecords returns the number of lines in the primary output at
// path. A missing file, or one that is not a regular file, has no
// records.
func CountRecords(path string) (int64, error) {
	file, err := run.OpenOutput(path)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, run.ErrNotRegular) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	var count int64
	var last byte = '\n'
	buffer := make([]byte, 64*1024)
	for {
		n, err := file.Read(buffer)
		if n > 0 {
			count += int64(bytes.Count(buffer[:n], []byte{'\n'}))
			last = buffer[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	// An unterminated final line is still a record.
	if last != '\n' {
		count++
	}
	return count, nil
}
