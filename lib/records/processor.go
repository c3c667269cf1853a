// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package records

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/bureau-foundation/turbot/lib/manifest"
	"github.com/bureau-foundation/turbot/lib/run"
)

// Harness sentinel lines.
const (
	RunEndedLine = "RUN ENDED"
	NotFoundLine = "NOT FOUND"
)

// Input describes one run's output for processing.
type Input struct {
	// Repo is the bot checkout.
	Repo string

	// Output is the run's output directory.
	Output string

	Manifest *manifest.Manifest
	RunID    run.ID
}

// Result summarises processing.
type Result struct {
	Valid        int
	Invalid      int
	InvalidInput int

	// Stopped is true when a handler returned StopRun.
	Stopped bool

	// Ended is true when run.ended was signalled to the handler.
	Ended bool
}

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	// Harness is invoked before reading. Nil reads the output files
	// as the sandbox left them.
	Harness Harness

	Handler Handler
	Logger  *slog.Logger
}

// Processor reads a run's output files into a Handler.
type Processor struct {
	harness Harness
	handler Handler
	logger  *slog.Logger
}

// NewProcessor returns a Processor for config.
func NewProcessor(config ProcessorConfig) (*Processor, error) {
	if config.Handler == nil {
		return nil, errors.New("records: handler is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{harness: config.Harness, handler: config.Handler, logger: logger}, nil
}

// Process runs the harness and feeds every output file to the handler.
func (p *Processor) Process(ctx context.Context, input Input) (Result, error) {
	if input.Manifest == nil {
		return Result{}, errors.New("records: manifest is required")
	}

	if p.harness != nil {
		p.logger.Info("running validating harness")
		if err := p.harness.Run(ctx, HarnessInput{
			Repo:     input.Repo,
			Output:   input.Output,
			Manifest: filepath.Join(input.Repo, "manifest.json"),
			RunID:    input.RunID,
		}); err != nil {
			return Result{}, fmt.Errorf("records: harness: %w", err)
		}
	}

	state := &processState{processor: p}
	for _, name := range input.Manifest.OutputNames(run.PrimaryFile) {
		if state.result.Stopped {
			break
		}
		if err := state.readFile(ctx, filepath.Join(input.Output, name)); err != nil {
			return state.result, err
		}
	}

	switch {
	case state.endSeen:
		p.logger.Info("ending run for harness sentinel")
		if err := state.endRun(ctx); err != nil {
			return state.result, err
		}
	case input.Manifest.EndsRunAutomatically():
		p.logger.Info("ending run after output")
		if err := state.endRun(ctx); err != nil {
			return state.result, err
		}
	}

	p.logger.Info("processed output",
		"valid", state.result.Valid,
		"invalid", state.result.Invalid,
		"invalid_input", state.result.InvalidInput,
		"stopped", state.result.Stopped,
		"ended", state.result.Ended,
	)
	return state.result, nil
}

type processState struct {
	processor *Processor
	result    Result

	// endSeen records a RUN ENDED sentinel. The end is signalled only
	// after the last file so transformer output is never cut off.
	endSeen bool
}

func (s *processState) readFile(ctx context.Context, path string) error {
	file, err := run.OpenOutput(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.processor.logger.Debug("no output file", "path", path)
		return nil
	}
	if errors.Is(err, run.ErrNotRegular) {
		s.processor.logger.Warn("skipping output that is not a regular file", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("records: opening %s: %w", path, err)
	}
	defer file.Close()

	source := filepath.Base(path)
	reader := bufio.NewReader(file)
	for number := 1; ; number++ {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			decision, err := s.dispatch(ctx, source, number, bytes.TrimSpace(line))
			if err != nil {
				return err
			}
			if decision == StopRun {
				s.result.Stopped = true
				return nil
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("records: reading %s: %w", path, readErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (s *processState) dispatch(ctx context.Context, source string, number int, line []byte) (Decision, error) {
	handler := s.processor.handler

	switch string(line) {
	case "", NotFoundLine:
		return Continue, nil
	case RunEndedLine:
		if s.endSeen {
			s.processor.logger.Warn("ignoring repeated run end", "source", source, "line", number)
			return Continue, nil
		}
		s.endSeen = true
		return Continue, nil
	}

	var value json.RawMessage
	if syntaxErr := json.Unmarshal(line, &value); syntaxErr != nil {
		s.result.InvalidInput++
		decision, err := handler.OnInvalidInput(ctx, line, fmt.Errorf("%s:%d: %w", source, number, syntaxErr))
		if err != nil {
			return StopRun, fmt.Errorf("records: %s:%d: %w", source, number, err)
		}
		return decision, nil
	}

	record, reason := parseRecord(line)
	if reason != "" {
		s.result.Invalid++
		decision, err := handler.OnInvalidRecord(ctx, line, reason)
		if err != nil {
			return StopRun, fmt.Errorf("records: %s:%d: %w", source, number, err)
		}
		return decision, nil
	}

	s.result.Valid++
	record.Source = source
	record.Line = number
	decision, err := handler.OnValidRecord(ctx, record)
	if err != nil {
		return StopRun, fmt.Errorf("records: %s:%d: %w", source, number, err)
	}
	return decision, nil
}

// parseRecord splits a JSON line into a Record, or returns why it is
// not one.
func parseRecord(line []byte) (Record, string) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return Record{}, "record is not a JSON object"
	}
	raw, present := fields["data_type"]
	if !present {
		return Record{}, "record has no data_type"
	}
	var dataType string
	if err := json.Unmarshal(raw, &dataType); err != nil || dataType == "" {
		return Record{}, "data_type is not a non-empty string"
	}
	delete(fields, "data_type")
	return Record{DataType: dataType, Data: fields}, ""
}

func (s *processState) endRun(ctx context.Context) error {
	if _, err := s.processor.handler.OnRunEnded(ctx); err != nil {
		return fmt.Errorf("records: ending run: %w", err)
	}
	s.result.Ended = true
	return nil
}
