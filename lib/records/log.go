// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package records

import (
	"context"
	"log/slog"
)

// LogHandler logs what a BusHandler would publish.
type LogHandler struct {
	logger *slog.Logger
}

// NewLogHandler returns a LogHandler. A nil logger uses slog.Default.
func NewLogHandler(logger *slog.Logger) *LogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHandler{logger: logger}
}

func (h *LogHandler) OnValidRecord(_ context.Context, record Record) (Decision, error) {
	h.logger.Debug("record", "data_type", record.DataType, "source", record.Source, "line", record.Line)
	return Continue, nil
}

func (h *LogHandler) OnInvalidRecord(_ context.Context, raw []byte, reason string) (Decision, error) {
	h.logger.Warn("invalid record", "reason", reason, "record", truncate(raw))
	return Continue, nil
}

func (h *LogHandler) OnInvalidInput(_ context.Context, line []byte, err error) (Decision, error) {
	h.logger.Warn("invalid output line", "error", err, "line", truncate(line))
	return Continue, nil
}

func (h *LogHandler) OnRunEnded(context.Context) (Decision, error) {
	h.logger.Info("run ended")
	return Continue, nil
}
