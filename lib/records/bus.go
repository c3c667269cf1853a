// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/turbot/lib/clock"
	"github.com/bureau-foundation/turbot/lib/manifest"
	"github.com/bureau-foundation/turbot/lib/run"
	"github.com/bureau-foundation/turbot/messaging"
)

// Message types on the record bus.
const (
	TypeRecord   = "bot.record"
	TypeRunEnded = "run.ended"
)

// Routing keys. Draft and non-draft records go to separate consumers.
const (
	RoutingDraft    = "bot.record.draft"
	RoutingNonDraft = "bot.record.non-draft"
)

// RoutingKey returns the routing key for records of id.
func RoutingKey(id run.ID) string {
	if id.IsDraft() {
		return RoutingDraft
	}
	return RoutingNonDraft
}

// RecordMessage is the bus payload for one record.
type RecordMessage struct {
	Type              string                     `json:"type"`
	BotName           string                     `json:"bot_name"`
	RunID             run.ID                     `json:"run_id"`
	SnapshotID        run.ID                     `json:"snapshot_id"`
	Data              map[string]json.RawMessage `json:"data"`
	DataType          string                     `json:"data_type"`
	IdentifyingFields []string                   `json:"identifying_fields"`
	ExportDate        string                     `json:"export_date"`
}

// RunEndedMessage marks a run's dataset as complete.
type RunEndedMessage struct {
	Type       string `json:"type"`
	BotName    string `json:"bot_name"`
	SnapshotID run.ID `json:"snapshot_id"`
}

// BusConfig configures a BusHandler.
type BusConfig struct {
	Client   messaging.Client
	Manifest *manifest.Manifest
	BotName  string
	RunID    run.ID

	// Throttle paces publishing. Nil publishes without backpressure.
	Throttle *Throttle

	Clock  clock.Clock
	Logger *slog.Logger
}

// BusHandler publishes records and the run end to the record bus.
type BusHandler struct {
	client     messaging.Client
	manifest   *manifest.Manifest
	botName    string
	runID      run.ID
	routingKey string
	throttle   *Throttle
	clock      clock.Clock
	logger     *slog.Logger
}

// NewBusHandler returns a BusHandler for config.
func NewBusHandler(config BusConfig) (*BusHandler, error) {
	if config.Client == nil {
		return nil, errors.New("records: messaging client is required")
	}
	if config.Manifest == nil {
		return nil, errors.New("records: manifest is required")
	}
	if config.BotName == "" {
		return nil, errors.New("records: bot name is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &BusHandler{
		client:     config.Client,
		manifest:   config.Manifest,
		botName:    config.BotName,
		runID:      config.RunID,
		routingKey: RoutingKey(config.RunID),
		throttle:   config.Throttle,
		clock:      config.Clock,
		logger:     config.Logger,
	}, nil
}

func (h *BusHandler) OnValidRecord(ctx context.Context, record Record) (Decision, error) {
	fields, err := h.manifest.FieldsFor(record.DataType)
	if err != nil {
		return StopRun, err
	}
	message := RecordMessage{
		Type:              TypeRecord,
		BotName:           h.botName,
		RunID:             h.runID,
		SnapshotID:        h.runID,
		Data:              record.Data,
		DataType:          record.DataType,
		IdentifyingFields: fields,
		ExportDate:        h.clock.Now().UTC().Format(time.RFC3339),
	}
	if h.throttle != nil {
		if err := h.throttle.Wait(ctx); err != nil {
			return StopRun, err
		}
	}
	if err := h.publish(ctx, message); err != nil {
		return StopRun, err
	}
	if h.throttle != nil {
		if err := h.throttle.Published(ctx); err != nil {
			return StopRun, err
		}
	}
	return Continue, nil
}

func (h *BusHandler) OnInvalidRecord(_ context.Context, raw []byte, reason string) (Decision, error) {
	h.logger.Warn("invalid record", "reason", reason, "record", truncate(raw))
	return Continue, nil
}

func (h *BusHandler) OnInvalidInput(_ context.Context, line []byte, err error) (Decision, error) {
	h.logger.Warn("invalid output line", "error", err, "line", truncate(line))
	return Continue, nil
}

// OnRunEnded publishes run.ended.
func (h *BusHandler) OnRunEnded(ctx context.Context) (Decision, error) {
	if err := h.publish(ctx, RunEndedMessage{
		Type:       TypeRunEnded,
		BotName:    h.botName,
		SnapshotID: h.runID,
	}); err != nil {
		return StopRun, err
	}
	h.logger.Info("published run end", "snapshot_id", h.runID.String())
	return Continue, nil
}

func (h *BusHandler) publish(ctx context.Context, message any) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if err := h.client.Publish(ctx, h.routingKey, body); err != nil {
		return fmt.Errorf("publishing to %s: %w", h.routingKey, err)
	}
	return nil
}

const maxLoggedLine = 512

func truncate(line []byte) string {
	if len(line) <= maxLoggedLine {
		return string(line)
	}
	return string(line[:maxLoggedLine]) + "..."
}
