// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package errortrack forwards run failures to an error tracker.
package errortrack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/airbrake/gobrake/v5"
)

// Tracker receives run failures along with the run's parameters.
type Tracker interface {
	Notify(ctx context.Context, err error, params map[string]any) error
	Close() error
}

// FilteredParams are never sent to the tracker.
var FilteredParams = []string{"user_api_key", "api_key"}

// AirbrakeConfig configures an AirbrakeTracker.
type AirbrakeConfig struct {
	ProjectID  int64
	ProjectKey string

	// Host overrides the Airbrake API host, for self-hosted
	// Errbit-compatible trackers.
	Host string

	Environment string
	Revision    string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// AirbrakeTracker sends notices to Airbrake.
type AirbrakeTracker struct {
	notifier *gobrake.Notifier
	logger   *slog.Logger
}

// NewAirbrakeTracker returns a tracker for config.
func NewAirbrakeTracker(config AirbrakeConfig) (*AirbrakeTracker, error) {
	if config.ProjectID == 0 || config.ProjectKey == "" {
		return nil, errors.New("errortrack: airbrake project id and key are required")
	}
	blocklist := make([]interface{}, len(FilteredParams))
	for index, key := range FilteredParams {
		blocklist[index] = key
	}
	notifier := gobrake.NewNotifierWithOptions(&gobrake.NotifierOptions{
		ProjectId:           config.ProjectID,
		ProjectKey:          config.ProjectKey,
		Host:                config.Host,
		Environment:         config.Environment,
		Revision:            config.Revision,
		KeysBlocklist:       blocklist,
		DisableCodeHunks:    true,
		DisableAPM:          true,
		DisableRemoteConfig: true,
		HTTPClient:          config.HTTPClient,
	})
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AirbrakeTracker{notifier: notifier, logger: logger}, nil
}

// Notify sends err synchronously.
func (t *AirbrakeTracker) Notify(_ context.Context, err error, params map[string]any) error {
	notice := t.notifier.Notice(err, nil, 1)
	if notice.Params == nil {
		notice.Params = make(map[string]interface{})
	}
	for key, value := range filter(params) {
		notice.Params[key] = value
	}
	id, sendErr := t.notifier.SendNotice(notice)
	if sendErr != nil {
		return fmt.Errorf("errortrack: sending notice: %w", sendErr)
	}
	t.logger.Info("error reported to airbrake", "notice_id", id)
	return nil
}

func (t *AirbrakeTracker) Close() error {
	return t.notifier.Close()
}

// LogTracker logs failures when no tracker is configured.
type LogTracker struct {
	logger *slog.Logger
}

// NewLogTracker returns a LogTracker. A nil logger uses slog.Default.
func NewLogTracker(logger *slog.Logger) *LogTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTracker{logger: logger}
}

func (t *LogTracker) Notify(_ context.Context, err error, params map[string]any) error {
	t.logger.Error("run failed", "error", err, "params", filter(params))
	return nil
}

func (t *LogTracker) Close() error { return nil }

func filter(params map[string]any) map[string]any {
	filtered := make(map[string]any, len(params))
	for key, value := range params {
		filtered[key] = value
	}
	for _, key := range FilteredParams {
		if _, ok := filtered[key]; ok {
			filtered[key] = "[Filtered]"
		}
	}
	return filtered
}
