// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordinator reports finished runs to the Turbot coordinator.
//
// Every run execution ends with exactly one report: the bot's exit
// status with its resource metrics on success, or status -1 with a
// [Failure] payload when the run itself failed. [Client] makes the
// HTTP call; [Reporter] guarantees the at-most-once half of that
// contract for one execution.
package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bureau-foundation/turbot/lib/netutil"
)

// FailureStatus is the status code reported when the run failed
// rather than the bot.
const FailureStatus = -1

// Report is the completion of one run.
type Report struct {
	StatusCode int

	// Metrics is the bot's resource usage, or a Failure when
	// StatusCode is FailureStatus.
	Metrics any

	// RunEnded reports whether run.ended was published.
	RunEnded bool
}

type reportRequest struct {
	APIKey     string `json:"api_key"`
	StatusCode int    `json:"status_code"`
	Metrics    any    `json:"metrics"`
	RunEnded   bool   `json:"run_ended"`
}

// Config configures a Client.
type Config struct {
	// URL is the coordinator base, e.g. http://turbot.
	URL    string
	APIKey string

	// Timeout bounds each request when HTTPClient is nil.
	Timeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the coordinator API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient validates config and returns a Client. No request is
// made.
func NewClient(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("coordinator: URL is required")
	}
	if _, err := url.Parse(config.URL); err != nil {
		return nil, fmt.Errorf("coordinator: invalid URL %q: %w", config.URL, err)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(config.URL, "/"),
		apiKey:     config.APIKey,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// ReportRunEnded sends report for runUID with a single PUT.
func (c *Client) ReportRunEnded(ctx context.Context, runUID string, report Report) error {
	if runUID == "" {
		return errors.New("coordinator: run uid is required")
	}
	body, err := json.Marshal(reportRequest{
		APIKey:     c.apiKey,
		StatusCode: report.StatusCode,
		Metrics:    report.Metrics,
		RunEnded:   report.RunEnded,
	})
	if err != nil {
		return fmt.Errorf("coordinator: encoding report: %w", err)
	}

	path := "/api/runs/" + url.PathEscape(runUID)
	request, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("coordinator: creating request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	c.logger.Info("reporting run ended", "url", c.baseURL+path, "status_code", report.StatusCode, "run_ended", report.RunEnded)
	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("coordinator: PUT %s: %w", path, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return newAPIError(response)
	}
	// Drain so the connection can be reused.
	if _, err := netutil.ReadResponse(response.Body); err != nil {
		return fmt.Errorf("coordinator: reading response: %w", err)
	}
	return nil
}
