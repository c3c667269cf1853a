// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/turbot/lib/clock"
	"github.com/bureau-foundation/turbot/lib/coordinator"
	"github.com/bureau-foundation/turbot/lib/metrics"
	"github.com/bureau-foundation/turbot/lib/records"
	"github.com/bureau-foundation/turbot/lib/run"
	"github.com/bureau-foundation/turbot/lib/testutil"
	"github.com/bureau-foundation/turbot/lib/workspace"
	"github.com/bureau-foundation/turbot/messaging"
	"github.com/bureau-foundation/turbot/sandbox"
)

const testManifest = `{
	"data_type": "company",
	"identifying_fields": ["number"],
	"transformers": [
		{"file": "transformers/officers.rb", "data_type": "officer", "identifying_fields": ["name"]}
	]
}`

// checkoutSyncer creates a ruby bot checkout on clone.
type checkoutSyncer struct{}

func (checkoutSyncer) Clone(_ context.Context, _, dest string) error {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dest, "scraper.rb"), []byte("puts 1\n"), 0644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dest, "manifest.json"), []byte(testManifest), 0644)
}

func (checkoutSyncer) Pull(context.Context, string) error { return nil }

const timeReport = `	Command being timed: "ruby /utils/wrapper.rb"
	User time (seconds): 1.50
	System time (seconds): 0.25
	Elapsed (wall clock) time (h:mm:ss or m:ss): 0:07
	Maximum resident set size (kbytes): 8192
	Page size (bytes): 4096
`

// scriptedSandbox plays the part of the container: it writes to the
// streams and into the bound output directory.
type scriptedSandbox struct {
	mu     sync.Mutex
	specs  []sandbox.Spec
	status int
	err    error
	panic  any
	output []string
}

func (s *scriptedSandbox) Run(_ context.Context, spec sandbox.Spec, output sandbox.Output) (int, error) {
	s.mu.Lock()
	s.specs = append(s.specs, spec)
	s.mu.Unlock()

	if s.panic != nil {
		panic(s.panic)
	}
	fmt.Fprintln(output.Stdout, "scraping")
	fmt.Fprintln(output.Stderr, "warning: slow site")
	if s.err != nil {
		return -1, s.err
	}

	var outputDir string
	for _, bind := range spec.Binds {
		if bind.Destination == sandbox.OutputMount {
			outputDir = bind.Source
		}
	}
	if err := os.WriteFile(filepath.Join(outputDir, run.TimeFile), []byte(timeReport), 0644); err != nil {
		return -1, err
	}
	content := strings.Join(s.output, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(outputDir, run.PrimaryFile), []byte(content), 0644); err != nil {
		return -1, err
	}
	return s.status, nil
}

type recordingSender struct {
	mu      sync.Mutex
	uids    []string
	reports []coordinator.Report
	err     error
}

func (s *recordingSender) ReportRunEnded(_ context.Context, runUID string, report coordinator.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uids = append(s.uids, runUID)
	s.reports = append(s.reports, report)
	return s.err
}

type recordingTracker struct {
	mu     sync.Mutex
	errs   []error
	params []map[string]any
}

func (t *recordingTracker) Notify(_ context.Context, err error, params map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errs = append(t.errs, err)
	t.params = append(t.params, params)
	return nil
}

func (t *recordingTracker) Close() error { return nil }

type fixture struct {
	base      string
	runner    *Runner
	sandbox   *scriptedSandbox
	sender    *recordingSender
	tracker   *recordingTracker
	messaging *messaging.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testutil.Logger()
	base := t.TempDir()
	utils := filepath.Join(base, "utils")
	if err := os.MkdirAll(utils, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	manager, err := workspace.New(workspace.Config{
		Base:        base,
		URLTemplate: "git@example.org:bots/${BOT_NAME}.git",
		Syncer:      checkoutSyncer{},
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}

	h := &fixture{
		base: base,
		sandbox: &scriptedSandbox{output: []string{
			`{"data_type": "company", "number": "1"}`,
			`{"data_type": "company", "number": "2"}`,
		}},
		sender:    &recordingSender{},
		tracker:   &recordingTracker{},
		messaging: &messaging.Memory{},
	}
	h.runner, err = New(Config{
		Workspace: manager,
		Sandbox:   h.sandbox,
		RunOptions: sandbox.RunOptions{
			User:       "scraper",
			Utils:      utils,
			Entrypoint: "ruby /utils/wrapper.rb",
		},
		ImagePrefix: "opencorporates/morph-",
		Messaging:   h.messaging,
		Throttle:    records.ThrottleConfig{BatchSize: 1},
		Coordinator: h.sender,
		Tracker:     h.tracker,
		Clock:       clock.Fake(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func testParams() run.Params {
	return run.Params{
		BotName:    "weather",
		RunID:      run.Numbered(17),
		RunUID:     "uid-17",
		RunType:    run.Normal,
		UserAPIKey: "user-key",
	}
}

func (h *fixture) onlyReport(t *testing.T) coordinator.Report {
	t.Helper()
	h.sender.mu.Lock()
	defer h.sender.mu.Unlock()
	if len(h.sender.reports) != 1 {
		t.Fatalf("coordinator received %d reports, want exactly 1", len(h.sender.reports))
	}
	if h.sender.uids[0] != "uid-17" {
		t.Errorf("reported run uid %q, want uid-17", h.sender.uids[0])
	}
	return h.sender.reports[0]
}

func readCapture(t *testing.T, layout run.Layout, name string) string {
	t.Helper()
	data, err := os.ReadFile(layout.OutputFile(name))
	if err != nil {
		t.Fatalf("reading %s capture: %v", name, err)
	}
	return string(data)
}

func TestRunSuccess(t *testing.T) {
	t.Parallel()

	h := newFixture(t)
	params := testParams()
	if err := h.runner.Run(context.Background(), params); err != nil {
		t.Fatalf("Run: %v", err)
	}

	report := h.onlyReport(t)
	if report.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", report.StatusCode)
	}
	if !report.RunEnded {
		t.Error("RunEnded = false for a bot that ends automatically")
	}
	usage, ok := report.Metrics.(metrics.Metrics)
	if !ok {
		t.Fatalf("Metrics = %T, want metrics.Metrics", report.Metrics)
	}
	if usage.NumRecords == nil || *usage.NumRecords != 2 {
		t.Errorf("NumRecords = %v, want 2", usage.NumRecords)
	}
	if usage.MaxRSS == nil || *usage.MaxRSS != 2048 {
		t.Errorf("MaxRSS = %v, want 2048", usage.MaxRSS)
	}

	if h.messaging.Connects() != 1 {
		t.Errorf("messaging connected %d times, want 1", h.messaging.Connects())
	}
	var records, ends int
	for _, message := range h.messaging.Messages() {
		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message.Body, &envelope); err != nil {
			t.Fatalf("decoding message: %v", err)
		}
		switch envelope.Type {
		case "bot.record":
			records++
		case "run.ended":
			ends++
		}
	}
	if records != 2 || ends != 1 {
		t.Errorf("published %d records and %d ends, want 2 and 1", records, ends)
	}

	spec := h.sandbox.specs[0]
	if spec.Image != "opencorporates/morph-ruby" {
		t.Errorf("image = %q, want opencorporates/morph-ruby", spec.Image)
	}
	if spec.Name != "weather_uid-17" {
		t.Errorf("container name = %q, want weather_uid-17", spec.Name)
	}

	layout := run.NewLayout(h.base, params)
	if got := readCapture(t, layout, run.StdoutFile); got != "scraping\n" {
		t.Errorf("stdout capture = %q", got)
	}
	if got := readCapture(t, layout, run.StderrFile); got != "warning: slow site\n" {
		t.Errorf("stderr capture = %q", got)
	}
	link := filepath.Join(layout.Downloads, "weather-uid-17.zip")
	if _, err := os.Stat(link); err != nil {
		t.Errorf("download link: %v", err)
	}
	if len(h.tracker.errs) != 0 {
		t.Errorf("tracker notified of %v on success", h.tracker.errs)
	}
}

func TestRunNonZeroExitIsData(t *testing.T) {
	t.Parallel()

	h := newFixture(t)
	h.sandbox.status = 3
	if err := h.runner.Run(context.Background(), testParams()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report := h.onlyReport(t); report.StatusCode != 3 {
		t.Errorf("StatusCode = %d, want the bot's exit status 3", report.StatusCode)
	}
	if len(h.tracker.errs) != 0 {
		t.Error("tracker notified for a bot exit status")
	}
}

func TestRunSandboxFailureReportsOnce(t *testing.T) {
	t.Parallel()

	h := newFixture(t)
	h.sandbox.err = errors.New("engine connection refused")
	params := testParams()

	err := h.runner.Run(context.Background(), params)
	if !errors.Is(err, h.sandbox.err) {
		t.Fatalf("Run = %v, want the sandbox error", err)
	}

	report := h.onlyReport(t)
	if report.StatusCode != coordinator.FailureStatus {
		t.Errorf("StatusCode = %d, want %d", report.StatusCode, coordinator.FailureStatus)
	}
	if report.RunEnded {
		t.Error("RunEnded = true, but no output was processed")
	}
	failure, ok := report.Metrics.(coordinator.Failure)
	if !ok {
		t.Fatalf("Metrics = %T, want coordinator.Failure", report.Metrics)
	}
	if !strings.Contains(failure.Message, "engine connection refused") {
		t.Errorf("failure message = %q", failure.Message)
	}

	if len(h.tracker.errs) != 1 {
		t.Fatalf("tracker notified %d times, want 1", len(h.tracker.errs))
	}
	trackerParams := h.tracker.params[0]
	if trackerParams["bot_name"] != "weather" || trackerParams["run_uid"] != "uid-17" {
		t.Errorf("tracker params = %v", trackerParams)
	}
	if id, _ := trackerParams["execution_id"].(string); id == "" {
		t.Error("tracker params missing execution_id")
	}

	stderr := readCapture(t, run.NewLayout(h.base, params), run.StderrFile)
	if !strings.Contains(stderr, "warning: slow site") || !strings.Contains(stderr, "engine connection refused") {
		t.Errorf("stderr capture = %q, want bot output and the failure", stderr)
	}
	if len(h.messaging.Messages()) != 0 {
		t.Error("records published after a failed sandbox run")
	}
}

func TestRunPanicIsReported(t *testing.T) {
	t.Parallel()

	h := newFixture(t)
	h.sandbox.panic = "index out of range"

	err := h.runner.Run(context.Background(), testParams())
	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Run = %v, want *PanicError", err)
	}

	report := h.onlyReport(t)
	if report.StatusCode != coordinator.FailureStatus {
		t.Errorf("StatusCode = %d, want %d", report.StatusCode, coordinator.FailureStatus)
	}
	failure := report.Metrics.(coordinator.Failure)
	if failure.Class != "*runner.PanicError" {
		t.Errorf("Class = %q, want *runner.PanicError", failure.Class)
	}
	var sawStack bool
	for _, line := range failure.Backtrace {
		if strings.HasPrefix(line, "goroutine ") {
			sawStack = true
		}
	}
	if !sawStack {
		t.Errorf("backtrace %q has no goroutine stack", failure.Backtrace)
	}
}

func TestRunReportFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	h := newFixture(t)
	h.sender.err = &coordinator.APIError{StatusCode: 503}

	err := h.runner.Run(context.Background(), testParams())
	var apiErr *coordinator.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Run = %v, want the coordinator error", err)
	}
	if report := h.onlyReport(t); report.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want the success report", report.StatusCode)
	}
}

func TestRunReusesConnection(t *testing.T) {
	t.Parallel()

	h := newFixture(t)
	if err := h.messaging.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := h.runner.Run(context.Background(), testParams()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.messaging.Connects() != 1 {
		t.Errorf("messaging connected %d times, want 1", h.messaging.Connects())
	}
}

func TestRunRejectsInvalidParams(t *testing.T) {
	t.Parallel()

	h := newFixture(t)
	params := testParams()
	params.BotName = "../escape"
	if err := h.runner.Run(context.Background(), params); err == nil {
		t.Fatal("Run with path traversal in bot name succeeded")
	}
	if len(h.sender.reports) != 0 {
		t.Error("reported a run that never started")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	if err == nil {
		t.Fatal("New with empty config succeeded")
	}
	for _, want := range []string{"workspace", "sandbox", "coordinator"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
