// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bureau-foundation/turbot/lib/archive"
	"github.com/bureau-foundation/turbot/lib/clock"
	"github.com/bureau-foundation/turbot/lib/coordinator"
	"github.com/bureau-foundation/turbot/lib/errortrack"
	"github.com/bureau-foundation/turbot/lib/manifest"
	"github.com/bureau-foundation/turbot/lib/metrics"
	"github.com/bureau-foundation/turbot/lib/records"
	"github.com/bureau-foundation/turbot/lib/run"
	"github.com/bureau-foundation/turbot/lib/workspace"
	"github.com/bureau-foundation/turbot/messaging"
	"github.com/bureau-foundation/turbot/sandbox"
)

// Workspace prepares the host side of a run. *workspace.Manager
// implements it.
type Workspace interface {
	Layout(params run.Params) run.Layout
	Prepare(ctx context.Context, params run.Params) (run.Layout, error)
	DetectLanguage(repo string) (workspace.Language, error)
}

// Sandbox runs a container to completion. *sandbox.Sandbox implements
// it.
type Sandbox interface {
	Run(ctx context.Context, spec sandbox.Spec, output sandbox.Output) (int, error)
}

// Config holds the collaborators of a Runner.
type Config struct {
	Workspace Workspace
	Sandbox   Sandbox

	// RunOptions are the host-wide sandbox settings. Image is
	// ignored; it is derived from ImagePrefix and the bot's language.
	RunOptions  sandbox.RunOptions
	ImagePrefix string

	// Messaging publishes records. Nil selects the log handler.
	Messaging messaging.Client

	// Throttle configures backpressure for bus publishing.
	Throttle records.ThrottleConfig

	// HarnessArgv is the validating harness command. Empty consumes
	// the output files written inside the sandbox.
	HarnessArgv []string

	Coordinator coordinator.Sender
	Tracker     errortrack.Tracker

	Clock  clock.Clock
	Logger *slog.Logger
}

// Runner executes bot runs.
type Runner struct {
	workspace   Workspace
	sandbox     Sandbox
	runOptions  sandbox.RunOptions
	imagePrefix string
	messaging   messaging.Client
	throttle    records.ThrottleConfig
	harnessArgv []string
	coordinator coordinator.Sender
	tracker     errortrack.Tracker
	clock       clock.Clock
	logger      *slog.Logger
}

// New validates config and returns a Runner.
func New(config Config) (*Runner, error) {
	var errs []error
	if config.Workspace == nil {
		errs = append(errs, errors.New("workspace is required"))
	}
	if config.Sandbox == nil {
		errs = append(errs, errors.New("sandbox is required"))
	}
	if config.Coordinator == nil {
		errs = append(errs, errors.New("coordinator is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	runner := &Runner{
		workspace:   config.Workspace,
		sandbox:     config.Sandbox,
		runOptions:  config.RunOptions,
		imagePrefix: config.ImagePrefix,
		messaging:   config.Messaging,
		throttle:    config.Throttle,
		harnessArgv: config.HarnessArgv,
		coordinator: config.Coordinator,
		tracker:     config.Tracker,
		clock:       config.Clock,
		logger:      config.Logger,
	}
	if runner.clock == nil {
		runner.clock = clock.Real()
	}
	if runner.logger == nil {
		runner.logger = slog.Default()
	}
	if runner.tracker == nil {
		runner.tracker = errortrack.NewLogTracker(runner.logger)
	}
	return runner, nil
}

// execution is the state of one Run call.
type execution struct {
	id       string
	params   run.Params
	layout   run.Layout
	capture  *capture
	reporter *coordinator.Reporter
	logger   *slog.Logger

	// runEnded is whether run.ended has been published.
	runEnded bool
}

// Run executes the run described by params and reports its outcome.
// The returned error is the pipeline failure, if any, after it has
// been reported.
func (r *Runner) Run(ctx context.Context, params run.Params) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("runner: %w", err)
	}

	state := &execution{
		id:       uuid.NewString(),
		params:   params,
		layout:   r.workspace.Layout(params),
		reporter: coordinator.NewReporter(r.coordinator, params.RunUID),
	}
	state.logger = r.logger.With(
		"bot_name", params.BotName,
		"run_uid", params.RunUID,
		"run_id", params.RunID.String(),
		"execution_id", state.id,
	)
	state.logger.Info("run starting", "run_type", string(params.RunType))

	stack, err := guard(func() error {
		captured, err := openCapture(state.layout)
		if err != nil {
			return err
		}
		state.capture = captured
		return r.pipeline(ctx, state)
	})
	defer func() {
		if closeErr := state.capture.Close(); closeErr != nil {
			state.logger.Warn("closing capture files", "error", closeErr)
		}
	}()
	if err != nil {
		return r.fail(ctx, state, err, stack)
	}
	state.logger.Info("run finished")
	return nil
}

func (r *Runner) pipeline(ctx context.Context, state *execution) error {
	logger := state.logger
	params := state.params

	if r.messaging != nil && !r.messaging.IsConnected() {
		if err := r.messaging.Connect(ctx); err != nil {
			return fmt.Errorf("connecting to record bus: %w", err)
		}
	}

	layout, err := r.workspace.Prepare(ctx, params)
	if err != nil {
		return fmt.Errorf("preparing workspace: %w", err)
	}
	botManifest, err := manifest.Load(layout.Manifest())
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}
	language, err := r.workspace.DetectLanguage(layout.Repo)
	if err != nil {
		return err
	}

	options := r.runOptions
	options.Image = workspace.Image(r.imagePrefix, language)
	spec, err := sandbox.ForRun(params, layout, options)
	if err != nil {
		return fmt.Errorf("building sandbox spec: %w", err)
	}
	status, err := r.sandbox.Run(ctx, spec, sandbox.Output{Stdout: state.capture.stdout, Stderr: state.capture.stderr})
	if err != nil {
		return fmt.Errorf("running sandbox: %w", err)
	}
	logger.Info("bot exited", "status", status, "language", string(language))

	processor, err := r.processor(params, botManifest, state)
	if err != nil {
		return err
	}
	result, err := processor.Process(ctx, records.Input{
		Repo:     layout.Repo,
		Output:   layout.Output,
		Manifest: botManifest,
		RunID:    params.RunID,
	})
	state.runEnded = result.Ended
	if err != nil {
		return fmt.Errorf("processing output: %w", err)
	}

	usage, err := metrics.Parse(layout.OutputFile(run.TimeFile))
	if err != nil {
		return fmt.Errorf("reading metrics: %w", err)
	}
	count, err := metrics.CountRecords(layout.OutputFile(run.PrimaryFile))
	if err != nil {
		return fmt.Errorf("counting records: %w", err)
	}
	usage.NumRecords = &count

	if _, err := archive.Package(ctx, archive.Request{
		BotName:  params.BotName,
		RunUID:   params.RunUID,
		Layout:   layout,
		Manifest: botManifest,
		Logger:   logger,
	}); err != nil {
		return fmt.Errorf("packaging output: %w", err)
	}

	if err := state.reporter.Report(ctx, coordinator.Report{
		StatusCode: status,
		Metrics:    usage,
		RunEnded:   state.runEnded,
	}); err != nil {
		return fmt.Errorf("reporting run: %w", err)
	}
	return nil
}

// processor builds the output processor for one run.
func (r *Runner) processor(params run.Params, botManifest *manifest.Manifest, state *execution) (*records.Processor, error) {
	var handler records.Handler
	if r.messaging == nil {
		handler = records.NewLogHandler(state.logger)
	} else {
		throttleConfig := r.throttle
		throttleConfig.Clock = r.clock
		throttleConfig.Logger = state.logger
		if throttleConfig.Stats == nil {
			if stats, ok := r.messaging.(messaging.StatsSource); ok {
				throttleConfig.Stats = stats
			}
		}
		bus, err := records.NewBusHandler(records.BusConfig{
			Client:   r.messaging,
			Manifest: botManifest,
			BotName:  params.BotName,
			RunID:    params.RunID,
			Throttle: records.NewThrottle(throttleConfig),
			Clock:    r.clock,
			Logger:   state.logger,
		})
		if err != nil {
			return nil, err
		}
		handler = bus
	}

	var harness records.Harness
	if len(r.harnessArgv) > 0 {
		command, err := records.NewCommandHarness(records.CommandHarnessConfig{
			Argv:   r.harnessArgv,
			Output: state.capture.stderr,
			Logger: state.logger,
		})
		if err != nil {
			return nil, err
		}
		harness = command
	}

	return records.NewProcessor(records.ProcessorConfig{
		Harness: harness,
		Handler: handler,
		Logger:  state.logger,
	})
}

// fail handles a pipeline failure: log, capture, track, report. It
// returns the failure joined with any reporting error.
func (r *Runner) fail(ctx context.Context, state *execution, err error, stack []byte) error {
	detached := context.WithoutCancel(ctx)
	logger := state.logger
	logger.Error("run failed", "error", err)

	stderr := state.capture.Stderr()
	fmt.Fprintf(stderr, "turbot-runner: %v\n", err)
	if len(stack) > 0 {
		stderr.Write(stack)
	}

	trackerParams := paramsMap(state.params)
	trackerParams["execution_id"] = state.id
	if trackErr := r.tracker.Notify(detached, err, trackerParams); trackErr != nil {
		logger.Warn("error tracker notification failed", "error", trackErr)
	}

	reportErr := state.reporter.Report(detached, coordinator.Report{
		StatusCode: coordinator.FailureStatus,
		Metrics:    coordinator.NewFailure(err, stack),
		RunEnded:   state.runEnded,
	})
	switch {
	case errors.Is(reportErr, coordinator.ErrAlreadyReported):
		logger.Warn("run already reported, not reporting failure")
	case reportErr != nil:
		logger.Error("reporting failure", "error", reportErr)
		return errors.Join(err, fmt.Errorf("reporting failure: %w", reportErr))
	}
	return err
}

func paramsMap(params run.Params) map[string]any {
	return map[string]any{
		"bot_name":     params.BotName,
		"run_id":       params.RunID.String(),
		"run_uid":      params.RunUID,
		"run_type":     string(params.RunType),
		"user_api_key": params.UserAPIKey,
		"user_roles":   params.UserRoles,
	}
}
