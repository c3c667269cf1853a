// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable Load reads.
const EnvVar = "TURBOT_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Record handler names accepted by records.handler.
const (
	HandlerBus = "bus"
	HandlerLog = "log"
)

// Config is the complete runner configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Paths       PathsConfig       `yaml:"paths"`
	Git         GitConfig         `yaml:"git"`
	Workspace   WorkspaceConfig   `yaml:"workspace"`
	Sandbox     SandboxConfig     `yaml:"sandbox"`
	Records     RecordsConfig     `yaml:"records"`
	Throttle    ThrottleConfig    `yaml:"throttle"`
	Messaging   MessagingConfig   `yaml:"messaging"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Airbrake    AirbrakeConfig    `yaml:"airbrake"`

	// Per-environment overrides, applied over the base values when
	// Environment selects them.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains the sections that can be overridden per
// environment. Only non-zero fields replace base values, so a boolean
// can be switched on but not off.
type ConfigOverrides struct {
	Paths       *PathsConfig       `yaml:"paths,omitempty"`
	Git         *GitConfig         `yaml:"git,omitempty"`
	Workspace   *WorkspaceConfig   `yaml:"workspace,omitempty"`
	Sandbox     *SandboxConfig     `yaml:"sandbox,omitempty"`
	Records     *RecordsConfig     `yaml:"records,omitempty"`
	Throttle    *ThrottleConfig    `yaml:"throttle,omitempty"`
	Messaging   *MessagingConfig   `yaml:"messaging,omitempty"`
	Coordinator *CoordinatorConfig `yaml:"coordinator,omitempty"`
	Airbrake    *AirbrakeConfig    `yaml:"airbrake,omitempty"`
}

// PathsConfig configures host directory locations.
type PathsConfig struct {
	// Base holds the repo, data, tmp, output, and downloads trees.
	Base string `yaml:"base"`

	// Utils is bound read-only into every sandbox at /utils.
	Utils string `yaml:"utils"`
}

// GitConfig configures source synchronisation.
type GitConfig struct {
	// URLTemplate is the clone URL with ${BOT_NAME} standing for the
	// bot being run, e.g. git@gitlab.example:bots/${BOT_NAME}.git.
	URLTemplate string `yaml:"url_template"`

	// Attempts is how many times a clone or pull is tried.
	Attempts int `yaml:"attempts"`

	// RetryDelay is the wait between attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// WorkspaceConfig configures directory preparation.
type WorkspaceConfig struct {
	// MinFreeBytes fails preparation when the filesystem holding
	// paths.base has less free space. Zero disables the check.
	MinFreeBytes uint64 `yaml:"min_free_bytes"`
}

// SandboxConfig configures the container engine and the fixed
// resource caps applied to every run.
type SandboxConfig struct {
	// Host is the engine endpoint, e.g. unix:///var/run/docker.sock.
	// Empty uses the engine client's environment defaults.
	Host string `yaml:"host"`

	// Timeout bounds every engine request, including the attach
	// stream, so it must outlive the longest permitted run.
	Timeout time.Duration `yaml:"timeout"`

	// ImagePrefix is joined with the detected language to name the
	// image, e.g. "opencorporates/morph-" + "ruby".
	ImagePrefix string `yaml:"image_prefix"`

	// User is the in-container user the bot runs as.
	User string `yaml:"user"`

	CPUShares int64 `yaml:"cpu_shares"`
	Memory    int64 `yaml:"memory"`

	// TimeCommand is the GNU time binary inside the image.
	TimeCommand string `yaml:"time_command"`

	// Entrypoint is the in-container command that runs the bot.
	Entrypoint string `yaml:"entrypoint"`

	// Env is added to the run environment after RUN_TYPE, RUN_ID,
	// and BOT_NAME.
	Env map[string]string `yaml:"env"`

	// PrivilegedSource, when set, is bound read-write at /src for
	// users holding the admin role.
	PrivilegedSource string `yaml:"privileged_source"`
}

// RecordsConfig configures output processing.
type RecordsConfig struct {
	// Handler is "bus" to publish records or "log" to only log them.
	Handler string `yaml:"handler"`

	// Harness is the validating harness argv. Empty means the output
	// files written inside the sandbox are consumed as they are.
	Harness []string `yaml:"harness"`
}

// ThrottleConfig configures publishing backpressure.
type ThrottleConfig struct {
	BatchSize       int           `yaml:"batch_size"`
	HighWater       int           `yaml:"high_water"`
	MinBackoff      time.Duration `yaml:"min_backoff"`
	MaxBackoff      time.Duration `yaml:"max_backoff"`
	StatsAttempts   int           `yaml:"stats_attempts"`
	StatsRetryDelay time.Duration `yaml:"stats_retry_delay"`

	// RateLimit additionally paces each publish to this producer's
	// share of the observed consume rate.
	RateLimit bool `yaml:"rate_limit"`
}

// MessagingConfig configures the record bus.
type MessagingConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`

	// Queue is the downstream consumer queue whose depth drives
	// backpressure.
	Queue string `yaml:"queue"`

	// ManagementURL enables the management API for queue statistics.
	// Empty falls back to a passive queue declare over AMQP, which
	// reports depth but not consume rate.
	ManagementURL          string `yaml:"management_url"`
	ManagementUser         string `yaml:"management_user"`
	ManagementPassword     string `yaml:"management_password"`
	ManagementPasswordFile string `yaml:"management_password_file"`

	// ManagementTimeout bounds each management API request.
	ManagementTimeout time.Duration `yaml:"management_timeout"`
}

// CoordinatorConfig configures completion reporting.
type CoordinatorConfig struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	APIKeyFile string        `yaml:"api_key_file"`
	Timeout    time.Duration `yaml:"timeout"`
}

// AirbrakeConfig configures error tracking. A zero ProjectID leaves
// tracking to the log.
type AirbrakeConfig struct {
	ProjectID      int64  `yaml:"project_id"`
	ProjectKey     string `yaml:"project_key"`
	ProjectKeyFile string `yaml:"project_key_file"`
	Host           string `yaml:"host"`
}

// Default returns the base values a config file is decoded over.
func Default() *Config {
	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Base:  "db/scrapers",
			Utils: "utils",
		},
		Git: GitConfig{
			Attempts:   3,
			RetryDelay: 5 * time.Second,
		},
		Sandbox: SandboxConfig{
			Timeout:     24 * time.Hour,
			ImagePrefix: "opencorporates/morph-",
			User:        "scraper",
			CPUShares:   307,
			Memory:      2 << 30,
			TimeCommand: "/usr/bin/time",
			Entrypoint:  "ruby /utils/wrapper.rb",
		},
		Records: RecordsConfig{
			Handler: HandlerBus,
		},
		Throttle: ThrottleConfig{
			BatchSize:       1000,
			HighWater:       10000,
			MinBackoff:      10 * time.Second,
			MaxBackoff:      60 * time.Second,
			StatsAttempts:   3,
			StatsRetryDelay: 10 * time.Second,
		},
		Messaging: MessagingConfig{
			Exchange:          "turbot",
			Queue:             "bot_record_consumer",
			ManagementTimeout: 30 * time.Second,
		},
		Coordinator: CoordinatorConfig{
			URL:     "http://turbot",
			Timeout: 30 * time.Second,
		},
	}
}

// Load loads the file named by TURBOT_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of the runner config file, or use --config", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path: defaults, then the file,
// then the selected environment section, then variable expansion and
// secret files. The result is not validated.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is LoadFile for configuration already in memory.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if paths := overrides.Paths; paths != nil {
		override(&c.Paths.Base, paths.Base)
		override(&c.Paths.Utils, paths.Utils)
	}
	if git := overrides.Git; git != nil {
		override(&c.Git.URLTemplate, git.URLTemplate)
		override(&c.Git.Attempts, git.Attempts)
		override(&c.Git.RetryDelay, git.RetryDelay)
	}
	if workspace := overrides.Workspace; workspace != nil {
		override(&c.Workspace.MinFreeBytes, workspace.MinFreeBytes)
	}
	if sandbox := overrides.Sandbox; sandbox != nil {
		override(&c.Sandbox.Host, sandbox.Host)
		override(&c.Sandbox.Timeout, sandbox.Timeout)
		override(&c.Sandbox.ImagePrefix, sandbox.ImagePrefix)
		override(&c.Sandbox.User, sandbox.User)
		override(&c.Sandbox.CPUShares, sandbox.CPUShares)
		override(&c.Sandbox.Memory, sandbox.Memory)
		override(&c.Sandbox.TimeCommand, sandbox.TimeCommand)
		override(&c.Sandbox.Entrypoint, sandbox.Entrypoint)
		override(&c.Sandbox.PrivilegedSource, sandbox.PrivilegedSource)
		if len(sandbox.Env) > 0 {
			merged := make(map[string]string, len(c.Sandbox.Env)+len(sandbox.Env))
			maps.Copy(merged, c.Sandbox.Env)
			maps.Copy(merged, sandbox.Env)
			c.Sandbox.Env = merged
		}
	}
	if records := overrides.Records; records != nil {
		override(&c.Records.Handler, records.Handler)
		if len(records.Harness) > 0 {
			c.Records.Harness = records.Harness
		}
	}
	if throttle := overrides.Throttle; throttle != nil {
		override(&c.Throttle.BatchSize, throttle.BatchSize)
		override(&c.Throttle.HighWater, throttle.HighWater)
		override(&c.Throttle.MinBackoff, throttle.MinBackoff)
		override(&c.Throttle.MaxBackoff, throttle.MaxBackoff)
		override(&c.Throttle.StatsAttempts, throttle.StatsAttempts)
		override(&c.Throttle.StatsRetryDelay, throttle.StatsRetryDelay)
		override(&c.Throttle.RateLimit, throttle.RateLimit)
	}
	if messaging := overrides.Messaging; messaging != nil {
		override(&c.Messaging.URL, messaging.URL)
		override(&c.Messaging.Exchange, messaging.Exchange)
		override(&c.Messaging.Queue, messaging.Queue)
		override(&c.Messaging.ManagementURL, messaging.ManagementURL)
		override(&c.Messaging.ManagementUser, messaging.ManagementUser)
		override(&c.Messaging.ManagementPassword, messaging.ManagementPassword)
		override(&c.Messaging.ManagementPasswordFile, messaging.ManagementPasswordFile)
		override(&c.Messaging.ManagementTimeout, messaging.ManagementTimeout)
	}
	if coordinator := overrides.Coordinator; coordinator != nil {
		override(&c.Coordinator.URL, coordinator.URL)
		override(&c.Coordinator.APIKey, coordinator.APIKey)
		override(&c.Coordinator.APIKeyFile, coordinator.APIKeyFile)
		override(&c.Coordinator.Timeout, coordinator.Timeout)
	}
	if airbrake := overrides.Airbrake; airbrake != nil {
		override(&c.Airbrake.ProjectID, airbrake.ProjectID)
		override(&c.Airbrake.ProjectKey, airbrake.ProjectKey)
		override(&c.Airbrake.ProjectKeyFile, airbrake.ProjectKeyFile)
		override(&c.Airbrake.Host, airbrake.Host)
	}
}

// override replaces *base with value unless value is the zero value.
func override[T comparable](base *T, value T) {
	var zero T
	if value != zero {
		*base = value
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":        os.Getenv("HOME"),
		"TURBOT_BASE": c.Paths.Base,
	}
	c.Paths.Base = Expand(c.Paths.Base, vars)
	vars["TURBOT_BASE"] = c.Paths.Base

	c.Paths.Utils = Expand(c.Paths.Utils, vars)
	c.Sandbox.PrivilegedSource = Expand(c.Sandbox.PrivilegedSource, vars)
	c.Coordinator.APIKeyFile = Expand(c.Coordinator.APIKeyFile, vars)
	c.Airbrake.ProjectKeyFile = Expand(c.Airbrake.ProjectKeyFile, vars)
	c.Messaging.ManagementPasswordFile = Expand(c.Messaging.ManagementPasswordFile, vars)
}

func (c *Config) resolveSecrets() error {
	secrets := []struct {
		name  string
		path  string
		value *string
	}{
		{"coordinator.api_key_file", c.Coordinator.APIKeyFile, &c.Coordinator.APIKey},
		{"airbrake.project_key_file", c.Airbrake.ProjectKeyFile, &c.Airbrake.ProjectKey},
		{"messaging.management_password_file", c.Messaging.ManagementPasswordFile, &c.Messaging.ManagementPassword},
	}
	for _, secret := range secrets {
		if secret.path == "" {
			continue
		}
		data, err := os.ReadFile(secret.path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", secret.name, err)
		}
		*secret.value = strings.TrimSpace(string(data))
	}
	return nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Expand replaces ${VAR} and ${VAR:-default} in s. Values in vars
// take precedence over the process environment; a variable that is
// empty in both takes its default, or the empty string.
func Expand(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, fallback := parts[1], parts[2]
		if value := vars[name]; value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return fallback
	})
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}

	if c.Paths.Base == "" {
		errs = append(errs, errors.New("paths.base is required"))
	}
	if c.Git.URLTemplate == "" {
		errs = append(errs, errors.New("git.url_template is required"))
	}
	if c.Git.Attempts < 1 {
		errs = append(errs, fmt.Errorf("git.attempts must be at least 1, got %d", c.Git.Attempts))
	}

	if c.Sandbox.ImagePrefix == "" {
		errs = append(errs, errors.New("sandbox.image_prefix is required"))
	}
	if c.Sandbox.Entrypoint == "" {
		errs = append(errs, errors.New("sandbox.entrypoint is required"))
	}
	if c.Sandbox.CPUShares <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.cpu_shares must be positive, got %d", c.Sandbox.CPUShares))
	}
	if c.Sandbox.Memory <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.memory must be positive, got %d", c.Sandbox.Memory))
	}

	switch c.Records.Handler {
	case HandlerBus:
		if c.Messaging.URL == "" {
			errs = append(errs, errors.New("messaging.url is required when records.handler is bus"))
		}
	case HandlerLog:
	default:
		errs = append(errs, fmt.Errorf("records.handler must be %q or %q, got %q",
			HandlerBus, HandlerLog, c.Records.Handler))
	}

	if c.Throttle.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("throttle.batch_size must be at least 1, got %d", c.Throttle.BatchSize))
	}
	if c.Throttle.MinBackoff > c.Throttle.MaxBackoff {
		errs = append(errs, fmt.Errorf("throttle.min_backoff %s exceeds max_backoff %s",
			c.Throttle.MinBackoff, c.Throttle.MaxBackoff))
	}
	if c.Throttle.StatsAttempts < 1 {
		errs = append(errs, fmt.Errorf("throttle.stats_attempts must be at least 1, got %d", c.Throttle.StatsAttempts))
	}

	if c.Coordinator.URL == "" {
		errs = append(errs, errors.New("coordinator.url is required"))
	}
	if c.Airbrake.ProjectID != 0 && c.Airbrake.ProjectKey == "" {
		errs = append(errs, errors.New("airbrake.project_key is required when airbrake.project_id is set"))
	}

	return errors.Join(errs...)
}
