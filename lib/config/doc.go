// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the turbot-runner configuration.
//
// Configuration comes from exactly one YAML file named by the
// --config flag or the TURBOT_CONFIG environment variable. There is no
// discovery and no per-field environment override: the file is the
// whole truth about a host.
//
// A file may carry development, staging, and production sections.
// The section matching the top-level environment is decoded over the
// base values after the file loads, so an override only needs the
// keys it changes.
//
// Path-valued fields accept ${VAR} and ${VAR:-default}. The
// git.url_template field is not expanded at load time; it is expanded
// per run with [Expand] so ${BOT_NAME} resolves to the bot being run.
//
// Secrets (coordinator.api_key, airbrake.project_key,
// messaging.management_password) may be given inline or through a
// matching *_file field holding the path of a file that contains the
// value.
package config
