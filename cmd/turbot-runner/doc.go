// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Turbot-runner executes a single bot run and exits.
//
// The run is described by a JSON parameter document (bot_name,
// run_id, run_uid, run_type, user_api_key, user_roles) given with
// --params as a file path, as a .cbor file, or as "-" for JSON on
// stdin. Host configuration comes from the YAML file named by
// --config or TURBOT_CONFIG.
//
// The process exits 0 when the run completed, whatever the bot's own
// exit status, and 1 when the run failed. A failed run has already
// been reported to the coordinator by the time the process exits.
// SIGINT and SIGTERM cancel the run; the container is still waited
// for and removed.
package main
