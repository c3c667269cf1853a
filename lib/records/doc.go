// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package records turns a finished run's output files into messages.
//
// A [Processor] first invokes the validating [Harness], which checks
// what the bot printed against the bot's schemas and writes the
// accepted records to scraper.out and one file per transformer. It
// then reads those files line by line and classifies each line for a
// [Handler]:
//
//   - a JSON object with a string data_type is a valid record;
//   - any other JSON value is an invalid record;
//   - a line that is not JSON is invalid input;
//   - the harness sentinel RUN ENDED marks the dataset complete once
//     every file has been read;
//   - NOT FOUND and blank lines carry nothing and are skipped.
//
// Handlers answer every line with a [Decision]. StopRun ends reading
// across all remaining files; an error from a handler fails the run.
// [BusHandler] publishes to the record bus and is what production
// runs use; [LogHandler] only logs, for development hosts without a
// bus.
//
// # Ending a run
//
// Downstream consumers treat run.ended as "this snapshot is complete",
// so it is published after the last record of the last file.
// A bot whose manifest sets neither incremental nor manually_end_run
// is complete when its output has been read, so the Processor ends the
// run itself if the harness did not. A run publishes at most one
// run.ended message, however it ends.
//
// # Backpressure
//
// [Throttle] keeps producers from burying the consumer. Every
// batch of published records it samples the consumer queue and, while
// the queue is deeper than the high-water mark, sleeps a random
// interval and samples again. Random intervals let several producers
// stalled on the same queue resume at different times. Sampling
// failures are retried and then ignored: publishing resumes rather
// than failing the run over missing statistics. Optionally the
// Throttle also paces each publish to this producer's share of the
// queue's consume rate.
package records
