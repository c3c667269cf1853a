// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging connects the runner to the RabbitMQ record bus.
//
// [Client] is the publishing side: every validated record and every
// run-ended message leaves the runner through Publish. The client is
// owned by the caller and injected into the code that publishes; it is
// connected explicitly with Connect, and IsConnected lets a long-lived
// process reuse one connection across runs. [AMQPClient] implements it
// over AMQP 0-9-1 with a topic exchange, persistent delivery, and
// publisher confirms, so a successful Publish means the broker has
// taken responsibility for the message.
//
// [StatsSource] is the observing side, used for backpressure: the
// runner samples the depth of the downstream consumer queue and backs
// off while it is too deep. AMQPClient answers with a passive queue
// declare, which reports depth only. [ManagementClient] uses the
// RabbitMQ management HTTP API and additionally reports the queue's
// consume rate and the number of connected producers, which the
// optional rate limiter needs.
//
// Management API failures are returned as [*ManagementError] carrying
// the HTTP status and RabbitMQ's error and reason strings.
//
// [Memory] is an in-process Client and StatsSource for tests.
package messaging
