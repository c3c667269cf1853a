// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by operations that need a connection
// made with Connect.
var ErrNotConnected = errors.New("messaging: not connected")

// ConnectionPrefix starts the name of every runner connection. The
// management API counts producers by it.
const ConnectionPrefix = "turbot-runner/"

// Client publishes messages to the record bus.
type Client interface {
	// Connect opens the connection. Connecting an already connected
	// client is a no-op.
	Connect(ctx context.Context) error

	// IsConnected reports whether the connection is open.
	IsConnected() bool

	// Publish sends a JSON body with the given routing key and
	// returns once the broker has accepted it.
	Publish(ctx context.Context, routingKey string, body []byte) error

	// Close closes the connection.
	Close() error
}

// QueueStats describes the downstream consumer queue.
type QueueStats struct {
	// Messages is the queue depth.
	Messages int

	// ConsumeRate is messages per second delivered to consumers, or
	// zero when the source cannot tell.
	ConsumeRate float64

	// Producers is the number of runner connections, or zero when the
	// source cannot tell.
	Producers int
}

// StatsSource reports the state of the downstream consumer queue.
type StatsSource interface {
	QueueStats(ctx context.Context) (QueueStats, error)
}
