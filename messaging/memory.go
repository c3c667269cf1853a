// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"sync"
)

// Published is one message accepted by a Memory client.
type Published struct {
	RoutingKey string
	Body       []byte
}

// Memory is an in-process Client and StatsSource. Its zero value is
// an unconnected client with an empty queue.
type Memory struct {
	mu        sync.Mutex
	connected bool
	published []Published
	connects  int

	// PublishErr, when set, fails every Publish.
	PublishErr error

	// Stats is returned by QueueStats. StatsFunc, when set, takes
	// precedence and is called with the number of messages published
	// so far.
	Stats     QueueStats
	StatsErr  error
	StatsFunc func(published int) (QueueStats, error)
}

func (m *Memory) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		m.connects++
	}
	m.connected = true
	return nil
}

func (m *Memory) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Memory) Publish(_ context.Context, routingKey string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.published = append(m.published, Published{RoutingKey: routingKey, Body: append([]byte(nil), body...)})
	return nil
}

func (m *Memory) QueueStats(context.Context) (QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StatsFunc != nil {
		return m.StatsFunc(len(m.published))
	}
	return m.Stats, m.StatsErr
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// Messages returns a copy of everything published so far.
func (m *Memory) Messages() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Published(nil), m.published...)
}

// Connects returns how many times Connect opened a connection.
func (m *Memory) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}
