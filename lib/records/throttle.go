// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package records

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/turbot/lib/clock"
	"github.com/bureau-foundation/turbot/messaging"
)

// ThrottleConfig configures a Throttle. Zero numeric fields take the
// defaults below.
type ThrottleConfig struct {
	// Stats reports the consumer queue. Nil disables backpressure.
	Stats messaging.StatsSource

	BatchSize       int
	HighWater       int
	MinBackoff      time.Duration
	MaxBackoff      time.Duration
	StatsAttempts   int
	StatsRetryDelay time.Duration

	// RateLimit paces each publish to consume_rate / producers as of
	// the last sample.
	RateLimit bool

	Clock clock.Clock

	// Jitter picks a backoff in [min, max]. Nil is uniform random.
	Jitter func(min, max time.Duration) time.Duration

	Logger *slog.Logger
}

// Backpressure defaults.
const (
	DefaultBatchSize       = 1000
	DefaultHighWater       = 10000
	DefaultMinBackoff      = 10 * time.Second
	DefaultMaxBackoff      = 60 * time.Second
	DefaultStatsAttempts   = 3
	DefaultStatsRetryDelay = 10 * time.Second
)

// Throttle applies publishing backpressure. It is used by a single
// publishing goroutine.
type Throttle struct {
	stats           messaging.StatsSource
	batchSize       int
	highWater       int
	minBackoff      time.Duration
	maxBackoff      time.Duration
	statsAttempts   int
	statsRetryDelay time.Duration
	limiter         *rate.Limiter
	clock           clock.Clock
	jitter          func(min, max time.Duration) time.Duration
	logger          *slog.Logger

	published int
}

// NewThrottle returns a Throttle for config.
func NewThrottle(config ThrottleConfig) *Throttle {
	t := &Throttle{
		stats:           config.Stats,
		batchSize:       orDefault(config.BatchSize, DefaultBatchSize),
		highWater:       orDefault(config.HighWater, DefaultHighWater),
		minBackoff:      orDefault(config.MinBackoff, DefaultMinBackoff),
		maxBackoff:      orDefault(config.MaxBackoff, DefaultMaxBackoff),
		statsAttempts:   orDefault(config.StatsAttempts, DefaultStatsAttempts),
		statsRetryDelay: orDefault(config.StatsRetryDelay, DefaultStatsRetryDelay),
		clock:           config.Clock,
		jitter:          config.Jitter,
		logger:          config.Logger,
	}
	if t.maxBackoff < t.minBackoff {
		t.maxBackoff = t.minBackoff
	}
	if config.RateLimit {
		t.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if t.clock == nil {
		t.clock = clock.Real()
	}
	if t.jitter == nil {
		t.jitter = uniform
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

func orDefault[T int | time.Duration](value, fallback T) T {
	if value <= 0 {
		return fallback
	}
	return value
}

func uniform(low, high time.Duration) time.Duration {
	if high <= low {
		return low
	}
	return low + rand.N(high-low+1)
}

// Wait blocks until the rate limiter admits one publish. Without rate
// limiting it returns immediately.
func (t *Throttle) Wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}

// Limit returns the current per-publish rate limit, or rate.Inf.
func (t *Throttle) Limit() rate.Limit {
	if t.limiter == nil {
		return rate.Inf
	}
	return t.limiter.Limit()
}

// Published counts one published record. At every batch boundary it
// samples the consumer queue and blocks while the queue is above the
// high-water mark. It returns an error only when ctx is done.
func (t *Throttle) Published(ctx context.Context) error {
	t.published++
	if t.stats == nil || t.published%t.batchSize != 0 {
		return nil
	}

	for {
		stats, ok := t.sample(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if !ok {
			t.logger.Warn("queue statistics unavailable, resuming publishing", "published", t.published)
			return nil
		}
		t.recalibrate(stats)
		if stats.Messages <= t.highWater {
			return nil
		}

		delay := t.jitter(t.minBackoff, t.maxBackoff)
		t.logger.Info("consumer queue above high water, backing off",
			"messages", stats.Messages,
			"high_water", t.highWater,
			"delay", delay,
		)
		if err := t.clock.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// sample queries queue statistics, retrying failures.
func (t *Throttle) sample(ctx context.Context) (messaging.QueueStats, bool) {
	for attempt := 1; ; attempt++ {
		stats, err := t.stats.QueueStats(ctx)
		if err == nil {
			return stats, true
		}
		t.logger.Warn("querying queue statistics failed", "attempt", attempt, "error", err)
		if attempt >= t.statsAttempts {
			return messaging.QueueStats{}, false
		}
		if err := t.clock.Sleep(ctx, t.statsRetryDelay); err != nil {
			return messaging.QueueStats{}, false
		}
	}
}

func (t *Throttle) recalibrate(stats messaging.QueueStats) {
	if t.limiter == nil {
		return
	}
	if stats.ConsumeRate <= 0 {
		t.limiter.SetLimit(rate.Inf)
		return
	}
	limit := stats.ConsumeRate / float64(max(stats.Producers, 1))
	t.limiter.SetLimit(rate.Limit(limit))
	t.limiter.SetBurst(max(1, int(limit)))
	t.logger.Debug("publish rate recalibrated", "limit", limit, "producers", stats.Producers)
}
