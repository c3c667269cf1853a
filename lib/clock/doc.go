// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for the run
// pipeline.
//
// Code that waits (git retry delays, backpressure backoff) or stamps
// records (export dates) takes a [Clock] instead of calling the time
// package. Production wiring passes [Real]; tests pass [Fake] and move
// time forward explicitly with [FakeClock.Advance].
//
// Waiting goes through [Clock.Sleep], which takes a context: a
// cancelled run must not sit out a sixty-second backoff before it can
// reach its cleanup path.
//
// # FakeClock synchronization
//
// A goroutine that calls After or Sleep on a FakeClock registers a
// pending waiter. Tests call [FakeClock.WaitForTimers] before Advance
// so that the waiter is known to exist when time moves:
//
//	go func() { done <- throttle.Wait(ctx) }()
//	fake.WaitForTimers(1)
//	fake.Advance(time.Minute)
package clock
