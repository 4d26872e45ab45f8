// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the time operations the bot depends on so
// that time-sensitive logic can be tested deterministically.
//
// Production code injects [Real]. Tests inject [Fake], whose time only
// moves when [FakeClock.Advance] is called:
//
//	clk := clock.Fake(start)
//	go loop.Run(ctx)          // registers a ticker
//	clk.WaitForTimers(1)      // wait until it has
//	clk.Advance(5 * time.Minute)
//
// Users: the join-time guard in lib/chatbot, the membership ticker, the
// /sync backoff in lib/service and token expiry in lib/servicetoken.
package clock
