// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package history holds the in-memory conversations the bot keeps per
// room and per participant.
//
// A non-empty conversation always starts with exactly one system
// message. [Store.Append] seeds a missing or emptied conversation with
// the default persona preamble before appending, and trims the window
// back under [MaxMessages] by dropping the two oldest entries after the
// system message.
//
// State is volatile: nothing is persisted and a restart forgets every
// conversation.
//
// Two levels of locking are involved. A short internal mutex guards the
// maps for each operation. [Store.Lock] hands out a per-conversation
// turn lock that callers hold across a whole
// moderate-mutate-complete-append sequence, so two turns on the same
// conversation never interleave while different conversations proceed
// in parallel.
package history
