// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the Matrix scaffolding a long-running bot
// process needs around its message handling:
//
//   - Login: password login followed by a whoami check, producing an
//     authenticated session whose identity the homeserver vouches for.
//   - Sync loop: initial /sync, then incremental long-poll with
//     exponential backoff, delivering each response to a
//     caller-provided handler.
//
// Callers compose these in their own main() function. The package
// provides building blocks, not a runtime.
package service
