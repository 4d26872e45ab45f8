// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatbot turns chat lines into conversation state changes and
// model replies.
//
// [Parser] classifies a message body into a [Command] by walking an
// ordered table of matchers; the first match wins. [Dispatcher] applies
// the join-time and self-message guards, then runs the handler for the
// command against the history store, the model registry and the
// moderation gate. Handlers that talk to the model hand off to
// [Synthesizer], which resolves the room's model, requests a
// completion, records it and posts it as rich text.
//
// The dispatcher knows nothing about Matrix. It talks to the room
// through [Transport]; [MatrixTransport] implements that over a
// messaging.Session, and [SyncHandler] feeds /sync responses into the
// dispatcher and the invite policy of [Membership].
//
// # Concurrency
//
// Dispatch may be called from several goroutines. Every handler that
// mutates a conversation holds that conversation's turn lock from the
// moderation check through the completion and the final append, so two
// turns for the same (room, participant) never interleave. Different
// conversations proceed in parallel. [SyncHandler] handles rooms of a
// sync batch concurrently and events within a room in order.
package chatbot
