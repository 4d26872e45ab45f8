// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

// llm-matrix-bot connects a Matrix account to an OpenAI-compatible
// completion service. Each room member gets their own conversation with
// the model, steered by a persona; admins choose the model per room.
//
// Startup, in order: load and validate the configuration (prompting
// for the Matrix password when the file has none), load the Ed25519
// signing key for service tokens, build the model catalog, log in,
// record the join time, run the initial /sync, join the configured
// rooms and answer pending invites. The bot then runs two loops until
// SIGINT or SIGTERM: the incremental /sync loop that dispatches chat
// commands, and the room membership loop that rejoins configured rooms
// every five minutes.
//
// The configuration path comes from --config, or from LLMBOT_CONFIG
// when the flag is not given.
package main
