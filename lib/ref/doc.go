// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated, immutable Matrix identifiers used at
// the transport boundary: room IDs, user IDs, event IDs and event types.
//
// Raw strings from the homeserver or the configuration file are parsed
// into these types once. JSON marshaling uses the canonical string form
// via encoding.TextMarshaler, so sync responses decode straight into
// typed maps (map[RoomID]JoinedRoom) with validation at the edge.
//
// The conversation core deliberately works with plain strings: a
// participant key may be a synthetic name that is not a Matrix user ID
// at all. Only the messaging layer and the chat adapter deal in refs.
package ref
