// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is a small client for the parts of the Matrix
// client-server API the bot uses.
//
// [Client] is unauthenticated: it holds the homeserver URL, the HTTP
// transport and the outbound send limiter, and performs password
// login. [DirectSession] adds an access token (kept in a
// secret.Buffer) and implements [Session]: whoami, joins, joined room
// listing, message sends, display name lookups and long-poll /sync.
//
// Every non-2xx response is returned as a [*MatrixError] carrying the
// Matrix errcode and the HTTP status. [IsMatrixError] tests for a code.
// Request URLs are built by string concatenation with url.PathEscape on
// each path segment, so room aliases containing reserved characters
// reach the server intact.
//
// Sends are paced by a golang.org/x/time/rate limiter shared by every
// session of a Client. Transaction IDs are random UUIDs, so a retried
// PUT after a restart never collides with an earlier one.
package messaging
