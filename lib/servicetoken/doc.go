// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package servicetoken mints the EdDSA-signed JWTs the completion
// service accepts as bearer tokens.
//
// A token's claims are the configured extra payload overlaid with the
// standard registered claims:
//
//	sub  the bot's Matrix username
//	iat  mint time
//	nbf  mint time
//	exp  mint time + lifetime
//	jti  random UUID
//
// [Source] caches the current token and mints a new one once 80% of
// its lifetime has elapsed, so long-running processes never present an
// expired token. The private key is an Ed25519 key in PKCS#8 PEM form,
// loaded through lib/secret so the PEM bytes never linger on the heap.
package servicetoken
