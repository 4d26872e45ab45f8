// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds credentials (the Matrix password, the signing
// key PEM and the Matrix access token) outside the Go heap.
//
// [Buffer] is backed by an anonymous mmap region that is excluded from
// core dumps and, where the RLIMIT_MEMLOCK budget allows, locked into
// RAM. On Close the region is zeroed and unmapped.
//
// Constructors:
//
//   - [New] allocates a zero-filled buffer of a given size
//   - [NewFromBytes] copies into protected memory and zeros the source
//   - [NewFromString] copies a config-supplied string
//   - [ReadFromPath] reads and trims a file, or stdin for "-"
//   - [ReadPassword] prompts on a terminal without echo
//
// Depends on golang.org/x/sys/unix and golang.org/x/term.
package secret
