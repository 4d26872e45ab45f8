// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm talks to an OpenAI-compatible completion service.
//
// [Provider] is the blocking completion surface the bot needs and
// [ModelLister] enumerates the models the service offers. [OpenAI]
// implements both against a base URL: completions are POSTed to
// {base}/chat/completions and the catalog is read from {base}/models.
//
// Every request carries a bearer token obtained from a [TokenSource]
// at send time, so short-lived tokens are refreshed transparently.
// Non-2xx responses become a [*ProviderError].
package llm
