// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the bot's configuration file.
//
// The file is a two-element array. Element 0 describes the model
// catalog (allow-list and whether it restricts the service's list);
// element 1 holds everything else: Matrix credentials, the completion
// service endpoint, moderation, personas and operational knobs. Key
// names match existing deployments.
//
// The path comes from the --config flag or, via [Load], from the
// LLMBOT_CONFIG environment variable. Files ending in .yaml or .yml
// are YAML (a sequence of two mappings); anything else is JSON, with
// comments and trailing commas tolerated.
//
// Unset keys keep the values from [Default]. ${VAR} and ${VAR:-default}
// references in file paths are expanded from the environment.
package config
