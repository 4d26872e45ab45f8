// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package moderation decides whether user-supplied text may reach the
// completion service or become a system prompt.
//
// The gate is a pure function of its configuration and input.
//
// An unknown strategy name fails OPEN: it is logged once, at
// construction, and every text passes. Check startup logs for
// "unknown moderation strategy" after editing the configuration.
package moderation

import (
	"log/slog"
	"strings"
)

// StrategyForbiddenWords flags text containing any configured term as
// a case-insensitive substring.
const StrategyForbiddenWords = "forbidden_words"

// Config configures a Gate.
type Config struct {
	Enabled        bool
	Strategy       string
	ForbiddenWords []string
}

// Gate is a moderation predicate. The zero value flags nothing. Safe
// for concurrent use; a Gate is immutable after construction.
type Gate struct {
	enabled bool
	// known is false for unrecognized strategies.
	known bool
	terms []string
}

// New builds a Gate. Empty forbidden terms are dropped: an empty
// substring would match every text.
func New(config Config, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}

	gate := &Gate{enabled: config.Enabled}
	if !config.Enabled {
		return gate
	}

	switch config.Strategy {
	case StrategyForbiddenWords:
		gate.known = true
		for _, word := range config.ForbiddenWords {
			if word == "" {
				continue
			}
			gate.terms = append(gate.terms, strings.ToLower(word))
		}
	default:
		logger.Warn("unknown moderation strategy, moderation will not flag anything",
			"strategy", config.Strategy,
		)
	}
	return gate
}

// IsFlagged reports whether text violates policy.
func (g *Gate) IsFlagged(text string) bool {
	if g == nil || !g.enabled || !g.known {
		return false
	}
	lowered := strings.ToLower(text)
	for _, term := range g.terms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}
