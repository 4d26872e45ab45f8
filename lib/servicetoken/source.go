// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package servicetoken

import (
	"context"
	"crypto/ed25519"
	"log/slog"
	"sync"
	"time"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/clock"
)

// refreshFraction is the share of a token's lifetime after which
// Source mints a replacement.
const refreshFraction = 0.8

// Source hands out a cached token and re-mints it once it is past
// refreshFraction of its lifetime. Safe for concurrent use.
type Source struct {
	privateKey ed25519.PrivateKey
	claims     Claims
	clock      clock.Clock
	logger     *slog.Logger

	mu        sync.Mutex
	token     string
	refreshAt time.Time
}

// NewSource creates a Source. Nothing is minted until the first Token
// call.
func NewSource(privateKey ed25519.PrivateKey, claims Claims, clk clock.Clock, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		privateKey: privateKey,
		claims:     claims,
		clock:      clk,
		logger:     logger,
	}
}

// Token returns a valid token, minting one if the cached token is
// missing or due for refresh.
func (s *Source) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.token != "" && now.Before(s.refreshAt) {
		return s.token, nil
	}

	token, err := Mint(s.privateKey, s.claims, now)
	if err != nil {
		return "", err
	}
	s.token = token
	s.refreshAt = now.Add(time.Duration(float64(s.claims.Lifetime) * refreshFraction))
	s.logger.Debug("minted service token",
		"subject", s.claims.Subject,
		"expires_at", now.Add(s.claims.Lifetime),
	)
	return token, nil
}

// Invalidate drops the cached token so the next Token call mints a
// fresh one. Call it when the service rejects the current token.
func (s *Source) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.refreshAt = time.Time{}
}
