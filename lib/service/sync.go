// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/clock"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/messaging"
)

// Syncer performs a single /sync request. messaging.Session satisfies
// it.
type Syncer interface {
	Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error)
}

// SyncConfig configures the Matrix /sync long-poll loop.
type SyncConfig struct {
	// Filter is the inline JSON filter restricting which events the
	// homeserver returns.
	Filter string

	// Timeout is the long-poll timeout in milliseconds. Default: 30000.
	Timeout int

	// MaxBackoff is the maximum duration between retry attempts on
	// transient /sync errors. The loop uses exponential backoff
	// starting at 1 second. Default: 30 seconds.
	MaxBackoff time.Duration
}

// idleCloser is implemented by sessions backed by a pooled HTTP client.
type idleCloser interface {
	CloseIdleConnections()
}

// SyncHandler is called for each incremental /sync response. The next
// poll starts after the handler returns.
type SyncHandler func(ctx context.Context, response *messaging.SyncResponse)

// InitialSync performs the first /sync with no since token and returns
// the next_batch token for the incremental loop together with the full
// response. The homeserver answers immediately with the full state of
// every room.
func InitialSync(ctx context.Context, session Syncer, filter string) (string, *messaging.SyncResponse, error) {
	response, err := session.Sync(ctx, messaging.SyncOptions{
		Filter:    filter,
		FullState: true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("initial sync: %w", err)
	}
	return response.NextBatch, response, nil
}

// RunSyncLoop runs the incremental /sync long-poll loop from
// sinceToken, calling handler for each response, until ctx is
// cancelled.
//
// Transient errors are retried with exponential backoff from 1 second
// to config.MaxBackoff. A rate-limit response waits at least the
// server's retry_after_ms. M_UNKNOWN_TOKEN ends the loop with an
// error: the session has been logged out and no retry can recover it.
// After a failure pooled connections are dropped when the session
// supports it, so the retry dials fresh. Cancellation returns nil.
func RunSyncLoop(ctx context.Context, session Syncer, config SyncConfig, sinceToken string, handler SyncHandler, clk clock.Clock, logger *slog.Logger) error {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30000
	}
	maxBackoff := config.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 30 * time.Second
	}

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		options := messaging.SyncOptions{
			Since:      sinceToken,
			Timeout:    timeout,
			SetTimeout: true,
			Filter:     config.Filter,
		}

		response, err := session.Sync(ctx, options)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if messaging.IsMatrixError(err, messaging.ErrCodeUnknownToken) {
				return fmt.Errorf("sync: session is no longer valid: %w", err)
			}

			wait := backoff
			if retryAfter := retryAfter(err); retryAfter > wait {
				wait = retryAfter
			}
			if closer, ok := session.(idleCloser); ok {
				closer.CloseIdleConnections()
			}
			logger.Error("sync failed, retrying", "error", err, "backoff", wait)
			select {
			case <-ctx.Done():
				return nil
			case <-clk.After(wait):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = time.Second
		sinceToken = response.NextBatch

		handler(ctx, response)
	}
}

func retryAfter(err error) time.Duration {
	var matrixErr *messaging.MatrixError
	if !errors.As(err, &matrixErr) || matrixErr.Code != messaging.ErrCodeLimitExceeded {
		return 0
	}
	return time.Duration(matrixErr.RetryAfterMillis) * time.Millisecond
}
