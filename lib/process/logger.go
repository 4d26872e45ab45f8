// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewLogger creates the process logger writing to output. When output
// is a terminal it uses slog.TextHandler for human-readable lines;
// otherwise slog.JSONHandler, for log collectors. verbose lowers the
// level from Info to Debug.
func NewLogger(output *os.File, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	options := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if term.IsTerminal(int(output.Fd())) {
		handler = slog.NewTextHandler(output, options)
	} else {
		handler = slog.NewJSONHandler(output, options)
	}
	return slog.New(handler)
}
