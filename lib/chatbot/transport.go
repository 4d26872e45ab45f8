// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package chatbot

import (
	"context"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/ref"
)

// Transport is the chat surface the dispatcher talks to.
type Transport interface {
	// SendText posts a plain-text message.
	SendText(ctx context.Context, room ref.RoomID, body string) error

	// SendMarkdown posts Markdown source together with its rendered
	// rich-text form.
	SendMarkdown(ctx context.Context, room ref.RoomID, markdown string) error

	// DisplayName returns the name user goes by in room. An empty name
	// with a nil error means the user has none.
	DisplayName(ctx context.Context, room ref.RoomID, user ref.UserID) (string, error)
}
