// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package chatbot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/catalog"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/history"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/llm"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/ref"
)

// apologyMessage is sent when a completion cannot be produced.
const apologyMessage = "An error occurred while generating a response. Please try again later."

// SynthesizerConfig configures a Synthesizer.
type SynthesizerConfig struct {
	History     *history.Store
	Models      *catalog.Registry
	Provider    llm.Provider
	Transport   Transport
	Temperature float64
	Logger      *slog.Logger
}

// Synthesizer produces the model's reply to a conversation.
type Synthesizer struct {
	history     *history.Store
	models      *catalog.Registry
	provider    llm.Provider
	transport   Transport
	temperature float64
	logger      *slog.Logger
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(config SynthesizerConfig) *Synthesizer {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		history:     config.History,
		models:      config.Models,
		provider:    config.Provider,
		transport:   config.Transport,
		temperature: config.Temperature,
		logger:      logger,
	}
}

// Synthesize sends participant's conversation in room to the room's
// model. On success the reply is appended to the conversation as an
// assistant message and posted as rich text prefixed with displayName.
// On failure nothing is appended and a plain apology is posted.
//
// The caller must hold the conversation's turn lock.
func (s *Synthesizer) Synthesize(ctx context.Context, room ref.RoomID, participant, displayName string) bool {
	logger := s.logger.With("room_id", room, "participant", participant)

	model := s.models.Resolve(room.String())
	if model.ID == "" {
		logger.Error("no model resolved for room, using default")
		model = s.models.Default()
	}

	conversation, _ := s.history.Lookup(room.String(), participant)
	temperature := s.temperature
	response, err := s.provider.Complete(ctx, llm.Request{
		Model:       model.ID,
		Messages:    conversation,
		Temperature: &temperature,
	})
	if err != nil {
		var providerErr *llm.ProviderError
		if errors.As(err, &providerErr) && providerErr.IsRateLimited() {
			logger.Warn("completion service rate limited", "model", model.ID, "error", err)
		} else {
			logger.Error("completion failed", "model", model.ID, "error", err)
		}
		if sendErr := s.transport.SendText(ctx, room, apologyMessage); sendErr != nil {
			logger.Error("sending apology failed", "error", sendErr)
		}
		return false
	}

	reply := unquote(response.Content)
	s.history.Append(llm.RoleAssistant, room.String(), participant, reply)
	logger.Debug("completion received",
		"model", model.ID,
		"input_tokens", response.Usage.InputTokens,
		"output_tokens", response.Usage.OutputTokens,
	)

	if err := s.transport.SendMarkdown(ctx, room, displayName+":\n\n"+reply); err != nil {
		logger.Error("sending reply failed", "error", err)
	}
	return true
}

// unquote strips one leading and one trailing double quote.
func unquote(text string) string {
	text = strings.TrimPrefix(text, `"`)
	return strings.TrimSuffix(text, `"`)
}
