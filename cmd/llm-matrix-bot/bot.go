// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/catalog"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/chatbot"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/clock"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/config"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/history"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/llm"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/moderation"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/secret"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/service"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/servicetoken"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/version"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/messaging"
)

// syncHTTPMargin is added to the /sync long-poll timeout to get the
// Matrix HTTP client deadline.
const syncHTTPMargin = 30 * time.Second

func runBot(ctx context.Context, cfg *config.Config, password *secret.Buffer, logger *slog.Logger) error {
	clk := clock.Real()
	bot := &cfg.Bot

	privateKey, err := servicetoken.LoadPrivateKey(bot.PrivateKeyFile)
	if err != nil {
		return err
	}
	tokens := servicetoken.NewSource(privateKey, servicetoken.Claims{
		Subject:  bot.Username,
		Lifetime: bot.JWTLifetime(),
		Extra:    bot.JWTPayload,
	}, clk, logger)

	provider, err := llm.NewOpenAI(llm.OpenAIConfig{
		BaseURL:    bot.Endpoint,
		Tokens:     tokens,
		HTTPClient: &http.Client{Timeout: bot.RequestTimeout()},
		UserAgent:  version.UserAgent(),
	})
	if err != nil {
		return err
	}

	models := catalog.New(provider, catalog.Config{
		AllowList:    cfg.Models.Models,
		Restrict:     cfg.Models.RestrictToSpecifiedModels,
		DefaultModel: bot.DefaultModel,
	}, logger)
	defaultModel := models.SelectDefault(models.Refresh(ctx))
	logger.Info("default model selected", "model", defaultModel)

	syncTimeout := bot.SyncTimeout
	if syncTimeout == 0 {
		syncTimeout = 30000
	}
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: bot.Server,
		HTTPClient:    &http.Client{Timeout: time.Duration(syncTimeout)*time.Millisecond + syncHTTPMargin},
		Logger:        logger,
		UserAgent:     version.UserAgent(),
		SendRate:      rate.Limit(bot.SendRatePerSecond),
		SendBurst:     bot.SendBurst,
	})
	if err != nil {
		return err
	}
	session, err := service.Login(ctx, client, service.Credentials{
		Username: bot.Username,
		Password: password,
		DeviceID: bot.DeviceID,
	}, logger)
	if err != nil {
		return err
	}
	defer session.Close()
	password.Close()

	joinTime := clk.Now()
	nextBatch, initial, err := service.InitialSync(ctx, session, chatbot.SyncFilter)
	if err != nil {
		return err
	}

	displayName, err := session.GetDisplayName(ctx, session.UserID())
	if err != nil {
		logger.Warn("bot display name unavailable, answering to user ID only", "error", err)
	}

	dispatcher, err := chatbot.New(chatbot.Config{
		UserID:      session.UserID(),
		DisplayName: displayName,
		JoinTime:    joinTime,
		Admins:      bot.Admins,
		Temperature: bot.ResponseTemperature,
		HelpFile:    bot.HelpFile,
		History:     history.New(bot.Personality),
		Models:      models,
		Gate: moderation.New(moderation.Config{
			Enabled:        bot.ModerationEnabled,
			Strategy:       bot.ModerationStrategy,
			ForbiddenWords: bot.ForbiddenWords,
		}, logger),
		Provider:  provider,
		Transport: chatbot.NewMatrixTransport(session, logger),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	membership := chatbot.NewMembership(session, chatbot.MembershipConfig{
		Channels: bot.Channels,
		AutoJoin: bot.AutoJoinRooms,
		Clock:    clk,
		Logger:   logger,
	})
	joined := membership.JoinConfigured(ctx)

	handler := chatbot.NewSyncHandler(session.UserID(), dispatcher, membership, logger)
	handler.HandleInvites(ctx, initial)

	logger.Info("bot running",
		"user_id", session.UserID(),
		"display_name", displayName,
		"rooms_joined", joined,
		"model", defaultModel,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		membership.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		return service.RunSyncLoop(groupCtx, session, service.SyncConfig{
			Filter:  chatbot.SyncFilter,
			Timeout: syncTimeout,
		}, nextBatch, handler.HandleSync, clk, logger)
	})
	if err := group.Wait(); err != nil {
		return fmt.Errorf("bot stopped: %w", err)
	}

	logger.Info("shutting down")
	return nil
}
