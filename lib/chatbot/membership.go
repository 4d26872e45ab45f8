// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package chatbot

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/clock"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/ref"
)

// DefaultMembershipInterval is how often configured rooms are rejoined.
const DefaultMembershipInterval = 5 * time.Minute

// Joiner joins rooms and lists current memberships. messaging.Session
// satisfies it.
type Joiner interface {
	JoinRoom(ctx context.Context, roomIDOrAlias string) (ref.RoomID, error)
	JoinedRooms(ctx context.Context) ([]ref.RoomID, error)
}

// MembershipConfig configures a Membership.
type MembershipConfig struct {
	// Channels are the rooms the bot must stay in.
	Channels []string
	// AutoJoin accepts every invite, not only invites to Channels.
	AutoJoin bool
	// Interval between rejoin passes. Zero means
	// DefaultMembershipInterval.
	Interval time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Membership keeps the bot in its configured rooms and applies the
// invite policy.
type Membership struct {
	joiner   Joiner
	channels []string
	autoJoin bool
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// NewMembership creates a Membership.
func NewMembership(joiner Joiner, config MembershipConfig) *Membership {
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultMembershipInterval
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Membership{
		joiner:   joiner,
		channels: append([]string(nil), config.Channels...),
		autoJoin: config.AutoJoin,
		interval: interval,
		clock:    clk,
		logger:   logger,
	}
}

// JoinConfigured joins every configured room the bot is not already
// in and returns how many configured rooms it is in afterwards. If the
// membership list cannot be fetched every room is joined; joining a
// room twice is harmless. Failures are logged.
func (m *Membership) JoinConfigured(ctx context.Context) int {
	present := make(map[string]bool)
	current, err := m.joiner.JoinedRooms(ctx)
	if err != nil {
		m.logger.Warn("listing joined rooms failed, joining all configured rooms", "error", err)
	}
	for _, roomID := range current {
		present[roomID.String()] = true
	}

	joined := 0
	for _, channel := range m.channels {
		if ctx.Err() != nil {
			break
		}
		if present[channel] {
			joined++
			continue
		}
		roomID, err := m.joiner.JoinRoom(ctx, channel)
		if err != nil {
			m.logger.Error("joining room failed", "room_id", channel, "error", err)
			continue
		}
		m.logger.Info("joined configured room", "room_id", roomID)
		joined++
	}
	return joined
}

// Run rejoins the configured rooms every interval until ctx is
// cancelled.
func (m *Membership) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.JoinConfigured(ctx)
		}
	}
}

// HandleInvite joins room when auto-join is on or room is configured,
// and reports whether it joined.
func (m *Membership) HandleInvite(ctx context.Context, room ref.RoomID, inviter ref.UserID) bool {
	if !m.autoJoin && !slices.Contains(m.channels, room.String()) {
		m.logger.Info("ignoring invite to unconfigured room",
			"room_id", room,
			"inviter", inviter,
		)
		return false
	}
	if _, err := m.joiner.JoinRoom(ctx, room.String()); err != nil {
		m.logger.Error("joining room after invite failed",
			"room_id", room,
			"inviter", inviter,
			"error", err,
		)
		return false
	}
	m.logger.Info("joined room after invite", "room_id", room, "inviter", inviter)
	return true
}
