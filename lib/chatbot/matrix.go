// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package chatbot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/ref"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/richtext"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/messaging"
)

// SyncFilter limits /sync to what the bot reads: room messages and
// membership state. Presence and account data are dropped.
const SyncFilter = `{` +
	`"presence":{"types":[]},` +
	`"account_data":{"types":[]},` +
	`"room":{` +
	`"timeline":{"types":["m.room.message"],"limit":50},` +
	`"state":{"types":["m.room.member"],"lazy_load_members":true},` +
	`"ephemeral":{"types":[]},` +
	`"account_data":{"types":[]}` +
	`}}`

// MatrixTransport implements Transport over a Matrix session.
type MatrixTransport struct {
	session messaging.Session
	logger  *slog.Logger
}

// NewMatrixTransport creates a MatrixTransport.
func NewMatrixTransport(session messaging.Session, logger *slog.Logger) *MatrixTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &MatrixTransport{session: session, logger: logger}
}

// SendText posts a plain m.text message.
func (t *MatrixTransport) SendText(ctx context.Context, room ref.RoomID, body string) error {
	if _, err := t.session.SendMessage(ctx, room, messaging.NewTextMessage(body)); err != nil {
		return fmt.Errorf("chatbot: sending to %s: %w", room, err)
	}
	return nil
}

// SendMarkdown posts markdown as the body and its HTML rendering as the
// formatted body. If rendering fails the message goes out as plain
// text.
func (t *MatrixTransport) SendMarkdown(ctx context.Context, room ref.RoomID, markdown string) error {
	html, err := richtext.Render(markdown)
	if err != nil {
		t.logger.Warn("rendering markdown failed, sending plain text", "room_id", room, "error", err)
		return t.SendText(ctx, room, markdown)
	}
	if _, err := t.session.SendMessage(ctx, room, messaging.NewHTMLMessage(markdown, html)); err != nil {
		return fmt.Errorf("chatbot: sending to %s: %w", room, err)
	}
	return nil
}

// DisplayName prefers the room-specific member name and falls back to
// the global profile name.
func (t *MatrixTransport) DisplayName(ctx context.Context, room ref.RoomID, user ref.UserID) (string, error) {
	name, err := t.session.GetMemberDisplayName(ctx, room, user)
	if err == nil && name != "" {
		return name, nil
	}
	if err != nil {
		t.logger.Debug("member display name unavailable, trying profile",
			"room_id", room,
			"user_id", user,
			"error", err,
		)
	}
	name, err = t.session.GetDisplayName(ctx, user)
	if err != nil {
		return "", fmt.Errorf("chatbot: display name of %s: %w", user, err)
	}
	return name, nil
}

// SyncHandler feeds /sync responses to a Dispatcher and invites to a
// Membership.
type SyncHandler struct {
	userID     ref.UserID
	dispatcher *Dispatcher
	membership *Membership
	logger     *slog.Logger
}

// NewSyncHandler creates a SyncHandler. userID is the bot's identity,
// used to find its own invite in stripped invite state.
func NewSyncHandler(userID ref.UserID, dispatcher *Dispatcher, membership *Membership, logger *slog.Logger) *SyncHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncHandler{
		userID:     userID,
		dispatcher: dispatcher,
		membership: membership,
		logger:     logger,
	}
}

// HandleInvites applies the invite policy to every pending invite in
// response. It is used for the initial sync, whose timeline is not
// dispatched.
func (h *SyncHandler) HandleInvites(ctx context.Context, response *messaging.SyncResponse) {
	h.logUndecodable(response)
	h.handleInvites(ctx, response)
}

// HandleSync processes one incremental /sync response. Invites are
// handled first. Joined rooms are then processed concurrently, each
// room's text messages in timeline order. It returns when every room
// is done. Rooms with malformed IDs or undecodable data are skipped
// with a warning.
func (h *SyncHandler) HandleSync(ctx context.Context, response *messaging.SyncResponse) {
	h.logUndecodable(response)
	h.handleInvites(ctx, response)

	var group errgroup.Group
	for rawRoom, joined := range response.Rooms.Join {
		roomID, err := ref.ParseRoomID(rawRoom)
		if err != nil {
			h.logger.Warn("skipping joined room with malformed ID", "room_id", rawRoom, "error", err)
			continue
		}
		events := h.textMessages(roomID, joined.Timeline.Events)
		if len(events) == 0 {
			continue
		}
		group.Go(func() error {
			for _, event := range events {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				h.dispatcher.Dispatch(ctx, event)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		h.logger.Debug("sync batch interrupted", "error", err)
	}
}

func (h *SyncHandler) handleInvites(ctx context.Context, response *messaging.SyncResponse) {
	for rawRoom, invited := range response.Rooms.Invite {
		roomID, err := ref.ParseRoomID(rawRoom)
		if err != nil {
			h.logger.Warn("skipping invite with malformed room ID", "room_id", rawRoom, "error", err)
			continue
		}
		// The inviter is only logged, so an unparseable one stays zero.
		inviter, _ := ref.ParseUserID(invited.Inviter(h.userID))
		h.membership.HandleInvite(ctx, roomID, inviter)
	}
}

func (h *SyncHandler) logUndecodable(response *messaging.SyncResponse) {
	for rawRoom, err := range response.Rooms.Undecodable {
		h.logger.Warn("skipping undecodable room in sync batch", "room_id", rawRoom, "error", err)
	}
}

// textMessages converts the m.text messages of a timeline into Events.
// Events from senders that are not valid user IDs are dropped.
func (h *SyncHandler) textMessages(roomID ref.RoomID, timeline []messaging.Event) []Event {
	var events []Event
	for _, event := range timeline {
		if event.Type != ref.EventTypeMessage || event.ContentString("msgtype") != messaging.MsgTypeText {
			continue
		}
		body := event.ContentString("body")
		if body == "" {
			continue
		}
		sender, err := ref.ParseUserID(event.Sender)
		if err != nil {
			h.logger.Warn("skipping message with malformed sender",
				"room_id", roomID,
				"sender", event.Sender,
				"error", err,
			)
			continue
		}
		events = append(events, Event{
			Room:      roomID,
			Sender:    sender,
			Body:      body,
			Timestamp: time.UnixMilli(event.OriginServerTS),
		})
	}
	return events
}
