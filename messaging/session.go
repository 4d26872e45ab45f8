// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/ref"
)

// Session is the authenticated Matrix surface the bot depends on.
// *DirectSession implements it; tests substitute fakes.
type Session interface {
	// UserID returns the session owner's fully-qualified user ID.
	UserID() ref.UserID

	// Close releases the access token memory.
	Close() error

	// WhoAmI asks the homeserver which user the token belongs to.
	WhoAmI(ctx context.Context) (ref.UserID, error)

	// JoinRoom joins by room ID or alias and returns the room ID.
	// Joining a room the user is already in, or one it is invited to,
	// succeeds.
	JoinRoom(ctx context.Context, roomIDOrAlias string) (ref.RoomID, error)

	// JoinedRooms lists the rooms the user is currently in.
	JoinedRooms(ctx context.Context) ([]ref.RoomID, error)

	// SendMessage sends an m.room.message event and returns its ID.
	SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error)

	// GetDisplayName returns a user's global profile display name.
	GetDisplayName(ctx context.Context, userID ref.UserID) (string, error)

	// GetMemberDisplayName returns a user's display name as set in a
	// specific room's membership state.
	GetMemberDisplayName(ctx context.Context, roomID ref.RoomID, userID ref.UserID) (string, error)

	// Sync performs one /sync request.
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)
}

var _ Session = (*DirectSession)(nil)
