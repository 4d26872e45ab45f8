// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/ref"
)

// Message types and formats used in m.room.message content.
const (
	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"

	// FormatHTML is the only format the Matrix spec defines for
	// formatted_body.
	FormatHTML = "org.matrix.custom.html"
)

// MessageContent is the content of an m.room.message event. Format and
// FormattedBody are set together for rich messages; Body always carries
// the plain-text fallback.
type MessageContent struct {
	MsgType       string    `json:"msgtype"`
	Body          string    `json:"body"`
	Format        string    `json:"format,omitempty"`
	FormattedBody string    `json:"formatted_body,omitempty"`
	Mentions      *Mentions `json:"m.mentions,omitempty"`
}

// Mentions lists the users a message addresses, in the m.mentions form.
type Mentions struct {
	UserIDs []ref.UserID `json:"user_ids,omitempty"`
}

// NewTextMessage creates a plain-text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{MsgType: MsgTypeText, Body: body}
}

// NewHTMLMessage creates a message with an HTML rendering and a
// plain-text fallback.
func NewHTMLMessage(plain, html string) MessageContent {
	return MessageContent{
		MsgType:       MsgTypeText,
		Body:          plain,
		Format:        FormatHTML,
		FormattedBody: html,
	}
}

// Event is a Matrix event as delivered by /sync. Identifiers stay raw
// strings: one event with an ID the ref parsers reject must not fail
// the whole batch. Consumers parse what they use.
type Event struct {
	EventID        string         `json:"event_id"`
	Type           ref.EventType  `json:"type"`
	Sender         string         `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	StateKey       *string        `json:"state_key,omitempty"`
}

// ContentString returns Content[key] if it is a string, else "".
func (e Event) ContentString(key string) string {
	value, _ := e.Content[key].(string)
	return value
}

// SyncOptions controls a /sync request.
type SyncOptions struct {
	Since      string // next_batch from the previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds
	SetTimeout bool   // send Timeout even when zero
	Filter     string // filter ID or inline JSON filter
	FullState  bool
}

// SyncResponse is the subset of a /sync response the bot reads.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection groups per-room sync data by membership, keyed by raw
// room ID. A room whose data fails to decode is left out of Join and
// Invite and recorded in Undecodable; the rest of the batch is kept.
type RoomsSection struct {
	Join   map[string]JoinedRoom
	Invite map[string]InvitedRoom

	// Undecodable maps the keys of dropped rooms to their decode error.
	Undecodable map[string]error
}

// UnmarshalJSON decodes each room on its own.
func (r *RoomsSection) UnmarshalJSON(data []byte) error {
	var wire struct {
		Join   map[string]json.RawMessage `json:"join"`
		Invite map[string]json.RawMessage `json:"invite"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Join = decodeRooms[JoinedRoom](wire.Join, r)
	r.Invite = decodeRooms[InvitedRoom](wire.Invite, r)
	return nil
}

func decodeRooms[T any](raw map[string]json.RawMessage, section *RoomsSection) map[string]T {
	if len(raw) == 0 {
		return nil
	}
	rooms := make(map[string]T, len(raw))
	for key, data := range raw {
		var room T
		if err := json.Unmarshal(data, &room); err != nil {
			if section.Undecodable == nil {
				section.Undecodable = make(map[string]error)
			}
			section.Undecodable[key] = err
			continue
		}
		rooms[key] = room
	}
	return rooms
}

// JoinedRoom contains sync data for a joined room.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// InvitedRoom contains the stripped state of a pending invite.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// Inviter returns the raw sender of the m.room.member invite event for
// userID, or "" if the stripped state does not carry one.
func (r InvitedRoom) Inviter(userID ref.UserID) string {
	for _, event := range r.InviteState.Events {
		if event.Type == ref.EventTypeMember && event.StateKey != nil &&
			*event.StateKey == userID.String() && event.ContentString("membership") == "invite" {
			return event.Sender
		}
	}
	return ""
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// LoginRequest is the body of a password login.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	DeviceID                 string `json:"device_id,omitempty"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// AuthResponse is returned by login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// JoinResponse is returned by the join endpoint.
type JoinResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}

// SendEventResponse is returned by a send.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse is returned by whoami.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// JoinedRoomsResponse is returned by joined_rooms.
type JoinedRoomsResponse struct {
	JoinedRooms []string `json:"joined_rooms"`
}

// DisplayNameResponse is returned by the profile displayname endpoint.
type DisplayNameResponse struct {
	DisplayName string `json:"displayname"`
}

// RoomMemberContent is the content of an m.room.member state event.
type RoomMemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
}
