// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/ref"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/messaging"
)

type homeserver struct {
	mu   sync.Mutex
	sent []messaging.MessageContent
}

func (s *homeserver) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Set("Content-Type", "application/json")
	switch {
	case request.Method == http.MethodPut && strings.Contains(request.URL.Path, "/send/m.room.message/"):
		var content messaging.MessageContent
		json.NewDecoder(request.Body).Decode(&content)
		s.mu.Lock()
		s.sent = append(s.sent, content)
		s.mu.Unlock()
		json.NewEncoder(writer).Encode(map[string]string{"event_id": "$sent"})
	case strings.HasSuffix(request.URL.Path, "/state/m.room.member/@alice:example.org"):
		json.NewEncoder(writer).Encode(messaging.RoomMemberContent{Membership: "join", DisplayName: "Alice in Room"})
	case strings.Contains(request.URL.Path, "/state/m.room.member/"):
		writer.WriteHeader(http.StatusNotFound)
		json.NewEncoder(writer).Encode(messaging.MatrixError{Code: messaging.ErrCodeNotFound, Message: "not a member"})
	case strings.HasSuffix(request.URL.Path, "/profile/@bob:example.org/displayname"):
		json.NewEncoder(writer).Encode(messaging.DisplayNameResponse{DisplayName: "Bob Global"})
	default:
		writer.WriteHeader(http.StatusNotFound)
		json.NewEncoder(writer).Encode(messaging.MatrixError{Code: messaging.ErrCodeNotFound, Message: "no such endpoint"})
	}
}

func (s *homeserver) messages() []messaging.MessageContent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messaging.MessageContent(nil), s.sent...)
}

func newMatrixTransport(t *testing.T) (*MatrixTransport, *homeserver) {
	t.Helper()
	state := &homeserver{}
	server := httptest.NewServer(state)
	t.Cleanup(server.Close)

	client, err := messaging.NewClient(messaging.ClientConfig{HomeserverURL: server.URL, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	session, err := client.SessionFromToken(botUser, "token")
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return NewMatrixTransport(session, discardLogger()), state
}

func TestMatrixTransportSend(t *testing.T) {
	t.Parallel()

	transport, state := newMatrixTransport(t)
	ctx := context.Background()

	if err := transport.SendText(ctx, testRoom, "plain"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := transport.SendMarkdown(ctx, testRoom, "Alice:\n\n**bold**"); err != nil {
		t.Fatalf("SendMarkdown: %v", err)
	}

	sent := state.messages()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages", len(sent))
	}
	if sent[0].Body != "plain" || sent[0].Format != "" || sent[0].MsgType != messaging.MsgTypeText {
		t.Errorf("text message = %+v", sent[0])
	}
	rich := sent[1]
	if rich.Body != "Alice:\n\n**bold**" || rich.Format != messaging.FormatHTML {
		t.Errorf("rich message = %+v", rich)
	}
	if !strings.Contains(rich.FormattedBody, "<strong>bold</strong>") || !strings.Contains(rich.FormattedBody, "<p>Alice:</p>") {
		t.Errorf("formatted body = %q", rich.FormattedBody)
	}
}

func TestMatrixTransportDisplayName(t *testing.T) {
	t.Parallel()

	transport, _ := newMatrixTransport(t)
	ctx := context.Background()

	if name, err := transport.DisplayName(ctx, testRoom, alice); err != nil || name != "Alice in Room" {
		t.Errorf("DisplayName(alice) = %q, %v", name, err)
	}
	if name, err := transport.DisplayName(ctx, testRoom, bob); err != nil || name != "Bob Global" {
		t.Errorf("DisplayName(bob) = %q, %v", name, err)
	}
	if _, err := transport.DisplayName(ctx, testRoom, ref.MustParseUserID("@ghost:example.org")); err == nil {
		t.Error("DisplayName(ghost) succeeded")
	}
}

func textEvent(sender ref.UserID, msgtype, body string, timestamp int64) messaging.Event {
	return messaging.Event{
		Type:           ref.EventTypeMessage,
		Sender:         sender.String(),
		OriginServerTS: timestamp,
		Content:        map[string]any{"msgtype": msgtype, "body": body},
	}
}

func TestSyncHandler(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	joiner := newFakeJoiner()
	invited := ref.MustParseRoomID("!invited:example.org")
	membership := NewMembership(joiner, MembershipConfig{
		Channels: []string{invited.String()},
		Logger:   discardLogger(),
	})
	handler := NewSyncHandler(botUser, h.dispatcher, membership, discardLogger())

	otherRoom := ref.MustParseRoomID("!other:example.org")
	botKey := botUser.String()
	now := afterJoin.UnixMilli()
	response := &messaging.SyncResponse{
		NextBatch: "s2",
		Rooms: messaging.RoomsSection{
			Join: map[string]messaging.JoinedRoom{
				testRoom.String(): {Timeline: messaging.TimelineSection{Events: []messaging.Event{
					textEvent(alice, messaging.MsgTypeText, ".ai old news", joinTime.UnixMilli()),
					textEvent(alice, messaging.MsgTypeNotice, ".ai from a notice", now),
					textEvent(alice, messaging.MsgTypeText, ".ai first", now),
					textEvent(alice, messaging.MsgTypeText, ".ai second", now+1),
					{Type: ref.EventTypeMember, Sender: alice.String(), StateKey: &botKey, Content: map[string]any{"membership": "join"}},
				}}},
				otherRoom.String(): {Timeline: messaging.TimelineSection{Events: []messaging.Event{
					textEvent(bob, messaging.MsgTypeText, ".ai elsewhere", now),
				}}},
			},
			Invite: map[string]messaging.InvitedRoom{
				invited.String(): {InviteState: messaging.StateSection{Events: []messaging.Event{
					{Type: ref.EventTypeMember, Sender: alice.String(), StateKey: &botKey, Content: map[string]any{"membership": "invite"}},
				}}},
				"!stranger:example.org": {},
			},
		},
	}

	handler.HandleSync(context.Background(), response)

	if joined := joiner.joinedRooms(); len(joined) != 1 || joined[0] != invited.String() {
		t.Errorf("joined %v, want only the configured invite", joined)
	}

	conversation := h.conversation(t, alice.String())
	var userTurns []string
	for _, message := range conversation {
		if message.Role == "user" {
			userTurns = append(userTurns, message.Content)
		}
	}
	if strings.Join(userTurns, "|") != "first|second" {
		t.Errorf("alice's user turns = %v", userTurns)
	}

	if _, ok := h.history.Lookup(otherRoom.String(), bob.String()); !ok {
		t.Error("message in the second room was not dispatched")
	}
}

func TestSyncHandlerSkipsMalformedRooms(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	joiner := newFakeJoiner()
	membership := NewMembership(joiner, MembershipConfig{AutoJoin: true, Logger: discardLogger()})
	handler := NewSyncHandler(botUser, h.dispatcher, membership, discardLogger())

	botKey := botUser.String()
	now := afterJoin.UnixMilli()
	response := &messaging.SyncResponse{
		NextBatch: "s3",
		Rooms: messaging.RoomsSection{
			Join: map[string]messaging.JoinedRoom{
				testRoom.String(): {Timeline: messaging.TimelineSection{Events: []messaging.Event{
					{Type: ref.EventTypeMessage, Sender: "not-a-user", OriginServerTS: now,
						Content: map[string]any{"msgtype": messaging.MsgTypeText, "body": ".ai from nowhere"}},
					textEvent(alice, messaging.MsgTypeText, ".ai hi", now),
				}}},
				"no-sigil-room": {Timeline: messaging.TimelineSection{Events: []messaging.Event{
					textEvent(bob, messaging.MsgTypeText, ".ai lost", now),
				}}},
			},
			Invite: map[string]messaging.InvitedRoom{
				"#alias:example.org": {},
				"!Fq3Pl1v2Xk8AsTmC6QoW": {InviteState: messaging.StateSection{Events: []messaging.Event{
					{Type: ref.EventTypeMember, Sender: "garbled", StateKey: &botKey, Content: map[string]any{"membership": "invite"}},
				}}},
			},
			Undecodable: map[string]error{"!broken:example.org": errors.New("json: cannot unmarshal string")},
		},
	}

	handler.HandleSync(context.Background(), response)

	conversation := h.conversation(t, alice.String())
	if last := conversation[len(conversation)-2]; last.Role != "user" || last.Content != "hi" {
		t.Errorf("alice's turn in the valid room was not dispatched: %+v", conversation)
	}
	if _, ok := h.history.Lookup(testRoom.String(), "not-a-user"); ok {
		t.Error("message from a malformed sender was dispatched")
	}
	if joined := joiner.joinedRooms(); len(joined) != 1 || joined[0] != "!Fq3Pl1v2Xk8AsTmC6QoW" {
		t.Errorf("joined %v, want only the server-less room", joined)
	}
}
